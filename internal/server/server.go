// Package server exposes the read API and the pipeline trigger endpoint over
// HTTP. Routing uses the standard mux with method patterns; cross-cutting
// concerns (CORS, access logs, rate limiting) are middleware.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/acyclops/marketpulse/internal/server/handler"
	"github.com/acyclops/marketpulse/internal/server/middleware"
)

type Config struct {
	Port        int
	CORSOrigins []string

	// RateLimit is requests per RateLimitWindow per client IP. Zero
	// disables rate limiting (the limiter is not consulted at all).
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates every route handler the server mounts.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Leaderboard *handler.LeaderboardHandler
	Market      *handler.MarketHandler
	Pipeline    *handler.PipelineHandler
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func New(cfg Config, h Handlers, limiter middleware.Limiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)
	mux.HandleFunc("GET /api/leaderboards/{metric}", h.Leaderboard.GetLeaderboard)
	mux.HandleFunc("GET /api/markets/search", h.Market.Search)
	mux.HandleFunc("GET /api/markets/{slug}/timeseries", h.Market.GetTimeseries)
	mux.HandleFunc("GET /api/markets/{slug}/summary", h.Market.GetSummary)
	mux.HandleFunc("POST /api/pipeline/trigger", h.Pipeline.TriggerPipeline)

	var root http.Handler = mux
	if cfg.RateLimit > 0 && limiter != nil {
		root = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(root)
	}
	root = middleware.Logging(logger)(root)
	root = corsMiddleware(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "server"),
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
