package polymarket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/acyclops/marketpulse/internal/domain"
)

func TestGetEvents_QueryParameters(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"e1","title":"Rain","markets":[]}]`))
	}))
	defer srv.Close()

	c := NewGammaClient(srv.URL)
	events, err := c.GetEvents(context.Background(), 20, 40, 100000)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(events) != 1 || events[0].ID != "e1" {
		t.Fatalf("events = %+v", events)
	}

	want := map[string]string{
		"closed":     "false",
		"ascending":  "false",
		"volume_min": "100000",
		"limit":      "20",
		"offset":     "40",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestGetEvents_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such resource", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewGammaClient(srv.URL)
	_, err := c.GetEvents(context.Background(), 20, 0, 0)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetEvents_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewGammaClient(srv.URL)
	_, err := c.GetEvents(context.Background(), 20, 0, 0)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}
