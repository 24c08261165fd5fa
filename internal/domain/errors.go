package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrLockHeld      = errors.New("lock already held")
	ErrInvalidMetric = errors.New("unknown leaderboard metric")
	ErrInvalidWindow = errors.New("window not in allowed set")
	ErrBadBucket     = errors.New("malformed snapshot bucket")
)
