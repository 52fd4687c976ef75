package models

import "time"

// RateLimitResult is the outcome of one limiter check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int // seconds; zero when allowed
	ResetAt    time.Time
}

// RateLimitExceededResponse is the 429 body.
type RateLimitExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"error_description"`
	RetryAfter int    `json:"retry_after"`
}
