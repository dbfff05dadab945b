package core

import "math"

// RateLimitClass partitions tracker endpoints that share a quota.
type RateLimitClass string

const (
	RateLimitStandard RateLimitClass = "standard"
	RateLimitSearch   RateLimitClass = "search"
)

// RateLimitState captures the last observed quota for a class. Reset is
// epoch seconds.
type RateLimitState struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// UnknownRateLimit is the state before any response has been observed.
func UnknownRateLimit() RateLimitState {
	return RateLimitState{Limit: math.MaxInt, Remaining: math.MaxInt}
}
