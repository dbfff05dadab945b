package tracker

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/threadline/threadline/internal/core"
)

// Rate-limit response headers sent by the tracker.
const (
	headerRateLimit     = "RateLimit-Limit"
	headerRateRemaining = "RateLimit-Remaining"
	headerRateReset     = "RateLimit-Reset"
)

// RateLimitTracker records the last quota observed per endpoint class. It is
// advisory only: nothing is gated on it. Concurrent updates are last-writer
// wins.
type RateLimitTracker struct {
	mu     sync.Mutex
	states map[core.RateLimitClass]core.RateLimitState
}

// NewRateLimitTracker returns a tracker with every class unknown.
func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{
		states: map[core.RateLimitClass]core.RateLimitState{
			core.RateLimitStandard: core.UnknownRateLimit(),
			core.RateLimitSearch:   core.UnknownRateLimit(),
		},
	}
}

// Update overwrites the state for class from response headers. It returns
// the stored state and false when the headers are absent or malformed.
func (t *RateLimitTracker) Update(class core.RateLimitClass, header http.Header) (core.RateLimitState, bool) {
	limit, errLimit := strconv.Atoi(header.Get(headerRateLimit))
	remaining, errRemaining := strconv.Atoi(header.Get(headerRateRemaining))
	reset, errReset := strconv.ParseInt(header.Get(headerRateReset), 10, 64)

	t.mu.Lock()
	defer t.mu.Unlock()

	if errLimit != nil || errRemaining != nil || errReset != nil {
		return t.states[class], false
	}

	state := core.RateLimitState{Limit: limit, Remaining: remaining, Reset: reset}
	t.states[class] = state
	return state, true
}

// Get returns the last observed state for class.
func (t *RateLimitTracker) Get(class core.RateLimitClass) core.RateLimitState {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[class]; ok {
		return state
	}
	return core.UnknownRateLimit()
}

// Snapshot copies every class's state.
func (t *RateLimitTracker) Snapshot() map[core.RateLimitClass]core.RateLimitState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[core.RateLimitClass]core.RateLimitState, len(t.states))
	for class, state := range t.states {
		out[class] = state
	}
	return out
}

// Reset forgets every observation, as a page reload would.
func (t *RateLimitTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.states = map[core.RateLimitClass]core.RateLimitState{
		core.RateLimitStandard: core.UnknownRateLimit(),
		core.RateLimitSearch:   core.UnknownRateLimit(),
	}
}
