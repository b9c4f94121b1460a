// Package ratelimit keeps a fixed request window per account.
//
// State lives in memory for the process lifetime. A restart resets every
// window, which can permit a few extra calls; the platform's own limiter
// stays authoritative.
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultMaxRequests = 50
	DefaultWindow      = 15 * time.Minute
)

// Window is a snapshot of one account's counters
type Window struct {
	Start       time.Time
	Requests    int
	MaxRequests int
	Duration    time.Duration
}

// ResetAt returns when the current window ends
func (w Window) ResetAt() time.Time {
	return w.Start.Add(w.Duration)
}

// Remaining returns how many requests are left in the current window
func (w Window) Remaining() int {
	if w.Requests >= w.MaxRequests {
		return 0
	}
	return w.MaxRequests - w.Requests
}

type state struct {
	start    time.Time
	requests int
}

// Tracker tracks request counts per account against a fixed window
type Tracker struct {
	mu          sync.Mutex
	windows     map[string]*state
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates a tracker allowing maxRequests per window per account
func New(maxRequests int, window time.Duration, opts ...Option) *Tracker {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}

	t := &Tracker{
		windows:     make(map[string]*state),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allow reports whether one more request may be issued for the account.
// A denied call has no side effects. An expired window is reset first.
func (t *Tracker) Allow(accountID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	st := t.stateLocked(accountID, now)
	if st.requests >= t.maxRequests && now.Before(st.start.Add(t.window)) {
		return false
	}
	t.resetIfExpiredLocked(st, now)
	return true
}

// RecordUse counts one issued request. Call it only once the request has
// actually been sent.
func (t *Tracker) RecordUse(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	st := t.stateLocked(accountID, now)
	t.resetIfExpiredLocked(st, now)
	st.requests++
}

// ResetIfExpired starts a fresh window when the current one has elapsed
func (t *Tracker) ResetIfExpired(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.resetIfExpiredLocked(t.stateLocked(accountID, now), now)
}

// Snapshot returns the current counters for the account
func (t *Tracker) Snapshot(accountID string) Window {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := Window{MaxRequests: t.maxRequests, Duration: t.window}
	if st, ok := t.windows[accountID]; ok {
		w.Start = st.start
		w.Requests = st.requests
	}
	return w
}

// Forget drops all state for the account
func (t *Tracker) Forget(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.windows, accountID)
}

func (t *Tracker) stateLocked(accountID string, now time.Time) *state {
	st, ok := t.windows[accountID]
	if !ok {
		st = &state{start: now}
		t.windows[accountID] = st
	}
	return st
}

func (t *Tracker) resetIfExpiredLocked(st *state, now time.Time) {
	if !now.Before(st.start.Add(t.window)) {
		st.start = now
		st.requests = 0
	}
}
