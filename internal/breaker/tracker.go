package breaker

import (
	"fmt"
	"sync"
	"time"
)

// Default tracker settings.
const (
	DefaultMaxErrors  = 3
	DefaultTimeWindow = 60 * time.Second
)

// TooManyErrorsError is returned by Record when a kind recurs too often.
// It is terminal for the tracker's owner.
type TooManyErrorsError struct {
	Kind   string
	Count  int
	Window time.Duration
	Last   error
}

func (e *TooManyErrorsError) Error() string {
	msg := fmt.Sprintf("too many %s errors: %d in last %s", e.Kind, e.Count, e.Window)
	if e.Last != nil {
		msg += ". Last error: " + e.Last.Error()
	}
	return msg
}

func (e *TooManyErrorsError) Unwrap() error {
	return e.Last
}

// Settings configures a Tracker.
type Settings struct {
	MaxErrors  int
	TimeWindow time.Duration
}

// Tracker counts error occurrences per kind in a sliding window.
type Tracker struct {
	maxErrors int
	window    time.Duration

	mu     sync.Mutex
	errors map[string][]time.Time
}

// NewTracker creates a Tracker. Zero settings fall back to the defaults.
func NewTracker(st Settings) *Tracker {
	if st.MaxErrors <= 0 {
		st.MaxErrors = DefaultMaxErrors
	}
	if st.TimeWindow <= 0 {
		st.TimeWindow = DefaultTimeWindow
	}
	return &Tracker{
		maxErrors: st.MaxErrors,
		window:    st.TimeWindow,
		errors:    make(map[string][]time.Time),
	}
}

// Record adds an occurrence of kind at now and reports whether the tracker
// tripped. The returned error, if any, is a *TooManyErrorsError carrying cause.
func (t *Tracker) Record(kind string, cause error, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.errors[kind] = append(t.errors[kind], now)
	t.pruneLocked(now)

	count := len(t.errors[kind])
	if count >= t.maxErrors {
		return &TooManyErrorsError{
			Kind:   kind,
			Count:  count,
			Window: t.window,
			Last:   cause,
		}
	}
	return nil
}

// Count returns the number of occurrences of kind still inside the window as of now.
func (t *Tracker) Count(kind string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(now)
	return len(t.errors[kind])
}

// pruneLocked drops every occurrence at or before now-window.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.window)
	for kind, stamps := range t.errors {
		kept := stamps[:0]
		for _, ts := range stamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(t.errors, kind)
			continue
		}
		t.errors[kind] = kept
	}
}
