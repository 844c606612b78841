package breaker

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"
)

func TestTracker_TripsAtMaxErrors(t *testing.T) {
	tr := NewTracker(Settings{MaxErrors: 3, TimeWindow: 60 * time.Second})
	base := time.Unix(1_700_000_000, 0)
	cause := errors.New("connection reset by peer")

	if err := tr.Record("reset", cause, base); err != nil {
		t.Fatalf("first record tripped: %v", err)
	}
	if err := tr.Record("reset", cause, base.Add(10*time.Second)); err != nil {
		t.Fatalf("second record tripped: %v", err)
	}

	err := tr.Record("reset", cause, base.Add(20*time.Second))
	var tooMany *TooManyErrorsError
	if !errors.As(err, &tooMany) {
		t.Fatalf("third record: got %v, want *TooManyErrorsError", err)
	}
	if tooMany.Kind != "reset" || tooMany.Count != 3 || tooMany.Window != 60*time.Second {
		t.Errorf("got %+v", tooMany)
	}
	if !errors.Is(err, cause) {
		t.Error("expected trip error to wrap the last cause")
	}
}

func TestTracker_KindsAreIndependent(t *testing.T) {
	tr := NewTracker(Settings{MaxErrors: 2, TimeWindow: time.Minute})
	now := time.Unix(0, 0)

	if err := tr.Record("timeout", nil, now); err != nil {
		t.Fatal(err)
	}
	if err := tr.Record("tls", nil, now); err != nil {
		t.Fatalf("different kind tripped: %v", err)
	}
	if err := tr.Record("timeout", nil, now); err == nil {
		t.Fatal("expected second timeout to trip")
	}
}

func TestTracker_OldEntriesExpire(t *testing.T) {
	tr := NewTracker(Settings{MaxErrors: 3, TimeWindow: 60 * time.Second})
	base := time.Unix(1_000, 0)

	tr.Record("reset", nil, base)
	tr.Record("reset", nil, base.Add(30*time.Second))

	// Exactly one window after the first entry: the first entry no longer counts.
	if err := tr.Record("reset", nil, base.Add(60*time.Second)); err != nil {
		t.Fatalf("expired entry still counted: %v", err)
	}
	if got := tr.Count("reset", base.Add(60*time.Second)); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
	if got := tr.Count("reset", base.Add(10*time.Minute)); got != 0 {
		t.Errorf("Count after window = %d, want 0", got)
	}
}

func TestTracker_Defaults(t *testing.T) {
	tr := NewTracker(Settings{})
	if tr.maxErrors != DefaultMaxErrors {
		t.Errorf("maxErrors = %d, want %d", tr.maxErrors, DefaultMaxErrors)
	}
	if tr.window != DefaultTimeWindow {
		t.Errorf("window = %v, want %v", tr.window, DefaultTimeWindow)
	}
}

// TestTracker_WindowProperty checks, for random ordered sequences, that the
// tracker trips exactly when the in-window count reaches MaxErrors.
func TestTracker_WindowProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	const window = 60 * time.Second

	for iter := 0; iter < 500; iter++ {
		maxErrors := 1 + rng.IntN(5)
		tr := NewTracker(Settings{MaxErrors: maxErrors, TimeWindow: window})

		now := time.Unix(0, 0)
		var history []time.Time
		for step := 0; step < 20; step++ {
			now = now.Add(time.Duration(rng.IntN(45_000)) * time.Millisecond)
			history = append(history, now)

			inWindow := 0
			for _, ts := range history {
				if ts.After(now.Add(-window)) {
					inWindow++
				}
			}

			err := tr.Record("kind", nil, now)
			tripped := err != nil
			if want := inWindow >= maxErrors; tripped != want {
				t.Fatalf("iter %d step %d: tripped=%v, want %v (inWindow=%d max=%d)",
					iter, step, tripped, want, inWindow, maxErrors)
			}
		}
	}
}
