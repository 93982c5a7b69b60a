package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errParse = errors.New("bad json")

func testPolicy(slept *[]time.Duration) Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff: map[Kind]time.Duration{
			KindParse:     2 * time.Second,
			KindTransport: 10 * time.Second,
		},
		Classify: func(err error) Kind {
			if errors.Is(err, errParse) {
				return KindParse
			}
			return KindTransport
		},
		Sleep: func(_ context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		},
	}
}

func TestStepTransitions(t *testing.T) {
	var slept []time.Duration
	p := testPolicy(&slept)

	tests := []struct {
		name      string
		attempt   int
		err       error
		wantState State
		wantWait  time.Duration
	}{
		{"success", 1, nil, StateDone, 0},
		{"parse failure backs off 2s", 1, errParse, StateBackoff, 2 * time.Second},
		{"transport failure backs off 10s", 2, errors.New("503"), StateBackoff, 10 * time.Second},
		{"last attempt gives up", 3, errParse, StateGiveUp, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, wait := p.Step(tt.attempt, tt.err)
			if state != tt.wantState {
				t.Errorf("state = %v, want %v", state, tt.wantState)
			}
			if wait != tt.wantWait {
				t.Errorf("wait = %v, want %v", wait, tt.wantWait)
			}
		})
	}
}

func TestDoSucceedsAfterMixedFailures(t *testing.T) {
	var slept []time.Duration
	p := testPolicy(&slept)

	calls := 0
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		switch calls {
		case 1:
			return "", errParse
		case 2:
			return "", errors.New("connection reset")
		default:
			return "ok", nil
		}
	}, nil)

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Do() = %q, want ok", got)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if len(slept) != 2 || slept[0] != 2*time.Second || slept[1] != 10*time.Second {
		t.Errorf("Expected backoffs [2s 10s], got %v", slept)
	}
}

func TestDoGivesUpWithFallback(t *testing.T) {
	var slept []time.Duration
	p := testPolicy(&slept)

	var failures []Kind
	p.OnFailure = func(_ int, kind Kind, _ error) { failures = append(failures, kind) }

	got, err := Do(context.Background(), p, func(context.Context) (int, error) {
		return 0, errParse
	}, func(error) int { return -1 })

	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, errParse) {
		t.Errorf("Expected last error to be wrapped, got %v", err)
	}
	if got != -1 {
		t.Errorf("Expected fallback value -1, got %d", got)
	}
	if len(failures) != 3 {
		t.Errorf("Expected 3 failure callbacks, got %d", len(failures))
	}
	if len(slept) != 2 {
		t.Errorf("Expected no backoff after the final attempt, got %v", slept)
	}
}

func TestDoAppliesAttemptTimeout(t *testing.T) {
	var slept []time.Duration
	p := testPolicy(&slept)
	p.MaxAttempts = 1
	p.AttemptTimeout = 10 * time.Millisecond

	_, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, nil)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded to be wrapped, got %v", err)
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	var slept []time.Duration
	p := testPolicy(&slept)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, p, func(context.Context) (string, error) {
		calls++
		cancel()
		return "", errors.New("boom")
	}, nil)

	if !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected cancellation to stop retries, got %d calls", calls)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
