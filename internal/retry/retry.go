// Package retry runs calls to unreliable external services under a bounded
// attempt/backoff/give-up policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is wrapped by the error Do returns after the last attempt fails.
var ErrExhausted = errors.New("retry attempts exhausted")

// Kind classifies a failure so each kind can have its own backoff.
type Kind int

const (
	// KindTransport covers network, service and timeout failures.
	KindTransport Kind = iota
	// KindParse covers responses that arrived but could not be interpreted.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	default:
		return "transport"
	}
}

// State is a position in the retry state machine.
type State int

const (
	StateAttempt State = iota
	StateBackoff
	StateGiveUp
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAttempt:
		return "attempt"
	case StateBackoff:
		return "backoff"
	case StateGiveUp:
		return "give-up"
	default:
		return "done"
	}
}

// Policy describes how many times to call, how long to wait between calls
// for each failure kind, and how long a single call may take.
type Policy struct {
	MaxAttempts    int
	Backoff        map[Kind]time.Duration
	AttemptTimeout time.Duration

	// Classify maps an error to its Kind. Nil treats every failure as transport.
	Classify func(error) Kind
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnFailure is called after every failed attempt.
	OnFailure func(attempt int, kind Kind, err error)
}

// Step returns the state that follows a finished attempt and, for
// StateBackoff, how long to wait before the next one.
func (p Policy) Step(attempt int, err error) (State, time.Duration) {
	if err == nil {
		return StateDone, 0
	}
	if attempt >= p.maxAttempts() {
		return StateGiveUp, 0
	}
	return StateBackoff, p.Backoff[p.kindOf(err)]
}

// Do calls op until it succeeds or the policy gives up. On give-up it
// returns fallback(lastErr) together with an error wrapping ErrExhausted,
// so callers can use the degraded value and still see what happened.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), fallback func(error) T) (T, error) {
	var (
		state   = StateAttempt
		attempt int
		wait    time.Duration
		lastErr error
	)

	for {
		switch state {
		case StateAttempt:
			attempt++
			v, err := call(ctx, p.AttemptTimeout, op)
			if err != nil {
				lastErr = err
				if p.OnFailure != nil {
					p.OnFailure(attempt, p.kindOf(err), err)
				}
				if ctx.Err() != nil {
					state = StateGiveUp
					continue
				}
			}
			state, wait = p.Step(attempt, err)
			if state == StateDone {
				return v, nil
			}

		case StateBackoff:
			if err := p.sleep(ctx, wait); err != nil {
				lastErr = err
				state = StateGiveUp
				continue
			}
			state = StateAttempt

		case StateGiveUp:
			var zero T
			if fallback != nil {
				zero = fallback(lastErr)
			}
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, lastErr)
		}
	}
}

// call runs one attempt, bounded by AttemptTimeout when set.
func call[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) kindOf(err error) Kind {
	if p.Classify == nil {
		return KindTransport
	}
	return p.Classify(err)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
