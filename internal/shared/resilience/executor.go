package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"docuchat-backend/internal/shared/telemetry"
)

// Classification tells the executor how to treat an error.
type Classification struct {
	Retryable     bool
	RecordFailure bool
}

// Classifier maps an operation error to a Classification.
type Classifier func(err error) Classification

// Executor runs calls to a remote dependency behind a named circuit breaker,
// retrying according to Config.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Execute runs fn under the breaker for operation. A nil classifier treats
// every error as a non-retryable failure.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = FailAlways
	}

	if !e.cfg.BreakerEnabled {
		return e.run(ctx, op, fn, classify)
	}

	breaker := e.breaker(op, classify)
	_, err := breaker.Execute(func() (struct{}, error) {
		return struct{}{}, e.run(ctx, op, fn, classify)
	})
	return err
}

// State reports the breaker state for operation.
func (e *Executor) State(operation string) gobreaker.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.breakers[operation]; ok {
		return b.State()
	}
	return gobreaker.StateClosed
}

func (e *Executor) run(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	backoff := e.cfg.InitialBackoff
	var err error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !classify(err).Retryable || attempt == e.cfg.MaxAttempts {
			return err
		}

		wait := min(backoff, e.cfg.MaxBackoff)
		telemetry.Warn("resilience.retry", map[string]any{
			"operation":    operation,
			"attempt":      attempt,
			"max_attempts": e.cfg.MaxAttempts,
			"backoff_ms":   wait.Milliseconds(),
			"error":        err,
		})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff = min(time.Duration(float64(backoff)*e.cfg.Multiplier), e.cfg.MaxBackoff)
	}
	return err
}

func (e *Executor) breaker(operation string, classify Classifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if b, ok := e.breakers[operation]; ok {
		return b
	}

	settings := gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMax,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			telemetry.Warn("resilience.breaker.state", map[string]any{
				"operation": name,
				"from":      from.String(),
				"to":        to.String(),
			})
		},
	}

	b := gobreaker.NewCircuitBreaker[struct{}](settings)
	e.breakers[operation] = b
	return b
}

// IsCircuitOpen reports whether err came from a tripped breaker rather than
// from the operation itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// FailAlways classifies every error as a recorded, non-retryable failure.
func FailAlways(error) Classification {
	return Classification{Retryable: false, RecordFailure: true}
}
