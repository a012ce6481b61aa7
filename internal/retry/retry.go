// Package retry wraps flaky provider calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MimeLyc/mythos-studio/pkg/log"
)

var (
	// ErrNoResult marks an attempt that returned no error but an empty value.
	ErrNoResult = errors.New("operation returned no result")
	// ErrExhausted is matched by every error returned after the last attempt.
	ErrExhausted = errors.New("retries exhausted")
)

// Policy describes how often and how patiently to retry.
type Policy struct {
	Name         string
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
}

// ImagePolicy is used for image generation calls.
func ImagePolicy() Policy {
	return Policy{Name: "image", MaxRetries: 3, InitialDelay: 2 * time.Second, Multiplier: 2}
}

// AudioPolicy is used for speech synthesis calls.
func AudioPolicy() Policy {
	return Policy{Name: "audio", MaxRetries: 3, InitialDelay: time.Second, Multiplier: 2}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 1 {
		p.MaxRetries = 1
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.Name == "" {
		p.Name = "operation"
	}
	return p
}

// ExhaustedError is returned once every attempt failed.
type ExhaustedError struct {
	Name     string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Name, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Last}
}

// Do calls op until it yields a non-zero value without error, sleeping
// between attempts with exponential backoff. There is no sleep after the
// final attempt. On exhaustion the zero value is returned together with an
// *ExhaustedError. A cancelled ctx stops the wait and returns ctx.Err().
func Do[T comparable](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	delay := p.InitialDelay

	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil && result != zero {
			if attempt > 1 {
				log.Info("%s succeeded on attempt %d/%d", p.Name, attempt, p.MaxRetries)
			}
			return result, nil
		}
		if err == nil {
			err = ErrNoResult
		}
		lastErr = err

		if attempt == p.MaxRetries {
			break
		}

		log.Warn("%s attempt %d/%d failed: %v, retrying in %s", p.Name, attempt, p.MaxRetries, err, delay)
		if waitErr := sleep(ctx, delay); waitErr != nil {
			return zero, fmt.Errorf("%s retry aborted: %w", p.Name, waitErr)
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}

	log.Error("%s failed after %d attempts: %v", p.Name, p.MaxRetries, lastErr)
	return zero, &ExhaustedError{Name: p.Name, Attempts: p.MaxRetries, Last: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
