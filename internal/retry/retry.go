// Package retry runs calls to external services under a single backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Policy describes how failed calls are retried. After each failure the
// current delay is slept, then grown: delay = delay*Growth + jitter, with
// jitter drawn uniformly from [JitterMin, JitterMax].
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Growth         float64
	JitterMin      time.Duration
	JitterMax      time.Duration
	AttemptTimeout time.Duration
}

// DefaultPolicy is used for Ensembl, BioMart and OLS calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    10,
		BaseDelay:      5 * time.Second,
		Growth:         1.2,
		JitterMin:      1 * time.Second,
		JitterMax:      3 * time.Second,
		AttemptTimeout: 2 * time.Minute,
	}
}

// NextDelay returns the delay that follows current.
func (p Policy) NextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * p.Growth)
	if p.JitterMax > p.JitterMin {
		next += p.JitterMin + time.Duration(rand.Int63n(int64(p.JitterMax-p.JitterMin)))
	} else {
		next += p.JitterMin
	}
	return next
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// StatusError is an unsuccessful HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt: server
// errors, request timeouts and rate limiting.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

// CheckResponse returns nil for 2xx responses. Otherwise it reads the body
// into a StatusError, marked permanent for client errors.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := &StatusError{Code: resp.StatusCode, Body: string(body)}
	if !err.Retryable() {
		return Permanent(err)
	}
	return err
}

// Do calls fn until it succeeds, returns a permanent error, the context is
// cancelled, or the policy runs out of attempts. Each attempt gets its own
// timeout when AttemptTimeout is set.
func Do(ctx context.Context, p Policy, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = runAttempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == attempts {
			break
		}
		logger.Warn("retrying after failure",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = p.NextDelay(delay)
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", op, attempts, err)
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
