package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffPolicy computes the wait before a retry:
// Base * Factor^(attempt-1), varied by +/- Jitter and capped at Ceiling.
type BackoffPolicy struct {
	Base    time.Duration
	Factor  float64
	Ceiling time.Duration
	Jitter  float64 // 0..1
}

// Validate checks the policy is usable
func (p BackoffPolicy) Validate() error {
	var errs []error
	if p.Base <= 0 {
		errs = append(errs, fmt.Errorf("backoff base must be positive, got %s", p.Base))
	}
	if p.Factor < 1 {
		errs = append(errs, fmt.Errorf("backoff factor must be >= 1, got %v", p.Factor))
	}
	if p.Ceiling < p.Base {
		errs = append(errs, fmt.Errorf("backoff ceiling %s is below base %s", p.Ceiling, p.Base))
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		errs = append(errs, fmt.Errorf("backoff jitter must be within [0, 1], got %v", p.Jitter))
	}
	return errors.Join(errs...)
}

// Delay returns the wait after the given failed attempt (1-based)
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.Base) * math.Pow(p.Factor, float64(attempt-1))
	if p.Jitter > 0 {
		delay *= 1 + p.Jitter*(2*rand.Float64()-1)
	}
	if delay > float64(p.Ceiling) {
		delay = float64(p.Ceiling)
	}
	if delay < 0 {
		delay = float64(p.Base)
	}
	return time.Duration(delay)
}

// FetchFunc performs a single fetch attempt
type FetchFunc func(ctx context.Context) (Schedule, error)

// fetchWithRetry runs fetch up to cfg.MaxRetries times. Only transient errors
// are retried. It returns the number of attempts made.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, fetch FetchFunc) (Schedule, int, error) {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
		schedule, err := fetch(attemptCtx)
		cancel()
		if err == nil {
			return schedule, attempt, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return Schedule{}, attempt, err
		}
		if attempt == o.cfg.MaxRetries {
			break
		}

		delay := o.cfg.Backoff.Delay(attempt)
		o.log.Warning("Fetch attempt %d/%d failed: %v (retrying in %s)", attempt, o.cfg.MaxRetries, err, delay.Round(time.Millisecond))
		if err := o.sleep(ctx, delay); err != nil {
			return Schedule{}, attempt, err
		}
	}
	return Schedule{}, o.cfg.MaxRetries, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, o.cfg.MaxRetries, lastErr)
}
