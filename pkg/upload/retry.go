package upload

import (
	"math"
	"time"
)

// Retryer retries an operation with exponential backoff.
type Retryer struct {
	maxAttempts  int
	interval     time.Duration
	backoffCoeff int
}

// NewRetryer creates a retryer making up to maxAttempts attempts, waiting
// interval * backoffCoeff^n between them.
func NewRetryer(maxAttempts int, interval time.Duration, backoffCoeff int) *Retryer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoffCoeff < 1 {
		backoffCoeff = 1
	}
	return &Retryer{
		maxAttempts:  maxAttempts,
		interval:     interval,
		backoffCoeff: backoffCoeff,
	}
}

// Run invokes fn until it succeeds or attempts are exhausted, calling
// onRetry before each re-attempt. Returns the last error.
func (r *Retryer) Run(fn func() error, onRetry func(attempt int, err error)) error {
	var err error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, err)
			}
			time.Sleep(r.retryInterval(attempt - 1))
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func (r *Retryer) retryInterval(retryCount int) time.Duration {
	coeff := math.Pow(float64(r.backoffCoeff), float64(retryCount))
	return time.Duration(float64(r.interval.Milliseconds())*coeff) * time.Millisecond
}
