package upload

import (
	"errors"
	"testing"
	"time"
)

func TestRetryerSucceedsFirstTry(t *testing.T) {
	r := NewRetryer(3, time.Millisecond, 2)

	calls := 0
	err := r.Run(func() error {
		calls++
		return nil
	}, nil)

	if err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryerRetriesUntilSuccess(t *testing.T) {
	r := NewRetryer(5, time.Millisecond, 2)

	calls := 0
	retries := 0
	err := r.Run(func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(attempt int, err error) {
		retries++
	})

	if err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if retries != 2 {
		t.Errorf("onRetry calls = %d, want 2", retries)
	}
}

func TestRetryerExhaustsAttempts(t *testing.T) {
	r := NewRetryer(3, time.Millisecond, 1)

	cause := errors.New("permanent")
	calls := 0
	err := r.Run(func() error {
		calls++
		return cause
	}, nil)

	if !errors.Is(err, cause) {
		t.Errorf("Run() = %v, want last error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryerBackoffGrows(t *testing.T) {
	r := NewRetryer(3, 10*time.Millisecond, 2)

	if got := r.retryInterval(0); got != 10*time.Millisecond {
		t.Errorf("interval(0) = %v, want 10ms", got)
	}
	if got := r.retryInterval(1); got != 20*time.Millisecond {
		t.Errorf("interval(1) = %v, want 20ms", got)
	}
	if got := r.retryInterval(2); got != 40*time.Millisecond {
		t.Errorf("interval(2) = %v, want 40ms", got)
	}
}

func TestRetryerClampsBadConfig(t *testing.T) {
	r := NewRetryer(0, time.Millisecond, 0)

	calls := 0
	r.Run(func() error {
		calls++
		return errors.New("x")
	}, nil)
	if calls != 1 {
		t.Errorf("calls = %d, want 1 with clamped attempts", calls)
	}
}
