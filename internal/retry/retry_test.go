package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/smithy-go"

	"github.com/coldvault/vaultup/internal/glacier"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypeSuccess},
		{"canceled", context.Canceled, ErrorTypeFatal},
		{"deadline", context.DeadlineExceeded, ErrorTypeFatal},
		{"not found", fmt.Errorf("list: %w", glacier.ErrNotFound), ErrorTypeFatal},
		{"connection reset", errors.New("read tcp: connection reset by peer"), ErrorTypeNetwork},
		{"refused", errors.New("dial tcp: connection refused"), ErrorTypeNetwork},
		{"timeout", errors.New("i/o timeout"), ErrorTypeNetwork},
		{"throttled", errors.New("ThrottlingException: rate exceeded"), ErrorTypeRetryable},
		{"typed throttle", &smithy.GenericAPIError{Code: "ThrottlingException", Fault: smithy.FaultClient}, ErrorTypeRetryable},
		{"typed server fault", &smithy.GenericAPIError{Code: "UnrecognizedException", Fault: smithy.FaultServer}, ErrorTypeRetryable},
		{"typed client fault", &smithy.GenericAPIError{Code: "MissingParameterValueException", Fault: smithy.FaultClient}, ErrorTypeFatal},
		{"server error", errors.New("https response error StatusCode: 503"), ErrorTypeRetryable},
		{"bad request", errors.New("InvalidParameterValueException"), ErrorTypeFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, TypeName(got), TypeName(tt.want))
			}
		})
	}
}

func TestDoSucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
}

func TestDoStopsOnFatalError(t *testing.T) {
	fatal := errors.New("InvalidSignatureException")
	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Errorf("Do() error = %v, want the fatal error unchanged", err)
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	transient := errors.New("service unavailable")
	calls := 0
	var retries []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, errType ErrorType) {
		retries = append(retries, attempt)
		if errType != ErrorTypeRetryable {
			t.Errorf("OnRetry errType = %s, want retryable", TypeName(errType))
		}
	}

	err := Do(context.Background(), cfg, func() error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Errorf("Do() error = %v, want wrapped transient error", err)
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retries)
	}
}

func TestDoHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, fastConfig(5), func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("operation called %d times after cancellation, want 0", calls)
	}
}

func TestBackoffBounds(t *testing.T) {
	initial := 100 * time.Millisecond
	maxDelay := time.Second

	if got := Backoff(0, initial, maxDelay); got != 0 {
		t.Errorf("Backoff(0) = %v, want 0", got)
	}

	for attempt := 1; attempt <= 10; attempt++ {
		upper := time.Duration(1<<uint(attempt)) * initial
		if upper > maxDelay {
			upper = maxDelay
		}
		for i := 0; i < 20; i++ {
			d := Backoff(attempt, initial, maxDelay)
			if d < 0 || d >= upper {
				t.Fatalf("Backoff(%d) = %v, want in [0, %v)", attempt, d, upper)
			}
		}
	}
}
