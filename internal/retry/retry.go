// Package retry implements bounded retry with error classification and
// exponential backoff, shared by every remote call in the tool.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/aws/smithy-go"

	"github.com/coldvault/vaultup/internal/glacier"
)

// ErrorType classifies a failure for retry strategy.
type ErrorType int

const (
	// ErrorTypeSuccess indicates the operation succeeded.
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeNetwork indicates connection-level trouble (timeouts,
	// resets, refused connections).
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server-side errors worth retrying
	// (throttling, 5xx, request timeouts).
	ErrorTypeRetryable
	// ErrorTypeFatal indicates errors that retrying cannot fix (bad
	// request, missing vault or session).
	ErrorTypeFatal
)

// Config holds the retry parameters for Do.
type Config struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// InitialDelay is the base delay for exponential backoff.
	InitialDelay time.Duration
	// MaxDelay caps the backoff between attempts.
	MaxDelay time.Duration
	// OnRetry, when set, is invoked before each retry sleep.
	OnRetry func(attempt int, err error, errType ErrorType)
}

// DefaultConfig returns the retry parameters used for control-plane calls
// (initiate, list, complete, abort, jobs).
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     15 * time.Second,
	}
}

// Classify determines the error type for retry strategy. Unknown errors
// are treated as fatal so a genuinely broken call cannot loop forever.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeFatal
	}
	if errors.Is(err, glacier.ErrNotFound) {
		return ErrorTypeFatal
	}

	// A typed service error carries its own verdict; fall back to string
	// matching only for plain transport errors.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "RequestTimeoutException", "ServiceUnavailableException",
			"ThrottlingException", "InternalServerError":
			return ErrorTypeRetryable
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return ErrorTypeRetryable
		}
		return ErrorTypeFatal
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "tls handshake timeout") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	if strings.Contains(errStr, "requesttimeout") ||
		strings.Contains(errStr, "internalerror") ||
		strings.Contains(errStr, "serviceunavailable") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "throttl") ||
		strings.Contains(errStr, "slow down") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return ErrorTypeRetryable
	}

	return ErrorTypeFatal
}

// Backoff returns the exponential backoff duration for an attempt with
// full jitter: random(0, min(maxDelay, initialDelay * 2^attempt)). Full
// jitter spreads simultaneous retries apart.
func Backoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	base := time.Duration(1<<uint(attempt)) * initialDelay
	if base > maxDelay {
		base = maxDelay
	}
	return time.Duration(rand.Int63n(int64(base)))
}

// Do runs an operation with bounded retries. Fatal errors and context
// cancellation return immediately; network and server errors back off and
// retry until the attempt budget runs out.
func Do(ctx context.Context, cfg Config, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		errType := Classify(err)
		if errType == ErrorTypeFatal {
			return err
		}

		if attempt < cfg.MaxAttempts-1 {
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt+1, err, errType)
			}
			backoff := Backoff(attempt, cfg.InitialDelay, cfg.MaxDelay)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// TypeName returns a human-readable name for an ErrorType.
func TypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
