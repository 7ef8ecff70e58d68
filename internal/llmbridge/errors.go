package llmbridge

import (
	"errors"
	"fmt"

	"github.com/localretrieve/localretrieve/internal/apperrors"
)

// Error categories per spec.md §4.6. 4xx and config errors are
// non-retryable; timeouts are never retried by the bridge itself (the
// caller's deadline has already been exceeded); 5xx/network errors are
// retried up to the configured limit.
const (
	CategoryInvalidConfig = "InvalidConfig"
	CategoryProviderError = "ProviderError"
	CategoryTimeout       = "Timeout"
	CategoryParse         = "Parse"
	CategoryNetwork       = "Network"
)

// retryableError marks a provider round trip as eligible for the bridge's
// retry loop.
type retryableError struct {
	err error
}

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

func newError(category, component, operation string, err error) *apperrors.Error {
	e := apperrors.New(apperrors.KindLLM, apperrors.SeverityMedium, component, operation, err)
	e.Recoverable = category == CategoryProviderError || category == CategoryNetwork
	e.WithParams(map[string]any{"category": category})
	return e
}

// newProviderError builds the error for a non-2xx HTTP response, wrapping it
// as retryable when the status is a server error or rate limiting (429).
func newProviderError(component, operation string, status int, body string) error {
	wrapped := newError(CategoryProviderError, component, operation, fmt.Errorf("provider returned status %d: %s", status, body))
	wrapped.WithParams(map[string]any{"category": CategoryProviderError, "status": status})
	if status >= 500 || status == 429 {
		return &retryableError{err: wrapped}
	}
	return wrapped
}

// newParseError wraps a JSON-parse failure from the model's response,
// carrying a bounded prefix of the raw text for diagnostics per spec.md §4.6.
func newParseError(component, operation string, cause error, raw string) error {
	const maxRawLen = 2000
	if len(raw) > maxRawLen {
		raw = raw[:maxRawLen]
	}
	e := newError(CategoryParse, component, operation, cause)
	e.WithParams(map[string]any{"category": CategoryParse, "raw_text": raw})
	return e
}
