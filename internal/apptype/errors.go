package apptype

import (
	"errors"
	"fmt"
)

// Sentinel errors for the two failure classes that propagate to callers as
// hard errors. Everything else degrades to a partial or empty success.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
)

// ProviderError wraps a failure from an external provider (embeddings or
// chat). Embedding failures abort the enclosing operation; chat failures are
// expected to be caught and degraded at the call site.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// InvalidRequestf builds an ErrInvalidRequest with a detail message.
func InvalidRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// NotFoundf builds an ErrNotFound with a detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
