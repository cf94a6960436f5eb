package embed

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProvider indicates the embedding provider failed: network, auth,
	// rate limiting, or a malformed response. Concrete failures wrap this
	// sentinel via ProviderError.
	ErrProvider = errors.New("embedding provider failure")

	// ErrPartial indicates a bulk run updated some crates but not all.
	ErrPartial = errors.New("partial batch failure")
)

// ProviderError wraps a provider failure with the operation that hit it.
type ProviderError struct {
	Op  string // e.g. "embed", "embed_batch"
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is reports ErrProvider identity so errors.Is(err, ErrProvider) matches.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func providerErr(op string, err error) error {
	return &ProviderError{Op: op, Err: err}
}

// PartialError reports a bulk embedding run where a subset of crates failed.
// Successful updates stay applied; FailedIDs lists the crates to retry.
type PartialError struct {
	FailedIDs []string
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("embedding failed for %d crates: %s",
		len(e.FailedIDs), strings.Join(e.FailedIDs, ", "))
}

// Is reports ErrPartial identity so errors.Is(err, ErrPartial) matches.
func (e *PartialError) Is(target error) bool { return target == ErrPartial }
