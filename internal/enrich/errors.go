package enrich

import (
	"errors"
	"fmt"
)

// FailureKind classifies a fetch failure for the systemic response decision.
type FailureKind int

const (
	// FailureUpstream covers transport errors and unexpected HTTP statuses.
	FailureUpstream FailureKind = iota + 1
	// FailureRateLimited marks an HTTP 429-class rejection.
	FailureRateLimited
	// FailureParse marks a malformed or unparseable upstream response,
	// usually upstream schema drift.
	FailureParse
	// FailureConfig marks a permanent configuration failure (invalid API
	// credential, unreachable host). It never feeds the circuit breaker
	// and aborts the run.
	FailureConfig
)

// String names the kind for diagnostics.
func (k FailureKind) String() string {
	switch k {
	case FailureUpstream:
		return "upstream"
	case FailureRateLimited:
		return "rate_limited"
	case FailureParse:
		return "parse"
	case FailureConfig:
		return "configuration"
	default:
		return "unknown"
	}
}

// FetchError is the value form of a failed fetch. Tasks convert every
// remote-API failure into one of these; only the single-writer loop decides
// the systemic response.
type FetchError struct {
	Kind FailureKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Failure wraps err with the given classification.
func Failure(kind FailureKind, err error) error {
	return &FetchError{Kind: kind, Err: err}
}

// Failuref builds a classified failure from a format string.
func Failuref(kind FailureKind, format string, args ...any) error {
	return &FetchError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the classification, or zero if err is not a FetchError.
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsFatal reports whether err must abort the whole run instead of being
// counted by the circuit breaker.
func IsFatal(err error) bool {
	return KindOf(err) == FailureConfig
}
