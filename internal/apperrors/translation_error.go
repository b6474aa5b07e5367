package apperrors

import "fmt"

// ErrorKind enumerates the failure categories spec.md §7 assigns different
// propagation behavior to.
type ErrorKind string

const (
	// KindTransient covers network timeouts, connection resets, and 5xx
	// responses: retried by the translation manager, surfaced only after
	// max_retries is exhausted.
	KindTransient ErrorKind = "transient"
	// KindRateLimited covers HTTP 429 and provider-specific rate-limit
	// signals: retried with the same backoff, and counted as evidence for
	// downshifting adaptive concurrency.
	KindRateLimited ErrorKind = "rate_limited"
	// KindContentFiltered marks an LLM safety-filter refusal.
	KindContentFiltered ErrorKind = "content_filtered"
	// KindQuotaExceeded marks a backend-reported quota exhaustion.
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	// KindStructural covers unparseable input (bad .rpy line, corrupt
	// .rpyc, undecodable bytes): the offending item is skipped, not retried.
	KindStructural ErrorKind = "structural"
	// KindFatal covers pipeline-abort conditions (spec.md §7).
	KindFatal ErrorKind = "fatal"
)

// TranslationError is the discriminated "Err" arm of the translation result
// sum type called for by spec.md §9 ("exceptions as signals → sum types").
// A TranslationResult with Success=false always carries one of these as its
// Error field's underlying cause.
type TranslationError struct {
	Kind   ErrorKind
	Detail string
	Cause  error
}

func (e *TranslationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *TranslationError) Unwrap() error { return e.Cause }

// Retryable reports whether the manager's retry loop should attempt this
// request again.
func (e *TranslationError) Retryable() bool {
	switch e.Kind {
	case KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}

// NewTranslationError builds a TranslationError.
func NewTranslationError(kind ErrorKind, detail string, cause error) *TranslationError {
	return &TranslationError{Kind: kind, Detail: detail, Cause: cause}
}
