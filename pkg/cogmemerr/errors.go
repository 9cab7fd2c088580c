// Package cogmemerr defines the visible error taxonomy shared by every
// component so the protocol surface can map any error to a structured
// envelope without inspecting component-internal types.
package cogmemerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Components return these (wrapped with fmt.Errorf("%w: ...")
// for context) rather than ad-hoc error strings, so errors.Is/As keeps
// working all the way up to the protocol surface.
var (
	// ErrValidation marks an argument that failed schema or domain validation
	// (weights don't sum to 1, depth out of range, empty source_ids, reward
	// outside [-1,1]).
	ErrValidation = errors.New("validation error")

	// ErrNotConnected marks use of a subsystem before its pool/client is
	// initialized.
	ErrNotConnected = errors.New("not connected")

	// ErrStorage marks a database operation that failed after pool retry.
	ErrStorage = errors.New("storage error")

	// ErrPoolExhausted marks unavailability of a connection within the
	// acquire timeout.
	ErrPoolExhausted = errors.New("pool exhausted")

	// ErrEmbedding marks terminal failure of the embedding client. No
	// fallback exists for this path.
	ErrEmbedding = errors.New("embedding error")

	// ErrJudgeUnavailable marks terminal failure of the judge client while
	// the fallback controller is not yet active for it.
	ErrJudgeUnavailable = errors.New("judge unavailable")

	// ErrSchema marks an external API response that didn't conform to the
	// expected shape after the parse-retry budget was exhausted.
	ErrSchema = errors.New("schema error")

	// ErrNotFound marks a named entity (typically a graph node) absent
	// where one was required.
	ErrNotFound = errors.New("not found")
)

// ValidationError carries the offending field and a human-readable reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: field %q: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validation builds a *ValidationError wrapping ErrValidation.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Kind classifies an error into one of the visible taxonomy kinds for the
// protocol error envelope. Falls back to "InternalError" for anything
// unrecognized — no exception ever escapes the process uncategorized.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrNotConnected):
		return "NotConnected"
	case errors.Is(err, ErrPoolExhausted):
		return "PoolExhausted"
	case errors.Is(err, ErrStorage):
		return "StorageError"
	case errors.Is(err, ErrEmbedding):
		return "EmbeddingError"
	case errors.Is(err, ErrJudgeUnavailable):
		return "JudgeUnavailable"
	case errors.Is(err, ErrSchema):
		return "SchemaError"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	default:
		return "InternalError"
	}
}
