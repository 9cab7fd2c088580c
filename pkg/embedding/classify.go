package embedding

import "errors"

// permanentError marks an error the retry wrapper must not retry —
// authentication failures, non-429 4xx responses, and schema-invalid
// responses.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func backoffPermanent(err error) error { return &permanentError{err: err} }

// classifyEmbeddingError reports whether err is worth retrying:
// transport timeouts and 5xx/429 responses are
// retryable, everything marked permanent by callAPI is not.
func classifyEmbeddingError(err error) bool {
	var perm *permanentError
	return !errors.As(err, &perm)
}
