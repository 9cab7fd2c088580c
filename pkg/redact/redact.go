// Package redact strips secret-shaped substrings (API keys, DSNs, bearer
// tokens) from strings before they reach logs or persisted rows.
package redact

import (
	"regexp"
)

// pattern pairs a compiled matcher with its replacement.
type pattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// builtinPatterns covers the secret shapes this system's own config
// surfaces: embedding/judge API keys and a Postgres DSN with
// an embedded password.
var builtinPatterns = []pattern{
	{
		name:        "postgres_dsn_password",
		regex:       regexp.MustCompile(`(postgres(?:ql)?://[^:@/\s]+:)[^@\s]+(@)`),
		replacement: `${1}***${2}`,
	},
	{
		name:        "bearer_token",
		regex:       regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-]+`),
		replacement: `${1}***`,
	},
	{
		name:        "api_key_kv",
		regex:       regexp.MustCompile(`(?i)((?:api[_-]?key|token|secret)\s*[:=]\s*)["']?[A-Za-z0-9._\-]{8,}["']?`),
		replacement: `${1}***`,
	},
}

// String applies all built-in patterns to s, fail-closed: if applying a
// pattern panics (should never happen with a compiled regexp), the
// original string is replaced with a fixed placeholder rather than
// emitted raw.
func String(s string) (result string) {
	defer func() {
		if recover() != nil {
			result = "[REDACTED: redaction failure]"
		}
	}()

	masked := s
	for _, p := range builtinPatterns {
		masked = p.regex.ReplaceAllString(masked, p.replacement)
	}
	return masked
}

// Error redacts the message of err and returns a new error with the
// redacted text. Returns nil if err is nil.
func Error(err error) error {
	if err == nil {
		return nil
	}
	return &redactedError{msg: String(err.Error())}
}

type redactedError struct{ msg string }

func (e *redactedError) Error() string { return e.msg }
