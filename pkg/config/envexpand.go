package config

import "os"

// ExpandEnv expands environment variables in YAML content using Go's
// standard ${VAR}/$VAR shell-style syntax. Missing variables expand to
// empty string; validation catches any required field left empty by that.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
