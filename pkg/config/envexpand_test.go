package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "braced substitution",
			input: "dsn: ${DATABASE_DSN}",
			env:   map[string]string{"DATABASE_DSN": "postgres://localhost/cogmem"},
			want:  "dsn: postgres://localhost/cogmem",
		},
		{
			name:  "bare substitution",
			input: "dsn: $DATABASE_DSN",
			env:   map[string]string{"DATABASE_DSN": "postgres://localhost/cogmem"},
			want:  "dsn: postgres://localhost/cogmem",
		},
		{
			name:  "missing variable expands to empty",
			input: "key: ${MISSING_VAR}",
			env:   map[string]string{},
			want:  "key: ",
		},
		{
			name:  "no substitution when no variables",
			input: "static: value",
			env:   map[string]string{"UNUSED": "value"},
			want:  "static: value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			result := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(result))
		})
	}
}
