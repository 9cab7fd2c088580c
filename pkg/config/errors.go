package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates the configuration file was not found.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates a resolved value was out of its
	// documented range.
	ErrValidationFailed = errors.New("configuration validation failed")
)

// LoadError wraps a configuration loading error with file context.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("failed to load %s: %v", e.File, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError builds a *LoadError.
func NewLoadError(file string, err error) *LoadError { return &LoadError{File: file, Err: err} }

// FieldError wraps a single out-of-range configuration value.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("field %q: %v", e.Field, e.Err) }
func (e *FieldError) Unwrap() error { return e.Err }
