package model

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrConfig          = errors.New("invalid model config")
	ErrConfigNotFound  = errors.New("model config not found")
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrWeightsNotFound = errors.New("model weights not found")
)

// ConfigError reports an invalid configuration field or a request the
// configuration cannot serve (e.g. a sequence longer than MaxSeqLength).
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrConfig, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrConfig, e.Field, e.Reason)
}

// Is matches ErrConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// ShapeMismatchError reports inputs or tensors whose shape does not match
// what the model expects.
type ShapeMismatchError struct {
	What    string
	Details string
}

// Error implements the error interface.
func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrShapeMismatch, e.What, e.Details)
}

// Is matches ErrShapeMismatch.
func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}
