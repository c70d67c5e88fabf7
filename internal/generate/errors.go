package generate

import (
	"errors"
	"fmt"
)

// ErrSamplingParameter is matched by every SamplingParameterError.
var ErrSamplingParameter = errors.New("invalid sampling parameter")

// SamplingParameterError reports an out-of-range generation setting.
type SamplingParameterError struct {
	Name   string
	Value  any
	Reason string
}

// Error implements the error interface.
func (e *SamplingParameterError) Error() string {
	return fmt.Sprintf("%v: %s=%v: %s", ErrSamplingParameter, e.Name, e.Value, e.Reason)
}

// Is matches ErrSamplingParameter.
func (e *SamplingParameterError) Is(target error) bool {
	return target == ErrSamplingParameter
}
