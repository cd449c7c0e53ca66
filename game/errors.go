package game

import (
	"errors"
	"fmt"
)

// MinSize is the smallest grid that always leaves room for food.
const MinSize = 2

var (
	// ErrInvalidAction is returned for action codes outside {0,1,2}.
	ErrInvalidAction = errors.New("invalid action")
	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("invalid configuration")
)

// ConfigurationError reports an environment that cannot be built or restored.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
