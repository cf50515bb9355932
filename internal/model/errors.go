package model

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks a problem definition that can never be solved as
// given: bad branching factors, missing bounds, unknown names and the like.
var ErrConfiguration = errors.New("configuration error")

type ConfigError struct {
	Component string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Component, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

func Configf(component, format string, args ...any) error {
	return &ConfigError{Component: component, Reason: fmt.Sprintf(format, args...)}
}
