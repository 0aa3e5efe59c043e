package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is returned by a Store when the natural key already exists.
	ErrConflict = errors.New("incident already stored")

	// ErrNotConfigured marks a source that cannot run because a required
	// setting, usually an API credential, is missing.
	ErrNotConfigured = errors.New("source not configured")

	// ErrUnknownSource is matched by UnknownSourceError.
	ErrUnknownSource = errors.New("unknown source")
)

// UnknownSourceError reports a source name with no registered adapter.
type UnknownSourceError struct {
	Name string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source %q", e.Name)
}

func (e *UnknownSourceError) Is(target error) bool {
	return target == ErrUnknownSource
}

// NotConfigured wraps ErrNotConfigured with the missing setting.
func NotConfigured(source Source, setting string) error {
	return fmt.Errorf("%w: %s requires %s", ErrNotConfigured, source, setting)
}
