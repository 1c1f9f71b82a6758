package config

import "fmt"

// Error reports a malformed configuration value. It is always fatal.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
