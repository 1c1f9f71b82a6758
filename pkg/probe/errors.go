package probe

import (
	"fmt"
	"time"
)

// ConfigError is a malformed dependency description. Probing never starts.
type ConfigError struct {
	Dependency string
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("dependency %q misconfigured: %s", e.Dependency, e.Reason)
}

// TimeoutError means the dependency never became ready within the bound.
type TimeoutError struct {
	Dependency string
	Attempts   int
	Waited     time.Duration
	LastErr    error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("dependency %q not ready after %s (%d attempts)", e.Dependency, e.Waited.Round(time.Millisecond), e.Attempts)
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }
