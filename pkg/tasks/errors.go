package tasks

import (
	"fmt"
	"strings"
)

// TaskError is a required task that failed. It aborts startup.
type TaskError struct {
	Task string
	Err  error
	// Tail holds the last lines the command wrote, if captured.
	Tail []string
}

func (e *TaskError) Error() string {
	msg := fmt.Sprintf("startup task %q failed: %v", e.Task, e.Err)
	if len(e.Tail) > 0 {
		msg += "\n  " + strings.Join(e.Tail, "\n  ")
	}
	return msg
}

func (e *TaskError) Unwrap() error { return e.Err }
