package tasks

import (
	"fmt"
	"os"
	"strings"
)

// StartupTask is one idempotent command run before the application starts.
type StartupTask struct {
	Name         string
	Command      []string
	Dir          string
	Env          map[string]string
	BestEffort   bool
	Precondition Precondition
}

func (t StartupTask) String() string {
	return strings.Join(t.Command, " ")
}

// Precondition reports whether a task should run and, if not, why.
// Implementations must not have side effects.
type Precondition func() (ok bool, reason string)

func (t StartupTask) shouldRun() (bool, string) {
	if t.Precondition == nil {
		return true, ""
	}
	return t.Precondition()
}

// Enabled runs the task only when a configuration flag is on.
func Enabled(name string, on bool) Precondition {
	return func() (bool, string) {
		if on {
			return true, ""
		}
		return false, name + " is disabled"
	}
}

func FileExists(path string) Precondition {
	return func() (bool, string) {
		info, err := os.Stat(path)
		if err != nil {
			return false, fmt.Sprintf("%s does not exist", path)
		}
		if info.IsDir() {
			return false, fmt.Sprintf("%s is a directory", path)
		}
		return true, ""
	}
}

// All short-circuits on the first failing precondition.
func All(ps ...Precondition) Precondition {
	return func() (bool, string) {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if ok, reason := p(); !ok {
				return false, reason
			}
		}
		return true, ""
	}
}
