package tasks

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/pkg/errors"
)

type Executor interface {
	Execute(ctx context.Context, task StartupTask) error
}

// CommandError is a command that ran and did not exit cleanly.
type CommandError struct {
	ExitCode int    // -1 when killed by a signal
	Signal   string
	Tail     []string
}

func (e *CommandError) Error() string {
	if e.Signal != "" {
		return "killed by " + e.Signal
	}
	return fmt.Sprintf("exit status %d", e.ExitCode)
}

// CommandExecutor runs tasks as child processes with the orchestrator's
// environment plus the task's own, streaming their output through.
type CommandExecutor struct {
	Stdout    io.Writer
	Stderr    io.Writer
	TailLines int
}

func (e *CommandExecutor) Execute(ctx context.Context, task StartupTask) error {
	if len(task.Command) == 0 {
		return errors.Errorf("task %q has no command", task.Name)
	}
	stdout, stderr := e.Stdout, e.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	tailLines := e.TailLines
	if tailLines <= 0 {
		tailLines = 25
	}
	tail := newTailBuffer(tailLines)

	// #nosec G204 -- commands come from the deployment configuration.
	cmd := exec.CommandContext(ctx, task.Command[0], task.Command[1:]...)
	cmd.Dir = task.Dir
	cmd.Env = mergeEnv(os.Environ(), task.Env)
	cmd.Stdout = io.MultiWriter(stdout, tail)
	cmd.Stderr = io.MultiWriter(stderr, tail)

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", task.Command[0])
	}
	waitErr := cmd.Wait()
	if waitErr == nil {
		return nil
	}

	var ee *exec.ExitError
	if !stderrors.As(waitErr, &ee) {
		return errors.Wrap(waitErr, "wait")
	}
	ce := &CommandError{ExitCode: ee.ExitCode(), Tail: tail.Lines()}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		ce.Signal = ws.Signal().String()
	}
	return ce
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := append([]string{}, base...)
	for k, v := range extra {
		out = append(out, k+"="+v)
	}
	return out
}

// tailBuffer keeps the last n lines written to it.
type tailBuffer struct {
	mu      sync.Mutex
	n       int
	lines   []string
	partial strings.Builder
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

const maxPartialLine = 4 << 10

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rest := p
	for len(rest) > 0 {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			if b.partial.Len() < maxPartialLine {
				b.partial.Write(rest)
			}
			break
		}
		if b.partial.Len() < maxPartialLine {
			b.partial.Write(rest[:i])
		}
		b.push(strings.TrimRight(b.partial.String(), "\r"))
		b.partial.Reset()
		rest = rest[i+1:]
	}
	return len(p), nil
}

func (b *tailBuffer) push(line string) {
	b.lines = append(b.lines, line)
	if len(b.lines) > b.n {
		b.lines = append([]string{}, b.lines[len(b.lines)-b.n:]...)
	}
}

func (b *tailBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]string{}, b.lines...)
	if b.partial.Len() > 0 {
		out = append(out, b.partial.String())
		if len(out) > b.n {
			out = out[len(out)-b.n:]
		}
	}
	return out
}
