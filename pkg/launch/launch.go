package launch

import (
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

type Mode string

const (
	// ModeExec replaces the orchestrator's process image with the target.
	ModeExec Mode = "exec"
	// ModeForward runs the target as a child, relays signals and mirrors its exit code.
	ModeForward Mode = "forward"
)

// LaunchSpec is the application's real start command. The orchestrator does
// not interpret it.
type LaunchSpec struct {
	Argv []string
	Env  []string
	Dir  string
}

// LaunchError means the target could not be located or executed.
type LaunchError struct {
	Target string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("cannot launch %q: %v", e.Target, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExitStatus carries the forwarded child's exit status to the entry point.
type ExitStatus struct {
	Code   int
	Signal string
}

func (e *ExitStatus) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("application terminated by %s", e.Signal)
	}
	return fmt.Sprintf("application exited with status %d", e.Code)
}

type Launcher struct {
	Mode Mode
}

func New(mode Mode) *Launcher {
	return &Launcher{Mode: mode}
}

// Launch does not return on success in ModeExec. In ModeForward it returns an
// *ExitStatus once the child has exited.
func (l *Launcher) Launch(spec LaunchSpec) error {
	if len(spec.Argv) == 0 {
		return &LaunchError{Target: "", Err: errors.New("no command given")}
	}
	env := spec.Env
	if env == nil {
		env = os.Environ()
	}

	path, err := exec.LookPath(spec.Argv[0])
	if err != nil {
		return &LaunchError{Target: spec.Argv[0], Err: err}
	}
	if spec.Dir != "" {
		if err := os.Chdir(spec.Dir); err != nil {
			return &LaunchError{Target: spec.Argv[0], Err: errors.Wrap(err, "chdir")}
		}
	}

	mode := l.Mode
	if mode == "" {
		mode = ModeExec
	}
	if mode == ModeExec && !execSupported {
		log.Warn().Msg("process replacement unavailable on this platform; forwarding signals instead")
		mode = ModeForward
	}

	switch mode {
	case ModeExec:
		log.Info().Str("path", path).Strs("argv", spec.Argv).Msg("handing off to application")
		if err := execve(path, spec.Argv, env); err != nil {
			return &LaunchError{Target: spec.Argv[0], Err: err}
		}
		return nil
	case ModeForward:
		return forward(path, spec.Argv, env)
	default:
		return &LaunchError{Target: spec.Argv[0], Err: errors.Errorf("unknown launch mode %q", mode)}
	}
}

func forward(path string, argv []string, env []string) error {
	child := &exec.Cmd{
		Path:   path,
		Args:   argv,
		Env:    env,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, forwardedSignals...)
	defer signal.Stop(sigCh)

	if err := child.Start(); err != nil {
		return &LaunchError{Target: argv[0], Err: err}
	}
	log.Info().Str("path", path).Int("pid", child.Process.Pid).Msg("application started; forwarding signals")

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case s := <-sigCh:
				if !shouldRelay(s, interactive) {
					continue
				}
				_ = child.Process.Signal(s)
			case <-done:
				return
			}
		}
	}()

	waitErr := child.Wait()
	if waitErr == nil {
		return &ExitStatus{Code: 0}
	}
	var ee *exec.ExitError
	if !stderrors.As(waitErr, &ee) {
		return errors.Wrap(waitErr, "wait for application")
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return &ExitStatus{Code: 128 + int(ws.Signal()), Signal: ws.Signal().String()}
	}
	return &ExitStatus{Code: ee.ExitCode()}
}

// shouldRelay drops SIGINT when stdin is a terminal: the child shares the
// terminal's foreground process group and already received it. The signal is
// still caught so the orchestrator outlives the child.
func shouldRelay(s os.Signal, interactive bool) bool {
	return !(interactive && s == os.Interrupt)
}
