//go:build !unix

package launch

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

const execSupported = false

var forwardedSignals = []os.Signal{
	syscall.SIGTERM,
	syscall.SIGINT,
}

func execve(path string, argv []string, env []string) error {
	return errors.New("process replacement is not supported on this platform")
}
