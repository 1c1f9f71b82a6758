//go:build unix

package launch

import (
	"os"
	"syscall"
)

const execSupported = true

var forwardedSignals = []os.Signal{
	syscall.SIGTERM,
	syscall.SIGINT,
	syscall.SIGHUP,
	syscall.SIGQUIT,
	syscall.SIGUSR1,
	syscall.SIGUSR2,
}

func execve(path string, argv []string, env []string) error {
	return syscall.Exec(path, argv, env)
}
