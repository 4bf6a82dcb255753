//go:build unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// The child gets its own process group so that signals also reach
// anything it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func (h *handle) terminate() error {
	return h.signalGroup(unix.SIGTERM)
}

func (h *handle) kill() error {
	return h.signalGroup(unix.SIGKILL)
}

func (h *handle) signalGroup(sig syscall.Signal) error {
	err := unix.Kill(-h.pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
