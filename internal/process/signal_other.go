//go:build !unix

package process

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

// Interrupts cannot be delivered to other processes here, so the graceful
// phase is a plain kill.
func (h *handle) terminate() error {
	return h.kill()
}

func (h *handle) kill() error {
	return h.cmd.Process.Kill()
}
