//go:build windows

package tools

import (
	"os/exec"
	"syscall"
)

func newGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// sendSigterm has no equivalent on Windows; the soft-timeout tier degrades
// straight to a hard kill instead of a graceful signal.
func (e *LocalExecutor) sendSigterm(cmd *exec.Cmd) {
	e.killProcessGroup(cmd)
}

func (e *LocalExecutor) killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
