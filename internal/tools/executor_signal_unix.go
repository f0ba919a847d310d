//go:build !windows

package tools

import (
	"os/exec"
	"syscall"
)

// newGroupAttr returns SysProcAttr settings that put the child in its own
// process group, so sendSigterm/killProcessGroup can target the whole tree.
func newGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// sendSigterm asks the process group to terminate gracefully.
func (e *LocalExecutor) sendSigterm(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// killProcessGroup forcefully terminates the process group.
func (e *LocalExecutor) killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
