//go:build unix

package cgi

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the script in a new process group so that a
// cancelled run takes down anything the script spawned too.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
