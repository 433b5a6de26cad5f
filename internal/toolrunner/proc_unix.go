//go:build !windows

package toolrunner

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the tool in its own process group so that
// cancellation also stops the children HEASoft scripts spawn.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
