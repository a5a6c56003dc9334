//go:build unix

package encoding

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// isolate puts the encoder in its own process group so a kill reaches any
// helpers it spawned and the stdout pipe is released.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func hardKill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return cmd.Process.Kill()
	}
	return nil
}
