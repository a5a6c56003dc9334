//go:build !unix

package encoding

import "os/exec"

func isolate(*exec.Cmd) {}

func hardKill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
