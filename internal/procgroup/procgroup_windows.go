// SPDX-License-Identifier: MIT

//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

func set(cmd *exec.Cmd) {
	// Process groups are not used on Windows.
}

// kill maps SIGKILL to a hard Process.Kill. SIGTERM has no reliable
// equivalent on Windows and is a no-op; Terminate escalates to SIGKILL
// after the grace period anyway.
func kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if sig == syscall.SIGKILL {
		return cmd.Process.Kill()
	}
	return nil
}
