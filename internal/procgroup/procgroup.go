// SPDX-License-Identifier: MIT

// Package procgroup manages the process group of a spawned transcoder.
// ffmpeg can fork helpers; killing only the leader leaves orphans chewing
// CPU, so the command must be started as a group leader (Set) and stopped
// as a group (Terminate).
package procgroup

import (
	"os/exec"
	"syscall"
	"time"
)

// Set configures cmd to start in its own process group. Must be called
// before cmd.Start for Terminate to reach child processes.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate stops the process group behind cmd: SIGTERM first, SIGKILL when
// the group is still alive after grace. waitCh must carry the result of
// cmd.Wait; its value is consumed and returned. Safe on nil commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = kill(cmd, syscall.SIGTERM)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	_ = kill(cmd, syscall.SIGKILL)
	return <-waitCh
}
