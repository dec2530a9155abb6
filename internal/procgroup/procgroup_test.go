// SPDX-License-Identifier: MIT

//go:build unix

package procgroup

import (
	"os/exec"
	"testing"
	"time"
)

func TestTerminateNilCommand(t *testing.T) {
	if err := Terminate(nil, nil, time.Second); err != nil {
		t.Errorf("nil command: %v", err)
	}
}

func TestTerminateStopsProcess(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	Set(cmd)
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	start := time.Now()
	_ = Terminate(cmd, waitCh, 5*time.Second)
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("SIGTERM did not stop the process promptly (%s)", elapsed)
	}
}

func TestTerminateKillsTermIgnoringProcess(t *testing.T) {
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 60")
	Set(cmd)
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sh: %v", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	// Give the shell a moment to install the trap.
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	_ = Terminate(cmd, waitCh, 500*time.Millisecond)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("SIGKILL escalation took too long (%s)", elapsed)
	}
}
