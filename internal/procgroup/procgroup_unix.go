//go:build unix

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Configure places cmd in a new process group and makes context cancellation
// send SIGTERM to the whole group. If the group has not exited after grace,
// exec escalates to SIGKILL on the leader and Kill is issued to the group.
func Configure(cmd *exec.Cmd, grace time.Duration) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := Signal(cmd, unix.SIGTERM)
		if grace > 0 {
			time.AfterFunc(grace, func() { _ = Kill(cmd) })
		}
		return err
	}
	if grace > 0 {
		cmd.WaitDelay = grace
	}
}

// Signal delivers sig to the process group led by cmd.
func Signal(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Signal(sig)
	}
	if err := unix.Kill(-pgid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// Kill sends SIGKILL to the process group led by cmd.
func Kill(cmd *exec.Cmd) error {
	return Signal(cmd, unix.SIGKILL)
}

// ExitCode extracts the exit status from a Wait error.
func ExitCode(err error) (int, bool) {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 0, false
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		return status.ExitStatus(), true
	}
	return exitErr.ExitCode(), true
}
