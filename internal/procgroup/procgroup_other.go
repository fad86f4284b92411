//go:build !unix

package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"time"
)

// Configure makes cancellation kill the process. Process groups are not
// available on this platform.
func Configure(cmd *exec.Cmd, grace time.Duration) {
	cmd.Cancel = func() error { return Kill(cmd) }
	if grace > 0 {
		cmd.WaitDelay = grace
	}
}

// Signal delivers sig to the process.
func Signal(cmd *exec.Cmd, sig os.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}

// Kill terminates the process.
func Kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// ExitCode extracts the exit status from a Wait error.
func ExitCode(err error) (int, bool) {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 0, false
	}
	return exitErr.ExitCode(), true
}
