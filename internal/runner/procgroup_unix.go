//go:build unix

package runner

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the program in its own process group and makes
// cancellation kill the whole group, so helpers it spawned cannot keep the
// output pipes open after a timeout.
func setProcessGroup(proc *exec.Cmd) {
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	proc.Cancel = func() error {
		if proc.Process == nil {
			return nil
		}
		err := syscall.Kill(-proc.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}
