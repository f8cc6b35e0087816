//go:build unix

package transcoder

import (
	"errors"
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func signalTerm(pid int) error {
	return signal(pid, syscall.SIGTERM)
}

func signalKill(pid int) error {
	return signal(pid, syscall.SIGKILL)
}

// signal targets the group the transcoder leads so ffmpeg helpers die too.
// A missing group or process means it already exited.
func signal(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
