//go:build !unix

package transcoder

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func signalTerm(pid int) error {
	return signalKill(pid)
}

func signalKill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return proc.Kill()
}
