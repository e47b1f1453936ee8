//go:build unix

package service

import (
	"errors"
	"os"
	"syscall"
)

// sysProcAttr puts the child into its own process group, so terminate reaches
// the processes it spawns too.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	err := syscall.Kill(-p.Pid, syscall.SIGTERM)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return p.Signal(syscall.SIGTERM)
}

// killGroup kills whatever is left of the process group after the leader exited.
func killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
