//go:build windows

package service

import (
	"os"
	"syscall"
)

// CREATE_NO_WINDOW from the Win32 process creation flags
const createNoWindow = 0x08000000

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}

// terminate kills the process, windows has no SIGTERM equivalent for
// console-less children.
func terminate(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	return p.Kill()
}

func killGroup(int) {}
