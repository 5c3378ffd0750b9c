//go:build unix

package main

import (
	"os/exec"
	"syscall"
)

// configureDaemonProcess puts pyquestd in its own process group so it
// outlives the terminal
func configureDaemonProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
