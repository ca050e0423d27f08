//go:build linux

package player

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setPdeathsig makes the kernel kill the engine if the daemon dies, so
// playback never outlives parental supervision.
func setPdeathsig(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Pdeathsig = unix.SIGKILL
}
