//go:build !linux

package player

import "os/exec"

func setPdeathsig(cmd *exec.Cmd) {}
