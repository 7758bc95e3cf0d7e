//go:build windows

package envy

import "os/exec"

func configureCommandProcess(cmd *exec.Cmd) {}
