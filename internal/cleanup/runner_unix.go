//go:build unix

package cleanup

import (
	"os/exec"
	"syscall"
)

// detach puts the child in a new session so it survives the parent
// terminal closing.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
