//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func configure(cmd *exec.Cmd) {}

func kill(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	return p.Kill()
}
