//go:build !linux

package sandbox

import (
	"os/exec"
)

// Confine is a no-op on platforms without prlimit; the supervisor's wall
// clock polling still enforces MaxWall, and MaxOut is enforced at artifact
// collection. MaxCPU and MaxMem are not enforced on these platforms.
func (b *ProcessBackend) Confine(cmd *exec.Cmd, spec *Spec) error {
	return nil
}
