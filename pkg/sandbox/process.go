package sandbox

import (
	"os/exec"
	"syscall"
)

// ProcessBackend runs the analysis as a direct child process in its own
// process group with a scrubbed environment, dropped privileges when
// configured, and kernel resource limits applied after start. It is the
// default backend; operators needing full filesystem and network
// namespacing run the oci backend instead.
type ProcessBackend struct{}

func (b *ProcessBackend) Name() string { return "process" }

func (b *ProcessBackend) Command(spec *Spec) (*exec.Cmd, error) {
	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.WorkDir
	cmd.Env = spec.Env

	attr := &syscall.SysProcAttr{Setpgid: true}
	if spec.UID != 0 || spec.GID != 0 {
		attr.Credential = &syscall.Credential{
			Uid: uint32(spec.UID),
			Gid: uint32(spec.GID),
		}
	}
	cmd.SysProcAttr = attr
	return cmd, nil
}

// Terminate signals the whole process group so grandchildren cannot
// outlive the script.
func (b *ProcessBackend) Terminate(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGTERM)
}

func (b *ProcessBackend) Kill(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGKILL)
}
