package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// OCIBackend executes the analysis inside an OCI container through a
// runc-compatible runtime. It writes a bundle config next to the
// workspace: the operator-provided rootfs is mounted read-only, the
// workspace is bound at /workspace with only output/ and tmp/ writable,
// and the container gets fresh pid/ipc/uts/mount/network namespaces, so
// outbound network access fails by construction.
type OCIBackend struct {
	runtime string
	rootfs  string
}

// NewOCIBackend creates the backend. runtime defaults to "runc"; the
// rootfs must contain the analysis interpreters and is configured via
// SetRootFS.
func NewOCIBackend(runtime string) *OCIBackend {
	if runtime == "" {
		runtime = "runc"
	}
	return &OCIBackend{runtime: runtime}
}

// SetRootFS points the backend at the container root filesystem.
func (b *OCIBackend) SetRootFS(path string) { b.rootfs = path }

func (b *OCIBackend) Name() string { return "oci" }

func (b *OCIBackend) Command(spec *Spec) (*exec.Cmd, error) {
	if b.rootfs == "" {
		return nil, fmt.Errorf("oci backend requires a rootfs")
	}

	bundleDir := filepath.Join(spec.WorkDir, ".bundle")
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bundle directory: %w", err)
	}
	if err := b.writeConfig(bundleDir, spec); err != nil {
		return nil, err
	}

	containerID := "axon-" + filepath.Base(spec.WorkDir)
	cmd := exec.Command(b.runtime, "run", "--bundle", bundleDir, containerID)
	cmd.Dir = spec.WorkDir
	cmd.Env = spec.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd, nil
}

// writeConfig renders the OCI runtime spec for one job.
func (b *OCIBackend) writeConfig(bundleDir string, spec *Spec) error {
	uid := uint32(spec.UID)
	gid := uint32(spec.GID)

	var rlimits []specs.POSIXRlimit
	if spec.Limits.MaxCPU > 0 {
		secs := uint64(spec.Limits.MaxCPU.Seconds())
		rlimits = append(rlimits, specs.POSIXRlimit{Type: "RLIMIT_CPU", Soft: secs, Hard: secs + 1})
	}
	if spec.Limits.MaxMem > 0 {
		mem := uint64(spec.Limits.MaxMem)
		rlimits = append(rlimits, specs.POSIXRlimit{Type: "RLIMIT_AS", Soft: mem, Hard: mem})
	}
	if spec.Limits.MaxOut > 0 {
		out := uint64(spec.Limits.MaxOut)
		rlimits = append(rlimits, specs.POSIXRlimit{Type: "RLIMIT_FSIZE", Soft: out, Hard: out})
	}

	args := append([]string{spec.Program}, spec.Args...)

	cfg := &specs.Spec{
		Version: specs.Version,
		Root: &specs.Root{
			Path:     b.rootfs,
			Readonly: true,
		},
		Process: &specs.Process{
			Cwd:             "/workspace",
			Args:            args,
			Env:             spec.Env,
			User:            specs.User{UID: uid, GID: gid},
			Rlimits:         rlimits,
			NoNewPrivileges: true,
		},
		Hostname: "analysis",
		Mounts: []specs.Mount{
			{Destination: "/proc", Type: "proc", Source: "proc"},
			{Destination: "/dev", Type: "tmpfs", Source: "tmpfs", Options: []string{"nosuid", "strictatime", "mode=755", "size=65536k"}},
			{Destination: "/workspace", Type: "bind", Source: spec.WorkDir, Options: []string{"rbind", "ro"}},
			{Destination: "/workspace/output", Type: "bind", Source: filepath.Join(spec.WorkDir, "output"), Options: []string{"rbind", "rw"}},
			{Destination: "/workspace/tmp", Type: "bind", Source: filepath.Join(spec.WorkDir, "tmp"), Options: []string{"rbind", "rw"}},
		},
		Linux: &specs.Linux{
			Namespaces: []specs.LinuxNamespace{
				{Type: specs.PIDNamespace},
				{Type: specs.IPCNamespace},
				{Type: specs.UTSNamespace},
				{Type: specs.MountNamespace},
				// A fresh, interface-less network namespace: socket
				// creation to non-loopback destinations fails.
				{Type: specs.NetworkNamespace},
			},
			MaskedPaths: []string{
				"/proc/kcore",
				"/proc/keys",
				"/proc/timer_list",
				"/sys/firmware",
			},
			ReadonlyPaths: []string{
				"/proc/bus",
				"/proc/fs",
				"/proc/irq",
				"/proc/sys",
				"/proc/sysrq-trigger",
			},
		},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal oci config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(bundleDir, "config.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write oci config: %w", err)
	}
	return nil
}

// Confine is a no-op: limits are part of the bundle config.
func (b *OCIBackend) Confine(cmd *exec.Cmd, spec *Spec) error {
	return nil
}

// Terminate signals the runtime's process group; foreground runtimes
// forward the signal to the container process.
func (b *OCIBackend) Terminate(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGTERM)
}

func (b *OCIBackend) Kill(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGKILL)
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return syscall.Kill(-cmd.Process.Pid, sig)
}
