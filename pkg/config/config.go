package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can say "600s" or "24h".
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings and plain nanosecond ints.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in the string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the node configuration. All paths are resolved relative to
// RootDir unless absolute.
type Config struct {
	// RootDir is the node root; all on-disk state lives under it.
	RootDir string `yaml:"root_dir"`

	// ManifestPath points at the catalog manifest.
	ManifestPath string `yaml:"manifest_path"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
		File  string `yaml:"file"`
	} `yaml:"log"`

	Uploads struct {
		// MaxFileBytes caps a single uploaded file.
		MaxFileBytes int64 `yaml:"max_file_bytes"`
	} `yaml:"uploads"`

	Approval struct {
		// PendingTTL expires requests left undecided for this long.
		PendingTTL Duration `yaml:"pending_ttl"`
	} `yaml:"approval"`

	Runner struct {
		// Slots is the number of concurrent executor slots.
		Slots int `yaml:"slots"`
		// PythonBin and RscriptBin are the interpreters used for analyses.
		PythonBin  string `yaml:"python_bin"`
		RscriptBin string `yaml:"rscript_bin"`
		// RunAsUID/RunAsGID drop child privileges when non-zero.
		RunAsUID int `yaml:"run_as_uid"`
		RunAsGID int `yaml:"run_as_gid"`
		// Sandbox selects the isolation backend: "process" or "oci".
		Sandbox string `yaml:"sandbox"`
		// OCIRuntime is the runc-compatible binary for the oci backend;
		// OCIRootFS is the container root filesystem it runs in.
		OCIRuntime string `yaml:"oci_runtime"`
		OCIRootFS  string `yaml:"oci_rootfs"`

		MaxCPU  Duration `yaml:"max_cpu"`
		MaxWall Duration `yaml:"max_wall"`
		MaxMem  int64    `yaml:"max_mem"`
		MaxOut  int64    `yaml:"max_out"`

		// Retention keeps terminal workspaces around for debugging.
		Retention Duration `yaml:"retention"`
	} `yaml:"runner"`

	Reconciler struct {
		Interval Duration `yaml:"interval"`
	} `yaml:"reconciler"`

	Metrics struct {
		// ListenAddr serves /metrics and /healthz; empty disables it.
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
}

// Default returns the configuration defaults for a node rooted at rootDir.
func Default(rootDir string) *Config {
	cfg := &Config{RootDir: rootDir}
	cfg.ManifestPath = filepath.Join(rootDir, "data", "manifest.json")
	cfg.Log.Level = "info"
	cfg.Uploads.MaxFileBytes = 512 << 20
	cfg.Approval.PendingTTL = Duration(14 * 24 * time.Hour)
	cfg.Runner.Slots = 2
	cfg.Runner.PythonBin = "python3"
	cfg.Runner.RscriptBin = "Rscript"
	cfg.Runner.Sandbox = "process"
	cfg.Runner.MaxCPU = Duration(300 * time.Second)
	cfg.Runner.MaxWall = Duration(600 * time.Second)
	cfg.Runner.MaxMem = 2 << 30
	cfg.Runner.MaxOut = 100 << 20
	cfg.Runner.Retention = Duration(24 * time.Hour)
	cfg.Reconciler.Interval = Duration(30 * time.Second)
	cfg.Metrics.ListenAddr = ":9464"
	return cfg
}

// Load reads a YAML config file on top of the defaults for rootDir.
// A missing file is not an error; the defaults apply.
func Load(path, rootDir string) (*Config, error) {
	cfg := Default(rootDir)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return fmt.Errorf("root_dir must not be empty")
	}
	if c.Runner.Slots < 1 {
		return fmt.Errorf("runner.slots must be >= 1, got %d", c.Runner.Slots)
	}
	if c.Runner.MaxOut <= 0 {
		return fmt.Errorf("runner.max_out must be positive")
	}
	switch c.Runner.Sandbox {
	case "process", "oci":
	default:
		return fmt.Errorf("runner.sandbox must be \"process\" or \"oci\", got %q", c.Runner.Sandbox)
	}
	return nil
}

// StateDir, UploadsDir, WorkDir and AuditLogPath resolve the standard
// layout under the node root.
func (c *Config) StateDir() string   { return filepath.Join(c.RootDir, "state") }
func (c *Config) UploadsDir() string { return filepath.Join(c.RootDir, "uploads") }
func (c *Config) WorkDir() string    { return filepath.Join(c.RootDir, "work") }
func (c *Config) AuditLogPath() string {
	return filepath.Join(c.RootDir, "state", "audit.log")
}
