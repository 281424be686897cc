// Package sandbox runs external reconnaissance binaries with a timeout, a
// minimal environment and bounded output capture.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Runtime selects where commands are executed.
type Runtime string

const (
	// RuntimeHost runs binaries installed on the host.
	RuntimeHost Runtime = "host"
	// RuntimeDocker runs binaries inside an ephemeral container.
	RuntimeDocker Runtime = "docker"
)

// Config defines sandbox configuration
type Config struct {
	Runtime        Runtime           `json:"runtime" mapstructure:"runtime"`
	ResourceLimits ResourceLimits    `json:"resource_limits" mapstructure:"resource_limits"`
	Docker         DockerConfig      `json:"docker" mapstructure:"docker"`
	Env            map[string]string `json:"env" mapstructure:"env"`
}

// ResourceLimits defines resource constraints for one execution
type ResourceLimits struct {
	// MaxCPU limits CPU usage in percent of one core (docker only)
	MaxCPU int `json:"max_cpu" mapstructure:"max_cpu"`

	// MaxMemoryMB limits memory usage (docker only)
	MaxMemoryMB int `json:"max_memory_mb" mapstructure:"max_memory_mb"`

	// MaxProcesses limits the number of processes (docker only)
	MaxProcesses int `json:"max_processes" mapstructure:"max_processes"`

	// Timeout is used when a request carries none
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxOutputBytes caps captured stdout and stderr each; 0 means unlimited
	MaxOutputBytes int `json:"max_output_bytes" mapstructure:"max_output_bytes"`
}

// DockerConfig configures the docker runtime
type DockerConfig struct {
	Image     string   `json:"image" mapstructure:"image"`
	Network   string   `json:"network" mapstructure:"network"`
	User      string   `json:"user" mapstructure:"user"`
	CapDrop   []string `json:"cap_drop" mapstructure:"cap_drop"`
	CapAdd    []string `json:"cap_add" mapstructure:"cap_add"`
	ExtraArgs []string `json:"extra_args" mapstructure:"extra_args"`
}

// ExecuteRequest represents a sandbox execution request
type ExecuteRequest struct {
	Command string
	Args    []string
	Env     map[string]string
	Timeout time.Duration
}

// ExecuteResult represents a sandbox execution result
type ExecuteResult struct {
	Stdout    []byte
	Stderr    []byte
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// Sandbox executes commands on behalf of local tools.
type Sandbox interface {
	// Execute runs a command and waits for it to finish. A non-zero exit code
	// is not an error; a missing binary yields ErrCommandNotFound and an
	// expired timeout ErrExecutionTimeout.
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)

	// LookPath reports whether command can be executed by this sandbox.
	LookPath(command string) (string, error)

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// DefaultConfig returns a default sandbox configuration
func DefaultConfig() Config {
	return Config{
		Runtime: RuntimeHost,
		ResourceLimits: ResourceLimits{
			MaxCPU:         100,
			MaxMemoryMB:    512,
			MaxProcesses:   64,
			Timeout:        60 * time.Second,
			MaxOutputBytes: 1 << 20,
		},
		Docker: DockerConfig{
			Image:   "instrumentisto/nmap:latest",
			Network: "bridge",
			CapDrop: []string{"ALL"},
			CapAdd:  []string{"NET_RAW"},
		},
	}
}

// ValidateConfig validates a sandbox configuration
func ValidateConfig(cfg Config) error {
	switch cfg.Runtime {
	case RuntimeHost, RuntimeDocker:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRuntime, cfg.Runtime)
	}

	if cfg.ResourceLimits.MaxCPU < 0 {
		return ErrInvalidCPULimit
	}
	if cfg.ResourceLimits.MaxMemoryMB < 0 {
		return ErrInvalidMemoryLimit
	}
	if cfg.ResourceLimits.MaxProcesses < 0 {
		return ErrInvalidProcessLimit
	}
	if cfg.ResourceLimits.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if cfg.ResourceLimits.MaxOutputBytes < 0 {
		return ErrInvalidOutputLimit
	}

	if cfg.Runtime == RuntimeDocker && cfg.Docker.Image == "" {
		return ErrDockerImageRequired
	}

	return nil
}

// New creates a sandbox for the configured runtime.
func New(cfg Config) (Sandbox, error) {
	if cfg.Runtime == "" {
		cfg.Runtime = RuntimeHost
	}

	switch cfg.Runtime {
	case RuntimeDocker:
		return NewDockerSandbox(cfg)
	default:
		return NewHostSandbox(cfg)
	}
}
