package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// hostBaseEnv is the whole environment a host process sees, plus Config.Env
// and ExecuteRequest.Env.
var hostBaseEnv = map[string]string{
	"PATH": "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
	"HOME": "/tmp",
	"LANG": "C.UTF-8",
}

// HostSandbox runs binaries installed on the host.
type HostSandbox struct {
	config  Config
	running bool
	mu      sync.RWMutex
}

// NewHostSandbox creates a new host sandbox
func NewHostSandbox(config Config) (*HostSandbox, error) {
	if config.Runtime == "" {
		config.Runtime = RuntimeHost
	}
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HostSandbox{config: config}, nil
}

// Start marks the sandbox as ready
func (h *HostSandbox) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrSandboxAlreadyRunning
	}

	log.Info().
		Str("runtime", string(RuntimeHost)).
		Dur("default_timeout", h.config.ResourceLimits.Timeout).
		Msg("Starting host sandbox")

	h.running = true
	return nil
}

// Stop marks the sandbox as stopped
func (h *HostSandbox) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrSandboxNotRunning
	}

	log.Info().Msg("Stopping host sandbox")

	h.running = false
	return nil
}

// IsRunning returns whether the sandbox is running
func (h *HostSandbox) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// LookPath resolves command against the host PATH.
func (h *HostSandbox) LookPath(command string) (string, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrCommandNotFound, command)
		}
		return "", err
	}
	return path, nil
}

// Execute runs a command on the host
func (h *HostSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ExecuteResult{}, ErrSandboxNotRunning
	}
	cfg := h.config
	h.mu.RUnlock()

	if strings.TrimSpace(req.Command) == "" {
		return ExecuteResult{}, ErrEmptyCommand
	}

	path, err := h.LookPath(req.Command)
	if err != nil {
		return ExecuteResult{}, err
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = cfg.ResourceLimits.Timeout
	}

	result, err := run(ctx, runSpec{
		path:      path,
		args:      req.Args,
		env:       envList(mergeEnv(hostBaseEnv, cfg.Env), req.Env),
		timeout:   timeout,
		maxOutput: cfg.ResourceLimits.MaxOutputBytes,
	})

	log.Debug().
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Bool("truncated", result.Truncated).
		Err(err).
		Msg("Command executed on host")

	return result, err
}

func mergeEnv(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
