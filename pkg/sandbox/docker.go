package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Exit codes reported by `docker run` itself rather than the contained process.
const (
	dockerExitDaemonError   = 125
	dockerExitNotExecutable = 126
	dockerExitNotFound      = 127
)

// containerPrefix names every container started by the sandbox.
const containerPrefix = "recondora-"

// CheckDocker verifies that the Docker daemon is available and responsive.
func CheckDocker(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, "docker", "info", "--format", "{{.ServerVersion}}").Run(); err != nil {
		return fmt.Errorf("docker is not available or not running: %w", err)
	}
	return nil
}

// DockerSandbox runs each command in an ephemeral container of one image
// that ships the reconnaissance binaries.
type DockerSandbox struct {
	config  Config
	running bool
	mu      sync.RWMutex
}

// NewDockerSandbox creates a new docker sandbox.
func NewDockerSandbox(config Config) (*DockerSandbox, error) {
	config.Runtime = RuntimeDocker
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &DockerSandbox{config: config}, nil
}

// Start verifies docker is reachable and marks the sandbox as ready.
func (d *DockerSandbox) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrSandboxAlreadyRunning
	}

	if err := CheckDocker(ctx); err != nil {
		return err
	}

	log.Info().
		Str("runtime", string(RuntimeDocker)).
		Str("image", d.config.Docker.Image).
		Msg("Starting docker sandbox")

	d.running = true
	return nil
}

// Stop marks the sandbox as stopped.
func (d *DockerSandbox) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return ErrSandboxNotRunning
	}

	log.Info().Msg("Stopping docker sandbox")
	d.running = false
	return nil
}

// IsRunning returns whether the sandbox is currently running.
func (d *DockerSandbox) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// LookPath only checks that the docker client is installed; the image is
// trusted to contain the binary and a missing one surfaces at run time.
func (d *DockerSandbox) LookPath(command string) (string, error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return "", fmt.Errorf("%w: docker", ErrCommandNotFound)
	}
	return command, nil
}

// Execute runs the command inside a fresh container.
func (d *DockerSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	d.mu.RLock()
	if !d.running {
		d.mu.RUnlock()
		return ExecuteResult{}, ErrSandboxNotRunning
	}
	cfg := d.config
	d.mu.RUnlock()

	if strings.TrimSpace(req.Command) == "" {
		return ExecuteResult{}, ErrEmptyCommand
	}

	dockerBin, err := exec.LookPath("docker")
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("%w: docker", ErrCommandNotFound)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = cfg.ResourceLimits.Timeout
	}

	name := containerPrefix + uuid.NewString()
	env := envList(hostBaseEnv, nil)

	result, err := run(ctx, runSpec{
		path:      dockerBin,
		args:      buildDockerRunArgs(cfg, req, name),
		env:       env,
		timeout:   timeout,
		maxOutput: cfg.ResourceLimits.MaxOutputBytes,
		// Killing the client leaves the container running
		onCancel: func() { killContainer(dockerBin, env, name) },
	})
	if err == nil {
		switch result.ExitCode {
		case dockerExitNotFound, dockerExitNotExecutable:
			err = fmt.Errorf("%w: %s in image %s", ErrCommandNotFound, req.Command, cfg.Docker.Image)
		case dockerExitDaemonError:
			err = fmt.Errorf("docker run failed: %s", strings.TrimSpace(string(result.Stderr)))
		}
	}

	log.Debug().
		Str("image", cfg.Docker.Image).
		Str("container", name).
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Err(err).
		Msg("Command executed in docker sandbox")

	return result, err
}

// killContainer stops a container whose client was killed. --rm removes it
// once it exits.
func killContainer(dockerBin string, env []string, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, dockerBin, "kill", name)
	cmd.Env = env
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Warn().
			Str("container", name).
			Str("output", strings.TrimSpace(string(out))).
			Err(err).
			Msg("Failed to kill timed out container")
	}
}

func buildDockerRunArgs(cfg Config, req ExecuteRequest, name string) []string {
	args := []string{"run", "--rm", "--init", "--name", name}

	network := strings.TrimSpace(cfg.Docker.Network)
	if network == "" {
		network = "bridge"
	}
	args = append(args, "--network", network)

	limits := cfg.ResourceLimits
	if limits.MaxCPU > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(float64(limits.MaxCPU)/100.0, 'f', 2, 64))
	}
	if limits.MaxMemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", limits.MaxMemoryMB))
	}
	if limits.MaxProcesses > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(limits.MaxProcesses))
	}

	if user := strings.TrimSpace(cfg.Docker.User); user != "" {
		args = append(args, "--user", user)
	}
	for _, c := range cfg.Docker.CapDrop {
		if c = strings.TrimSpace(c); c != "" {
			args = append(args, "--cap-drop", c)
		}
	}
	for _, c := range cfg.Docker.CapAdd {
		if c = strings.TrimSpace(c); c != "" {
			args = append(args, "--cap-add", c)
		}
	}
	args = append(args, cfg.Docker.ExtraArgs...)

	env := mergeEnv(cfg.Env, req.Env)
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+env[k])
	}

	// --entrypoint lets images whose entrypoint is the tool itself run any binary
	args = append(args, "--entrypoint", req.Command, cfg.Docker.Image)
	return append(args, req.Args...)
}
