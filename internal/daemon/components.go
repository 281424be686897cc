package daemon

import (
	"fmt"
	"time"

	"github.com/harun/recondora/internal/availability"
	"github.com/harun/recondora/internal/config"
	"github.com/harun/recondora/internal/logger"
	"github.com/harun/recondora/internal/metrics"
	"github.com/harun/recondora/pkg/dispatch"
	"github.com/harun/recondora/pkg/executor"
	"github.com/harun/recondora/pkg/registry"
	"github.com/harun/recondora/pkg/sandbox"
)

// Components is the recon pipeline shared by the daemon and one-shot CLI runs.
type Components struct {
	Metrics    *metrics.Metrics
	Registry   *registry.Registry
	Sandbox    sandbox.Sandbox
	Dispatcher *dispatch.Dispatcher
	Checker    *availability.Checker
}

// BuildComponents wires the registry, sandbox, executors and dispatcher
// described by cfg.
func BuildComponents(cfg *config.Config, log *logger.Logger) (*Components, error) {
	reg, err := LoadRegistry(cfg.Tools)
	if err != nil {
		return nil, err
	}

	sb, err := sandbox.New(SandboxConfig(cfg.Tools))
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	m := metrics.NewMetrics()

	remote := executor.NewRemoteExecutor(
		executor.WithRemoteTimeout(cfg.Tools.RemoteTimeoutDuration()),
		executor.WithUserAgent(cfg.Tools.UserAgent),
		executor.WithRemoteLogger(log.Component("remote")),
	)
	local := executor.NewLocalExecutor(sb,
		executor.WithLocalTimeout(cfg.Tools.LocalTimeoutDuration()),
		executor.WithLocalLogger(log.Component("local")),
	)

	d := dispatch.New(reg,
		dispatch.WithExecutor(registry.KindRemote, remote),
		dispatch.WithExecutor(registry.KindLocal, local),
		dispatch.WithMetrics(m),
		dispatch.WithLogger(log.Component("dispatch")),
	)

	checker := availability.New(reg, sb,
		availability.WithSchedule(cfg.Tools.AvailabilitySchedule),
		availability.WithMetrics(m),
		availability.WithLogger(log.Component("availability")),
	)

	return &Components{
		Metrics:    m,
		Registry:   reg,
		Sandbox:    sb,
		Dispatcher: d,
		Checker:    checker,
	}, nil
}

// LoadRegistry returns the catalog file's registry, or the built-in one.
func LoadRegistry(cfg config.ToolsConfig) (*registry.Registry, error) {
	if cfg.CatalogFile != "" {
		reg, err := registry.LoadFile(cfg.CatalogFile, cfg.DefaultGroup)
		if err != nil {
			return nil, fmt.Errorf("failed to load tool catalog: %w", err)
		}
		return reg, nil
	}

	group := cfg.DefaultGroup
	if group == "" {
		group = registry.DefaultGroupName
	}
	reg, err := registry.New(registry.BuiltinSpecs(), registry.BuiltinGroups(), group)
	if err != nil {
		return nil, fmt.Errorf("invalid tool catalog: %w", err)
	}
	return reg, nil
}

// SandboxConfig maps the tools section onto a sandbox configuration.
func SandboxConfig(cfg config.ToolsConfig) sandbox.Config {
	sc := sandbox.DefaultConfig()
	if cfg.Sandbox.Runtime != "" {
		sc.Runtime = sandbox.Runtime(cfg.Sandbox.Runtime)
	}
	if cfg.Sandbox.DockerImage != "" {
		sc.Docker.Image = cfg.Sandbox.DockerImage
	}
	if cfg.Sandbox.Network != "" {
		sc.Docker.Network = cfg.Sandbox.Network
	}
	if cfg.Sandbox.MaxMemoryMB > 0 {
		sc.ResourceLimits.MaxMemoryMB = cfg.Sandbox.MaxMemoryMB
	}
	if cfg.LocalTimeout > 0 {
		sc.ResourceLimits.Timeout = time.Duration(cfg.LocalTimeout) * time.Second
	}
	return sc
}
