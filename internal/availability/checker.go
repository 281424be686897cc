// Package availability tracks which local tool binaries are installed on the host.
package availability

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/recondora/internal/metrics"
	"github.com/harun/recondora/pkg/registry"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSchedule re-checks every ten minutes.
const DefaultSchedule = "@every 10m"

// PathLooker resolves a command name to an executable.
type PathLooker interface {
	LookPath(command string) (string, error)
}

// Status is the last known state of one local tool.
type Status struct {
	Tool      string    `json:"tool"`
	Command   string    `json:"command"`
	Available bool      `json:"available"`
	Path      string    `json:"path,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker periodically resolves the binary of every local tool.
type Checker struct {
	registry *registry.Registry
	looker   PathLooker
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	schedule string

	mu       sync.RWMutex
	statuses map[string]Status
	cron     *cron.Cron
}

// Option configures a Checker.
type Option func(*Checker)

// WithSchedule sets the cron spec used by Start.
func WithSchedule(spec string) Option {
	return func(c *Checker) {
		if spec != "" {
			c.schedule = spec
		}
	}
}

// WithMetrics exports availability as a gauge.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Checker) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Checker) { c.logger = logger }
}

// New creates a checker for the local tools of reg.
func New(reg *registry.Registry, looker PathLooker, opts ...Option) *Checker {
	c := &Checker{
		registry: reg,
		looker:   looker,
		logger:   zerolog.Nop(),
		schedule: DefaultSchedule,
		statuses: make(map[string]Status),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check resolves every local tool once and returns the statuses sorted by tool key.
func (c *Checker) Check() []Status {
	now := time.Now()
	keys := c.registry.Keys(registry.KindLocal)
	statuses := make([]Status, 0, len(keys))
	missing := make([]string, 0)

	for _, key := range keys {
		spec, _ := c.registry.Lookup(key)
		st := Status{
			Tool:      key,
			Command:   spec.Local.Command,
			CheckedAt: now,
		}
		if path, err := c.looker.LookPath(spec.Local.Command); err == nil {
			st.Available = true
			st.Path = path
		} else {
			missing = append(missing, key)
		}
		c.metrics.SetToolAvailable(st.Tool, st.Command, st.Available)
		statuses = append(statuses, st)
	}

	c.mu.Lock()
	for _, st := range statuses {
		c.statuses[st.Tool] = st
	}
	c.mu.Unlock()

	if len(missing) > 0 {
		c.logger.Warn().Strs("tools", missing).Msg("Local tools not installed")
	} else {
		c.logger.Debug().Int("count", len(statuses)).Msg("All local tools available")
	}

	return statuses
}

// Start runs an immediate check and schedules the next ones.
func (c *Checker) Start() error {
	c.mu.Lock()
	if c.cron != nil {
		c.mu.Unlock()
		return fmt.Errorf("availability checker already started")
	}

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(c.schedule, func() { c.Check() }); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("invalid availability schedule %q: %w", c.schedule, err)
	}
	c.cron = scheduler
	c.mu.Unlock()

	c.Check()
	scheduler.Start()

	c.logger.Info().Str("schedule", c.schedule).Msg("Availability checker started")
	return nil
}

// Stop halts scheduling and waits for a running check, or ctx, to finish.
func (c *Checker) Stop(ctx context.Context) error {
	c.mu.Lock()
	scheduler := c.cron
	c.cron = nil
	c.mu.Unlock()

	if scheduler == nil {
		return nil
	}

	select {
	case <-scheduler.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Available reports whether key's binary was found. Tools that were never
// checked, and remote tools, count as available.
func (c *Checker) Available(key string) bool {
	if c == nil {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.statuses[key]
	return !ok || st.Available
}

// Statuses returns the last known statuses sorted by tool key.
func (c *Checker) Statuses() []Status {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Status, 0, len(c.statuses))
	for _, st := range c.statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool < out[j].Tool })
	return out
}
