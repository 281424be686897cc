// Package daemon runs the long-lived service: the Telegram bot, the HTTP
// adapter and the tool availability checker around one shared dispatcher.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/recondora/internal/config"
	"github.com/harun/recondora/internal/logger"
	"github.com/harun/recondora/internal/metrics"
	"github.com/harun/recondora/internal/observability"
	"github.com/harun/recondora/internal/ratelimit"
	"github.com/harun/recondora/internal/server"
	"github.com/harun/recondora/internal/telegram"
	"github.com/harun/recondora/internal/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const shutdownTimeout = 10 * time.Second

// Status describes the daemon state
type Status struct {
	Running   bool          `json:"running"`
	StartTime time.Time     `json:"start_time,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Daemon represents the Recondora service
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	version string

	components *Components

	// Adapters
	server      *server.Server
	telegramBot *telegram.Bot
	telegramCmd *telegram.Commands

	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
	auditEnabled   bool
}

var newTelegramBot = func(cfg *config.TelegramConfig, log *logger.Logger, m *metrics.Metrics) (*telegram.Bot, error) {
	return telegram.New(cfg, log, m)
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger, version string) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:    cfg,
		logger:    log,
		version:   version,
		ctx:       ctx,
		cancel:    cancel,
		lifecycle: NewLifecycleManager(cfg.DataDir, log.Component("lifecycle")),
	}

	if cfg.Tracing.Enabled {
		exporter := tracing.NewLogExporter(log.Component("tracing"))
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, version, sdktrace.NewBatchSpanProcessor(exporter)); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized successfully")
		}
	}

	if err := d.initialize(); err != nil {
		cancel()
		d.shutdownTracing()
		return nil, err
	}

	return d, nil
}

func (d *Daemon) initialize() error {
	components, err := BuildComponents(d.config, d.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize recon pipeline: %w", err)
	}
	d.components = components

	if d.config.Server.Enabled {
		d.server = server.New(d.config.Server, components.Dispatcher,
			server.WithMetrics(components.Metrics),
			server.WithAvailability(components.Checker),
			server.WithRateLimiter(ratelimit.New[string](d.config.RateLimit.RequestsPerMinute, d.config.RateLimit.MaxConcurrent)),
			server.WithLogger(d.logger.Component("server")),
			server.WithVersion(d.version),
		)
	}

	if d.config.Telegram.Enabled {
		bot, err := newTelegramBot(&d.config.Telegram, d.logger, components.Metrics)
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}

		cmds := telegram.NewCommands(bot, components.Dispatcher,
			telegram.WithRateLimiter(telegram.NewRateLimiter(d.config.RateLimit.RequestsPerMinute, d.config.RateLimit.MaxConcurrent)),
			telegram.WithAvailability(components.Checker),
			telegram.WithMaxMessageLength(d.config.Tools.MaxMessageLength),
			telegram.WithVersion(d.version),
		)
		bot.SetHandler(cmds)

		d.telegramBot = bot
		d.telegramCmd = cmds
	}

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	log := tracing.LoggerFromContext(tracing.WithTraceID(d.ctx, tracing.NewID()), d.logger.GetZerolog())
	log.Info().Str("version", d.version).Msg("Starting Recondora daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.config.Logging.Audit {
		if err := observability.InitAuditLogger(filepath.Join(d.config.DataDir, "audit.log")); err != nil {
			log.Warn().Err(err).Msg("Failed to open audit log")
		} else {
			d.auditEnabled = true
		}
	}

	if err := d.components.Sandbox.Start(d.ctx); err != nil {
		log.Warn().Err(err).Msg("Sandbox unavailable, local tools will fail")
	}

	if d.config.Tools.AvailabilitySchedule != "" {
		if err := d.components.Checker.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start availability checker")
		}
	} else {
		d.components.Checker.Check()
	}

	if d.server != nil {
		if err := d.server.Start(); err != nil {
			_ = d.Stop()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		log.Info().Str("addr", d.server.Addr()).Msg("HTTP server started")
	}

	if d.telegramBot != nil {
		if err := d.telegramBot.SetCommands(d.telegramCmd.BotCommands()); err != nil {
			log.Warn().Err(err).Msg("Failed to publish bot commands")
		}
		if err := d.telegramBot.Start(d.ctx); err != nil {
			_ = d.Stop()
			return fmt.Errorf("failed to start telegram bot: %w", err)
		}
		log.Info().Msg("Telegram bot started")
	}

	log.Info().Msg("Daemon started successfully")

	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	log := tracing.LoggerFromContext(tracing.WithTraceID(context.Background(), tracing.NewID()), d.logger.GetZerolog())
	log.Info().Msg("Stopping Recondora daemon")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if d.telegramBot != nil && d.telegramBot.IsRunning() {
		if err := d.telegramBot.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop telegram bot")
		}
	}

	// Let in-flight recons deliver their reports before cancelling them.
	if d.telegramCmd != nil {
		done := make(chan struct{})
		go func() {
			d.telegramCmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			log.Warn().Msg("Timeout waiting for running recons")
		}
	}

	if d.server != nil && d.server.Addr() != "" {
		if err := d.server.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to stop HTTP server")
		}
	}

	if err := d.components.Checker.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to stop availability checker")
	}

	if d.components.Sandbox.IsRunning() {
		if err := d.components.Sandbox.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to stop sandbox")
		}
	}

	d.cancel()

	if err := d.lifecycle.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.shutdownTracing()

	if d.auditEnabled {
		if err := observability.GetAuditLogger().Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close audit logger")
		}
		d.auditEnabled = false
	}

	log.Info().Msg("Daemon stopped successfully")

	return nil
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Failed to shutdown tracing")
	}
	d.tracingEnabled = false
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, or until ctx is done, then stops the daemon
func (d *Daemon) Wait(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-ctx.Done():
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// Components returns the recon pipeline
func (d *Daemon) Components() *Components {
	return d.components
}

// Server returns the HTTP adapter, or nil when disabled
func (d *Daemon) Server() *server.Server {
	return d.server
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}
