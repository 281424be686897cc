package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/recondora/internal/metrics"
	"github.com/harun/recondora/internal/observability"
	"github.com/harun/recondora/internal/tracing"
	"github.com/harun/recondora/pkg/dispatch"
	"github.com/harun/recondora/pkg/registry"
	"github.com/harun/recondora/pkg/report"
	"github.com/rs/zerolog"
)

const (
	noValidToolsText = "No valid tools found for your selection. Please check the command and try again."
	sourceTelegram   = "telegram"
)

// Availability reports whether a tool's binary is installed.
type Availability interface {
	Available(key string) bool
}

// CommandFunc is a function that handles a command
type CommandFunc func(ctx context.Context, cc CommandContext) error

// CommandContext contains command metadata
type CommandContext struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Command   string
	Args      []string
	RawArgs   string
}

// Commands routes bot commands and runs recon requests
type Commands struct {
	bot          *Bot
	dispatcher   *dispatch.Dispatcher
	renderer     *report.Renderer
	limiter      *RateLimiter
	availability Availability
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	version      string
	maxLength    int

	handlers map[string]CommandFunc
	wg       sync.WaitGroup
}

// CommandsOption configures Commands.
type CommandsOption func(*Commands)

// WithRateLimiter limits recon requests per user.
func WithRateLimiter(l *RateLimiter) CommandsOption {
	return func(c *Commands) { c.limiter = l }
}

// WithAvailability marks missing local tools in /tools.
func WithAvailability(a Availability) CommandsOption {
	return func(c *Commands) { c.availability = a }
}

// WithMaxMessageLength sets the report chunk size.
func WithMaxMessageLength(n int) CommandsOption {
	return func(c *Commands) {
		if n > 0 {
			c.maxLength = n
		}
	}
}

// WithVersion sets the version shown by /start and /help.
func WithVersion(v string) CommandsOption {
	return func(c *Commands) { c.version = v }
}

// NewCommands creates the command router and registers the built-in commands
func NewCommands(bot *Bot, d *dispatch.Dispatcher, opts ...CommandsOption) *Commands {
	c := &Commands{
		bot:        bot,
		dispatcher: d,
		renderer:   report.NewRenderer(report.FormatMarkdownV2),
		metrics:    bot.metrics,
		logger:     bot.logger.With().Str("module", "commands").Logger(),
		maxLength:  report.MaxMessageLength,
		handlers:   make(map[string]CommandFunc),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Register("start", c.handleHelp)
	c.Register("help", c.handleHelp)
	c.Register("tools", c.handleTools)
	c.Register("recon", c.handleRecon)
	c.Register("recondora", c.handleRecon)

	return c
}

// Register registers a command handler
func (c *Commands) Register(command string, handler CommandFunc) {
	c.handlers[command] = handler
	c.logger.Debug().Str("command", command).Msg("Command registered")
}

// BotCommands returns the command list published to Telegram
func (c *Commands) BotCommands() []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: "recon", Description: "Run recon tools against a target"},
		{Command: "recondora", Description: "Alias of /recon"},
		{Command: "tools", Description: "List tools and groups"},
		{Command: "help", Description: "Show usage"},
	}
}

// HandleUpdate implements UpdateHandler
func (c *Commands) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.IsCommand() {
		return nil
	}

	if !c.bot.config.IsUserAllowed(msg.From.ID) {
		c.logger.Debug().
			Int64("user_id", msg.From.ID).
			Str("username", msg.From.UserName).
			Msg("Ignoring command from user outside allowlist")
		observability.RecordSecurityAudit(tracing.WithSource(ctx, sourceTelegram), "denied:allowlist",
			strconv.FormatInt(msg.From.ID, 10), "rejected", map[string]interface{}{"command": msg.Command()})
		return nil
	}

	args := strings.Fields(msg.CommandArguments())
	cc := CommandContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		UserID:    msg.From.ID,
		Username:  msg.From.UserName,
		Command:   strings.ToLower(msg.Command()),
		Args:      args,
		RawArgs:   msg.CommandArguments(),
	}

	c.logger.Debug().
		Int64("chat_id", cc.ChatID).
		Str("command", cc.Command).
		Strs("args", args).
		Msg("Command received")

	handler, exists := c.handlers[cc.Command]
	if !exists {
		return c.sendUnknownCommand(cc)
	}

	return handler(ctx, cc)
}

// Wait blocks until every running recon has delivered its report
func (c *Commands) Wait() {
	c.wg.Wait()
}

func (c *Commands) handleHelp(_ context.Context, cc CommandContext) error {
	return c.reply(cc, c.brandingText(), report.FormatMarkdownV2.ParseMode())
}

func (c *Commands) handleTools(_ context.Context, cc CommandContext) error {
	return c.reply(cc, c.toolsText(), report.FormatMarkdownV2.ParseMode())
}

func (c *Commands) handleRecon(ctx context.Context, cc CommandContext) error {
	if len(cc.Args) == 0 {
		return c.reply(cc, c.reconHelpText(), report.FormatMarkdownV2.ParseMode())
	}

	target := cc.Args[0]
	selection := c.dispatcher.Resolver().Resolve(dispatch.SplitTokens(cc.Args[1:]...))
	if selection.Empty() {
		return c.reply(cc, noValidToolsText, "")
	}

	if ok, reason := c.limiter.Acquire(cc.UserID); !ok {
		c.metrics.RecordRateLimited()
		c.logger.Warn().
			Int64("user_id", cc.UserID).
			Str("reason", reason).
			Msg("Recon request rejected")
		observability.RecordReconAudit(tracing.WithSource(ctx, sourceTelegram), actor(cc), target, "rejected", selection,
			map[string]interface{}{"reason": reason})
		return c.reply(cc, fmt.Sprintf("Slow down: %s. Try again in a minute.", reason), "")
	}

	statusID, err := c.bot.SendMessageWithReply(cc.ChatID, statusText(target, selection), report.FormatMarkdownV2.ParseMode(), cc.MessageID)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send status message")
	}

	c.wg.Add(1)
	go c.runRecon(ctx, cc, target, selection, statusID)

	return nil
}

func (c *Commands) runRecon(ctx context.Context, cc CommandContext, target string, selection dispatch.Selection, statusID int) {
	defer c.wg.Done()
	defer c.limiter.Release(cc.UserID)

	ctx = tracing.NewRequestContext(ctx, sourceTelegram)
	log := tracing.LoggerFromContext(ctx, c.logger)
	observability.RecordReconAudit(ctx, actor(cc), target, "accepted", selection, nil)

	batch := c.dispatcher.Run(ctx, target, selection)
	parts := c.renderer.Chunk(c.renderer.Render(target, batch.Results), c.maxLength)
	c.metrics.RecordReportChunks(len(parts))

	if statusID != 0 {
		if err := c.bot.DeleteMessage(cc.ChatID, statusID); err != nil {
			log.Warn().Err(err).Msg("Failed to delete status message")
		}
	}

	sent, err := report.Deliver(ctx, c.bot, report.Delivery{
		ChatID:    cc.ChatID,
		ReplyTo:   cc.MessageID,
		ParseMode: c.renderer.Format().ParseMode(),
	}, parts)
	if err != nil {
		log.Error().
			Err(err).
			Int("sent", sent).
			Int("parts", len(parts)).
			Msg("Failed to deliver report")
		return
	}

	observability.RecordReconAudit(ctx, actor(cc), target, "completed", selection,
		map[string]interface{}{"failed": batch.Failed(), "parts": sent})

	log.Info().
		Str("target", target).
		Int("tools", len(selection)).
		Int("failed", batch.Failed()).
		Int("parts", sent).
		Msg("Report delivered")
}

func actor(cc CommandContext) string {
	return strconv.FormatInt(cc.UserID, 10)
}

func (c *Commands) reply(cc CommandContext, text, parseMode string) error {
	_, err := c.bot.SendMessageWithReply(cc.ChatID, text, parseMode, cc.MessageID)
	return err
}

// sendUnknownCommand sends an unknown command response
func (c *Commands) sendUnknownCommand(cc CommandContext) error {
	text := fmt.Sprintf("Unknown command: /%s. Send /help for usage.", cc.Command)
	return c.reply(cc, text, "")
}

func statusText(target string, selection dispatch.Selection) string {
	return fmt.Sprintf("🔎 Running recon on `%s` with tools: `%s`%s",
		report.EscapeCode(target),
		report.EscapeCode(selection.String()),
		report.EscapeMarkdownV2("... this may take a moment."))
}

func (c *Commands) brandingText() string {
	esc := report.EscapeMarkdownV2
	version := ""
	if c.version != "" {
		version = " " + esc("v"+c.version)
	}
	dashes := esc(strings.Repeat("-", 40))

	lines := []string{
		"🛡️ *" + esc("Recondora - Multi-Tool Recon Bot") + "*" + version + " 🛡️",
		dashes,
		"*Commands:*",
		"`/recon <target> [tools...]` " + esc("- Runs several recon tools at once."),
		"`/recondora <target> [tools...]` " + esc("- Same as /recon."),
		"`/tools` " + esc("- Lists tools and groups."),
		"`/help` " + esc("- Shows this message."),
		dashes,
		esc("Without tools, the " + c.dispatcher.Registry().DefaultGroup() + " group is run."),
	}
	return strings.Join(lines, "\n")
}

func (c *Commands) reconHelpText() string {
	esc := report.EscapeMarkdownV2
	reg := c.dispatcher.Registry()

	groups := make([]string, 0, len(reg.Groups()))
	for _, g := range reg.Groups() {
		groups = append(groups, g.Name)
	}

	return esc("Perform multi-tool reconnaissance on a domain.") + "\n\n" +
		"*Usage:* `/recondora <domain> [tool1] [tool2] ...`\n\n" +
		"*Example:* `/recondora example.com whois local_ping`\n\n" +
		esc("If no tools are specified, the "+reg.DefaultGroup()+" group is run.") + "\n\n" +
		"*Available API Tools:*\n`" + report.EscapeCode(strings.Join(reg.Keys(registry.KindRemote), ", ")) + "`\n\n" +
		"*Available Local Tools:*\n`" + report.EscapeCode(strings.Join(reg.Keys(registry.KindLocal), ", ")) + "`\n\n" +
		"*Groups:*\n`" + report.EscapeCode(strings.Join(groups, ", ")) + "`"
}

func (c *Commands) toolsText() string {
	esc := report.EscapeMarkdownV2
	reg := c.dispatcher.Registry()

	var b strings.Builder
	section := func(title string, kind registry.Kind) {
		b.WriteString("*" + esc(title) + "*\n")
		for _, key := range reg.Keys(kind) {
			spec, _ := reg.Lookup(key)
			b.WriteString("`" + report.EscapeCode(key) + "`")
			if spec.Description != "" {
				b.WriteString(" " + esc("- "+spec.Description))
			}
			if kind == registry.KindLocal && c.availability != nil && !c.availability.Available(key) {
				b.WriteString(" " + esc("(not installed)"))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	section("API tools:", registry.KindRemote)
	section("Local tools:", registry.KindLocal)

	b.WriteString("*" + esc("Groups:") + "*\n")
	for _, g := range reg.Groups() {
		name := "`" + report.EscapeCode(g.Name) + "`"
		if g.Name == reg.DefaultGroup() {
			name += " " + esc("(default)")
		}
		b.WriteString(name + " " + esc(strings.Join(g.Keys, ", ")) + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
