package telegram

import (
	"context"
	"strings"
	"testing"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/recondora/pkg/dispatch"
	"github.com/harun/recondora/pkg/executor"
	"github.com/harun/recondora/pkg/registry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct{}

func (stubExecutor) Execute(_ context.Context, target string, spec registry.ToolSpec) executor.Result {
	return executor.Result{Tool: spec.Key, Kind: spec.Kind, Text: spec.Key + " for " + target}
}

type stubAvailability map[string]bool

func (s stubAvailability) Available(key string) bool {
	ok, known := s[key]
	return !known || ok
}

func testDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()

	reg, err := registry.New(
		[]registry.ToolSpec{
			{Key: "whois", Kind: registry.KindRemote, Description: "WHOIS lookup", Remote: &registry.RemoteSpec{URLTemplate: "https://api.example.com/whois/?q="}},
			{Key: "dnslookup", Kind: registry.KindRemote, Description: "DNS records", Remote: &registry.RemoteSpec{URLTemplate: "https://api.example.com/dnslookup/?q="}},
			{Key: "nmap", Kind: registry.KindLocal, Description: "Fast port scan", Local: &registry.LocalSpec{Command: "nmap", Args: []string{"-F", registry.TargetPlaceholder}}},
		},
		[]registry.Group{{Name: "basic", Keys: []string{"whois", "dnslookup"}}},
		"basic",
	)
	require.NoError(t, err)

	return dispatch.New(reg,
		dispatch.WithExecutor(registry.KindRemote, stubExecutor{}),
		dispatch.WithExecutor(registry.KindLocal, stubExecutor{}),
	)
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 100,
			From:      &tgbotapi.User{ID: userID, UserName: "tester"},
			Chat:      &tgbotapi.Chat{ID: 555, Type: "private"},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
		},
	}
}

func TestNewCommands(t *testing.T) {
	bot := createTestBot(t, newFakeAPI())
	commands := NewCommands(bot, testDispatcher(t))

	assert.Equal(t, bot, commands.bot)
	for _, name := range []string{"start", "help", "tools", "recon", "recondora"} {
		assert.Contains(t, commands.handlers, name)
	}
	assert.NotEmpty(t, commands.BotCommands())
}

func TestHandleUpdate_Help(t *testing.T) {
	api := newFakeAPI()
	commands := NewCommands(createTestBot(t, api), testDispatcher(t), WithVersion("1.2.0"))

	require.NoError(t, commands.HandleUpdate(context.Background(), commandUpdate(1, "/start")))

	sent := api.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "MarkdownV2", sent[0].ParseMode)
	assert.Equal(t, 100, sent[0].ReplyToMessageID)
	assert.Contains(t, sent[0].Text, `Recondora \- Multi\-Tool Recon Bot`)
	assert.Contains(t, sent[0].Text, `v1\.2\.0`)
}

func TestHandleUpdate_Unknown(t *testing.T) {
	api := newFakeAPI()
	commands := NewCommands(createTestBot(t, api), testDispatcher(t))

	require.NoError(t, commands.HandleUpdate(context.Background(), commandUpdate(1, "/sqlmap example.com")))

	sent := api.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Unknown command: /sqlmap. Send /help for usage.", sent[0].Text)
	assert.Empty(t, sent[0].ParseMode)
}

func TestHandleUpdate_IgnoresNonCommands(t *testing.T) {
	api := newFakeAPI()
	commands := NewCommands(createTestBot(t, api), testDispatcher(t))

	update := commandUpdate(1, "/recon")
	update.Message.Entities = nil
	update.Message.Text = "hello"

	require.NoError(t, commands.HandleUpdate(context.Background(), update))
	require.NoError(t, commands.HandleUpdate(context.Background(), tgbotapi.Update{}))
	assert.Empty(t, api.messages())
}

func TestHandleUpdate_Allowlist(t *testing.T) {
	api := newFakeAPI()
	commands := NewCommands(createTestBot(t, api, 7), testDispatcher(t))

	require.NoError(t, commands.HandleUpdate(context.Background(), commandUpdate(8, "/help")))
	assert.Empty(t, api.messages())

	require.NoError(t, commands.HandleUpdate(context.Background(), commandUpdate(7, "/help")))
	assert.Len(t, api.messages(), 1)
}

func TestHandleUpdate_Tools(t *testing.T) {
	api := newFakeAPI()
	commands := NewCommands(createTestBot(t, api), testDispatcher(t),
		WithAvailability(stubAvailability{"nmap": false}))

	require.NoError(t, commands.HandleUpdate(context.Background(), commandUpdate(1, "/tools")))

	sent := api.messages()
	require.Len(t, sent, 1)
	text := sent[0].Text
	assert.Contains(t, text, "`whois` \\- WHOIS lookup")
	assert.Contains(t, text, "`nmap` \\- Fast port scan \\(not installed\\)")
	assert.Contains(t, text, "`basic` \\(default\\) whois, dnslookup")
}

func TestHandleRecon_Usage(t *testing.T) {
	api := newFakeAPI()
	commands := NewCommands(createTestBot(t, api), testDispatcher(t))

	require.NoError(t, commands.HandleUpdate(context.Background(), commandUpdate(1, "/recondora")))

	sent := api.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "MarkdownV2", sent[0].ParseMode)
	assert.Contains(t, sent[0].Text, "*Usage:* `/recondora <domain> [tool1] [tool2] ...`")
	assert.Contains(t, sent[0].Text, "*Available API Tools:*\n`dnslookup, whois`")
	assert.Contains(t, sent[0].Text, "*Available Local Tools:*\n`nmap`")
}

func TestHandleRecon_NoValidTools(t *testing.T) {
	api := newFakeAPI()
	commands := NewCommands(createTestBot(t, api), testDispatcher(t))

	require.NoError(t, commands.HandleUpdate(context.Background(), commandUpdate(1, "/recon example.com bogus")))
	commands.Wait()

	sent := api.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, noValidToolsText, sent[0].Text)
	assert.Empty(t, api.chattables())
}

func TestHandleRecon_DeliversReport(t *testing.T) {
	api := newFakeAPI()
	bot := createTestBot(t, api)
	commands := NewCommands(bot, testDispatcher(t))

	require.NoError(t, commands.HandleUpdate(context.Background(), commandUpdate(1, "/recon example.com whois,nmap")))
	commands.Wait()

	sent := api.messages()
	require.Len(t, sent, 2)

	status := sent[0]
	assert.Equal(t, "MarkdownV2", status.ParseMode)
	assert.Equal(t, 100, status.ReplyToMessageID)
	assert.Contains(t, status.Text, "Running recon on `example.com` with tools: `nmap, whois`")

	reqs := api.chattables()
	require.Len(t, reqs, 1)
	del, ok := reqs[0].(tgbotapi.DeleteMessageConfig)
	require.True(t, ok)
	assert.Equal(t, 1, del.MessageID, "status message is deleted")

	rep := sent[1]
	assert.Equal(t, "MarkdownV2", rep.ParseMode)
	assert.Equal(t, 100, rep.ReplyToMessageID)
	assert.Contains(t, rep.Text, "Recon Report for `example.com`")
	assert.Less(t, strings.Index(rep.Text, "NMAP"), strings.Index(rep.Text, "WHOIS"))
	assert.Contains(t, rep.Text, "whois for example.com")

	assert.Equal(t, 1.0, testutil.ToFloat64(bot.metrics.ReportChunksTotal))
}

func TestHandleRecon_DefaultGroup(t *testing.T) {
	api := newFakeAPI()
	commands := NewCommands(createTestBot(t, api), testDispatcher(t))

	require.NoError(t, commands.HandleUpdate(context.Background(), commandUpdate(1, "/recon example.com")))
	commands.Wait()

	sent := api.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Text, "with tools: `dnslookup, whois`")
}

func TestHandleRecon_ChunksLongReports(t *testing.T) {
	api := newFakeAPI()
	commands := NewCommands(createTestBot(t, api), testDispatcher(t), WithMaxMessageLength(60))

	require.NoError(t, commands.HandleUpdate(context.Background(), commandUpdate(1, "/recon example.com basic nmap")))
	commands.Wait()

	sent := api.messages()
	require.Greater(t, len(sent), 2)

	parts := sent[1:]
	assert.Equal(t, 100, parts[0].ReplyToMessageID)
	for _, p := range parts[1:] {
		assert.Zero(t, p.ReplyToMessageID, "follow-up parts are not replies")
		assert.Equal(t, "MarkdownV2", p.ParseMode)
	}
	for _, p := range parts {
		assert.LessOrEqual(t, len(utf16.Encode([]rune(p.Text))), 60)
		assert.Zero(t, strings.Count(p.Text, "```")%2, "code block left open in %q", p.Text)
	}
}

func TestHandleRecon_RateLimited(t *testing.T) {
	api := newFakeAPI()
	bot := createTestBot(t, api)
	limiter := NewRateLimiter(1, 0)
	commands := NewCommands(bot, testDispatcher(t), WithRateLimiter(limiter))

	require.NoError(t, commands.HandleUpdate(context.Background(), commandUpdate(1, "/recon example.com whois")))
	commands.Wait()
	require.NoError(t, commands.HandleUpdate(context.Background(), commandUpdate(1, "/recon example.com whois")))
	commands.Wait()

	sent := api.messages()
	require.Len(t, sent, 3)
	assert.Equal(t, "Slow down: rate limit exceeded. Try again in a minute.", sent[2].Text)
	assert.Equal(t, 1.0, testutil.ToFloat64(bot.metrics.RateLimitedTotal))

	_, active := limiter.GetStats(1)
	assert.Zero(t, active, "finished recon releases its slot")
}
