package report

import (
	"strings"
	"testing"

	"github.com/harun/recondora/pkg/executor"
	"github.com/stretchr/testify/assert"
)

func sampleResults() []executor.Result {
	return []executor.Result{
		{Tool: "dnslookup", Text: "A : 93.184.216.34"},
		{Tool: "hostsearch", Text: "www.example.com,93.184.216.34"},
		{Tool: "whois", Text: "[API Request Error] Request timed out after 45s", Error: executor.KindTimeout},
	}
}

func TestRenderMarkdownV2(t *testing.T) {
	out := NewRenderer(FormatMarkdownV2).Render("example.com", sampleResults())

	assert.True(t, strings.HasPrefix(out, "\\>\\_ *Recon Report for `example.com`*"))
	assert.Equal(t, 3, strings.Count(out, "\n\n*\\["))

	// sections keep batch order
	dns := strings.Index(out, "*\\[DNSLOOKUP\\]*")
	host := strings.Index(out, "*\\[HOSTSEARCH\\]*")
	whois := strings.Index(out, "*\\[WHOIS\\]*")
	assert.True(t, dns > 0 && dns < host && host < whois)

	// result text is emitted verbatim inside the fence
	assert.Contains(t, out, "```\nA : 93.184.216.34\n```")
	assert.Contains(t, out, "```\n[API Request Error] Request timed out after 45s\n```")
}

func TestRenderMarkdownV2EscapesFenceBreakers(t *testing.T) {
	out := NewRenderer(FormatMarkdownV2).Render("a`b", []executor.Result{{Tool: "x", Text: "```injected"}})

	assert.Contains(t, out, "`a\\`b`")
	assert.Contains(t, out, "```\n\\`\\`\\`injected\n```")
}

func TestRenderPlain(t *testing.T) {
	out := NewRenderer(FormatPlain).Render("example.com", sampleResults())

	assert.Equal(t, "Recon Report for example.com\n\n"+
		"[DNSLOOKUP]\nA : 93.184.216.34\n\n"+
		"[HOSTSEARCH]\nwww.example.com,93.184.216.34\n\n"+
		"[WHOIS]\n[API Request Error] Request timed out after 45s", out)
}

func TestRenderNoResults(t *testing.T) {
	assert.Equal(t, "Recon Report for x", NewRenderer(FormatPlain).Render("x", nil))
}

func TestFormatParseMode(t *testing.T) {
	assert.Equal(t, "MarkdownV2", FormatMarkdownV2.ParseMode())
	assert.Equal(t, "", FormatPlain.ParseMode())
	assert.Equal(t, FormatPlain, NewRenderer(FormatPlain).Format())
}
