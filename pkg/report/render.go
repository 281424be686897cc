// Package report turns the results of one batch into a chat-sized report and
// delivers it in parts.
package report

import (
	"strings"

	"github.com/harun/recondora/pkg/executor"
)

// Format selects the report markup.
type Format int

const (
	// FormatMarkdownV2 renders for Telegram's MarkdownV2 parse mode.
	FormatMarkdownV2 Format = iota
	// FormatPlain renders without markup, for terminals and JSON clients.
	FormatPlain
)

// ParseMode returns the Telegram parse mode matching f, or "" for plain text.
func (f Format) ParseMode() string {
	if f == FormatMarkdownV2 {
		return "MarkdownV2"
	}
	return ""
}

// Renderer builds reports.
type Renderer struct {
	format Format
}

// NewRenderer creates a renderer for the given format.
func NewRenderer(format Format) *Renderer {
	return &Renderer{format: format}
}

// Format returns the renderer's markup format.
func (r *Renderer) Format() Format {
	return r.format
}

// Header renders the report header for target.
func (r *Renderer) Header(target string) string {
	if r.format == FormatPlain {
		return "Recon Report for " + target
	}
	return EscapeMarkdownV2(">_ ") + "*Recon Report for `" + EscapeCode(target) + "`*"
}

// Section renders one tool result.
func (r *Renderer) Section(res executor.Result) string {
	label := "[" + strings.ToUpper(res.Tool) + "]"
	if r.format == FormatPlain {
		return label + "\n" + res.Text
	}
	return "*" + EscapeMarkdownV2(label) + "*\n```\n" + EscapeCode(res.Text) + "\n```"
}

// Render builds the full report: the header followed by one section per
// result, in the given order, separated by blank lines.
func (r *Renderer) Render(target string, results []executor.Result) string {
	var b strings.Builder
	b.WriteString(r.Header(target))
	for _, res := range results {
		b.WriteString("\n\n")
		b.WriteString(r.Section(res))
	}
	return b.String()
}

// Chunk splits a report produced by r into parts of at most maxLen units.
// MarkdownV2 parts keep their code blocks balanced.
func (r *Renderer) Chunk(text string, maxLen int) []string {
	if r.format == FormatMarkdownV2 {
		return ChunkMarkdownV2(text, maxLen)
	}
	return Chunk(text, maxLen)
}
