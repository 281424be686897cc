package report

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/harun/recondora/pkg/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertChunkLaw checks that parts are non-empty, within the limit, and that
// the input is recovered by re-inserting only whitespace between them.
func assertChunkLaw(t *testing.T, text string, parts []string, maxLen int) {
	t.Helper()

	pos := 0
	for i, part := range parts {
		require.NotEmpty(t, part, "part %d is empty", i)
		require.LessOrEqual(t, unitLen([]rune(part)), maxLen, "part %d too long", i)

		idx := strings.Index(text[pos:], part)
		require.GreaterOrEqual(t, idx, 0, "part %d not found in order", i)
		require.Empty(t, strings.TrimFunc(text[pos:pos+idx], unicode.IsSpace), "non-whitespace dropped before part %d", i)
		if i == 0 {
			require.Equal(t, 0, idx)
		}
		pos += idx + len(part)
	}
	require.Empty(t, strings.TrimFunc(text[pos:], unicode.IsSpace))
}

func TestChunkShortText(t *testing.T) {
	assert.Equal(t, []string{"hello"}, Chunk("hello", 10))
	assert.Equal(t, []string{"0123456789"}, Chunk("0123456789", 10))
	assert.Nil(t, Chunk("", 10))
}

func TestChunkSplitsAtLastNewline(t *testing.T) {
	text := "line one\nline two\nline three"
	parts := Chunk(text, 20)

	assert.Equal(t, []string{"line one\nline two", "line three"}, parts)
	assertChunkLaw(t, text, parts, 20)
}

func TestChunkHardSplitWithoutNewline(t *testing.T) {
	text := strings.Repeat("a", 25)
	parts := Chunk(text, 10)

	assert.Equal(t, []string{strings.Repeat("a", 10), strings.Repeat("a", 10), strings.Repeat("a", 5)}, parts)
	assertChunkLaw(t, text, parts, 10)
}

func TestChunkDropsLeadingWhitespaceOfRemainder(t *testing.T) {
	text := "abcdefgh\n\n   \n  next"
	parts := Chunk(text, 10)

	assert.Equal(t, []string{"abcdefgh\n", "next"}, parts)
	assertChunkLaw(t, text, parts, 10)
}

func TestChunkLeadingNewlineFallsBackToHardSplit(t *testing.T) {
	text := "\n" + strings.Repeat("b", 15)
	parts := Chunk(text, 10)

	require.Len(t, parts, 2)
	assert.Equal(t, "\n"+strings.Repeat("b", 9), parts[0])
	assertChunkLaw(t, text, parts, 10)
}

func TestChunkCountsRunes(t *testing.T) {
	text := strings.Repeat("é", 12)
	parts := Chunk(text, 5)

	assert.Equal(t, []string{"ééééé", "ééééé", "éé"}, parts)
	for _, p := range parts {
		assert.True(t, utf8.ValidString(p))
	}
}

func TestChunkDefaultLimit(t *testing.T) {
	text := strings.Repeat("x", MaxMessageLength+1)
	parts := Chunk(text, 0)
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], MaxMessageLength)
}

func TestChunkLargeReport(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 600; i++ {
		b.WriteString("80/tcp   open  http    nginx 1.25 on host-")
		b.WriteString(strings.Repeat("z", i%17))
		b.WriteString("\n")
	}
	text := b.String()

	parts := Chunk(text, MaxMessageLength)
	assert.Greater(t, len(parts), 1)
	assertChunkLaw(t, text, parts, MaxMessageLength)

	// every cut happened on a line boundary
	pos := 0
	for _, p := range parts[:len(parts)-1] {
		pos += strings.Index(text[pos:], p) + len(p)
		assert.Equal(t, byte('\n'), text[pos])
	}
}

func TestChunkCountsUTF16Units(t *testing.T) {
	// Characters outside the BMP take two units each
	text := strings.Repeat("😀", 5)
	parts := Chunk(text, 4)

	assert.Equal(t, []string{"😀😀", "😀😀", "😀"}, parts)
	assertChunkLaw(t, text, parts, 4)

	assert.Equal(t, []string{"😀"}, Chunk("😀", 1), "an oversized rune still makes progress")
}

func TestChunkMarkdownV2ReopensFence(t *testing.T) {
	text := "*\\[A\\]*\n```\nl1\nl2\nl3\nl4\n```"
	parts := ChunkMarkdownV2(text, 20)

	assert.Equal(t, []string{
		"*\\[A\\]*\n```\nl1\n```",
		"```\nl2\nl3\nl4\n```",
	}, parts)
}

func TestChunkMarkdownV2DoesNotLeaveEmptyBlock(t *testing.T) {
	text := "*\\[A\\]*\n```\n" + strings.Repeat("x", 30) + "\n```"
	parts := ChunkMarkdownV2(text, 24)

	assert.Equal(t, []string{
		"*\\[A\\]*",
		"```\n" + strings.Repeat("x", 16) + "\n```",
		"```\n" + strings.Repeat("x", 14) + "\n```",
	}, parts)
	for i, p := range parts {
		assert.Zero(t, strings.Count(p, fence)%2, "part %d has an unbalanced fence", i)
		assert.LessOrEqual(t, unitLen([]rune(p)), 24)
	}
}

func TestChunkMarkdownV2LongRenderedReport(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("sub")
		b.WriteString(strings.Repeat("x", i%13))
		b.WriteString(".example.com,93.184.216.")
		b.WriteString(strings.Repeat("1", i%3+1))
		if i < 199 {
			b.WriteString("\n")
		}
	}
	results := []executor.Result{
		{Tool: "hostsearch", Text: b.String()},
		{Tool: "dnslookup", Text: "A : 93.184.216.34"},
	}

	r := NewRenderer(FormatMarkdownV2)
	text := r.Render("example.com", results)
	parts := r.Chunk(text, MaxMessageLength)
	require.Greater(t, len(parts), 1)

	var joined strings.Builder
	for i, p := range parts {
		assert.Zero(t, strings.Count(p, fence)%2, "part %d has an unbalanced fence", i)
		assert.LessOrEqual(t, unitLen([]rune(p)), MaxMessageLength, "part %d too long", i)
		joined.WriteString(p)
		joined.WriteString("\n")
	}

	// every output line survives the split
	for _, line := range strings.Split(EscapeCode(b.String()), "\n") {
		assert.Contains(t, joined.String(), line+"\n")
	}
	assert.Contains(t, parts[len(parts)-1], "*\\[DNSLOOKUP\\]*")
}

func TestRendererChunkPlainIgnoresFences(t *testing.T) {
	text := "[X]\n```" + strings.Repeat("y", 20)
	parts := NewRenderer(FormatPlain).Chunk(text, 10)

	assert.Equal(t, Chunk(text, 10), parts)
}
