package report

import (
	"strings"
	"unicode"
	"unicode/utf16"
)

// MaxMessageLength is Telegram's per-message limit in UTF-16 code units.
const MaxMessageLength = 4096

const (
	fence      = "```"
	fenceOpen  = fence + "\n"
	fenceClose = "\n" + fence
)

// Chunk splits text into parts of at most maxLen UTF-16 code units, the unit
// Telegram counts in.
//
// A part that fits is returned whole. Otherwise the cut is made at the last
// newline before maxLen, or exactly at maxLen when there is none, and leading
// whitespace of the remainder is dropped. Empty parts are never returned, so
// joining the parts back with the dropped whitespace yields the input.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxMessageLength
	}

	runes := []rune(text)
	var parts []string

	for len(runes) > 0 {
		if unitLen(runes) <= maxLen {
			parts = append(parts, string(runes))
			break
		}

		limit := prefixWithin(runes, maxLen)
		cut := lastNewline(runes[:limit])
		if cut <= 0 {
			cut = limit
		}

		parts = append(parts, string(runes[:cut]))
		runes = trimLeftSpace(runes[cut:])
	}

	return parts
}

// ChunkMarkdownV2 splits a MarkdownV2 report like Chunk but never leaves a
// code block open across parts: a part cut inside a block is closed with a
// fence and the next part reopens it. Telegram rejects unbalanced entities.
func ChunkMarkdownV2(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxMessageLength
	}

	runes := []rune(text)
	var parts []string
	inFence := false

	for len(runes) > 0 {
		prefix := ""
		if inFence {
			prefix = fenceOpen
		}
		budget := maxLen - len(prefix)

		if unitLen(runes) <= budget {
			parts = append(parts, prefix+string(runes))
			break
		}

		limit := prefixWithin(runes, budget-len(fenceClose))
		cut := lastNewline(runes[:limit])
		if cut <= 0 {
			cut = safeHardCut(runes, limit)
		}

		open := fenceOpenAfter(inFence, runes[:cut])
		if open {
			// Don't emit a block that only holds its opening fence: end the
			// part before it, or fill the block up to the limit.
			start := lastNewline(runes[:cut])
			if strings.TrimSpace(string(runes[max(start, 0):cut])) == fence {
				if start > 0 {
					cut = start
					open = false
				} else {
					cut = safeHardCut(runes, limit)
				}
			}
		}

		part := prefix + string(runes[:cut])
		if open {
			part += fenceClose
		}
		parts = append(parts, part)

		inFence = open
		runes = trimLeftSpace(runes[cut:])
	}

	return parts
}

// fenceOpenAfter reports whether a code block is open at the end of runes,
// given the state at its start. Code content escapes every backtick, so
// three in a row are always a fence.
func fenceOpenAfter(inFence bool, runes []rune) bool {
	return (strings.Count(string(runes), fence)%2 == 1) != inFence
}

// safeHardCut moves a cut without a newline off escapes and partial fences.
func safeHardCut(runes []rune, cut int) int {
	c := cut
	for c > 1 && (runes[c-1] == '\\' || runes[c-1] == '`') {
		c--
	}
	return c
}

// unitLen returns the length of runes in UTF-16 code units.
func unitLen(runes []rune) int {
	n := 0
	for _, r := range runes {
		n += runeUnits(r)
	}
	return n
}

// prefixWithin returns how many leading runes fit in maxLen UTF-16 code
// units. It is at least one so that a split always makes progress.
func prefixWithin(runes []rune, maxLen int) int {
	n := 0
	for i, r := range runes {
		n += runeUnits(r)
		if n > maxLen {
			if i == 0 {
				return 1
			}
			return i
		}
	}
	return len(runes)
}

func runeUnits(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

func lastNewline(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}

func trimLeftSpace(runes []rune) []rune {
	i := 0
	for i < len(runes) && unicode.IsSpace(runes[i]) {
		i++
	}
	return runes[i:]
}
