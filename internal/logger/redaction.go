package logger

import (
	"io"
	"regexp"
)

const redactedMarker = "[REDACTED]"

// Redactor masks secrets before log lines reach their writer.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the default patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Telegram bot tokens, also when embedded in api.telegram.org URLs
			regexp.MustCompile(`\d{8,10}:[a-zA-Z0-9_-]{30,}`),

			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// HTTP adapter shared secret
			regexp.MustCompile(`(?i)x-recondora-secret["\s:=]+[^\s",]+`),

			regexp.MustCompile(`(?i)(api[_-]?key|apikey)["\s:=]+[^\s"&,]+`),
			regexp.MustCompile(`(?i)(token|secret|password)"\s*:\s*"[^"]+"`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks every pattern match in s.
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, redactedMarker)
	}
	return s
}

// Wrap returns a writer that redacts before writing to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success even when the redacted line differs in length.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
