package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactor(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name   string
		input  string
		secret string
	}{
		{"telegram token", "token 1234567890:ABCdefGHIjklMNOpqrSTUvwxYZ0123456789", "ABCdefGHIjklMNOpqrSTUvwxYZ0123456789"},
		{"bearer", "Authorization: Bearer abc.def.ghi", "abc.def.ghi"},
		{"shared secret header", "X-Recondora-Secret: hunter2", "hunter2"},
		{"api key query", "https://api.example.com/?apikey=s3cr3tvalue&q=x", "s3cr3tvalue"},
		{"json secret", `{"shared_secret":"topsecret"}`, "topsecret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Redact(tt.input)
			assert.NotContains(t, out, tt.secret)
			assert.Contains(t, out, redactedMarker)
		})
	}

	t.Run("plain text untouched", func(t *testing.T) {
		in := "running whois on example.com"
		assert.Equal(t, in, r.Redact(in))
	})
}

func TestRedactorAddPattern(t *testing.T) {
	r := NewRedactor()
	require.NoError(t, r.AddPattern(`internal-\d+`))
	assert.Equal(t, "host "+redactedMarker, r.Redact("host internal-42"))

	assert.Error(t, r.AddPattern(`[`))
}

func TestRedactingWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactor().Wrap(&buf)

	line := []byte("Bearer abcdef\n")
	n, err := w.Write(line)
	require.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.Equal(t, redactedMarker+"\n", buf.String())
}
