package executor

import (
	"net/http"
	"testing"

	"github.com/harun/recondora/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatResponse(t *testing.T) {
	ok := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}

	tests := []struct {
		name   string
		format registry.Format
		body   string
		want   string
	}{
		{"text is untouched", registry.FormatText, `{"a":1}`, `{"a":1}`},
		{"empty format is text", "", "plain", "plain"},
		{"json is indented", registry.FormatJSON, `{"cms":"WordPress","version":"6.4"}`, "{\n  \"cms\": \"WordPress\",\n  \"version\": \"6.4\"\n}"},
		{"json falls back to text", registry.FormatJSON, "not json", "not json"},
		{"crtsh empty body", registry.FormatCrtsh, "", ""},
		{"crtsh empty list", registry.FormatCrtsh, "[]", ""},
		{
			"technologies grouped by first category",
			registry.FormatTechnologies,
			`{"technologies": [
				{"name": "Nginx", "version": "1.25", "categories": [{"name": "Web servers"}]},
				{"name": "React", "categories": [{"name": "JavaScript frameworks"}, {"name": "UI"}]},
				{"name": "Apache", "version": null, "categories": [{"name": "Web servers"}]},
				{"name": "Orphan", "categories": []}
			]}`,
			"JavaScript frameworks: React\nWeb servers: Nginx (v1.25), Apache",
		},
		{"technologies none", registry.FormatTechnologies, `{"technologies": []}`, ""},
		{"emails numbered", registry.FormatEmails, `{"status": "Good", "result": ["a@example.com", "b@example.com"]}`, "1. a@example.com\n2. b@example.com"},
		{"emails none", registry.FormatEmails, `{"status": "Good", "result": []}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatResponse(tt.format, ok, tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatResponseErrors(t *testing.T) {
	ok := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}

	_, err := formatResponse(registry.FormatCrtsh, ok, "<html>")
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = formatResponse(registry.FormatTechnologies, ok, "[")
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = formatResponse(registry.FormatEmails, ok, `{"status": "Weird"}`)
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = formatResponse(registry.FormatEmails, ok, `{"status": "Bad", "result": "Invalid URL"}`)
	require.Error(t, err)
	assert.Equal(t, "Invalid URL", err.Error())
}

func TestFormatAllowHeader(t *testing.T) {
	got, err := formatResponse(registry.FormatAllowHeader, &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}, "")
	require.NoError(t, err)
	assert.Equal(t, "Allow: "+allowUnspecified+"\nStatus: 200", got)
}
