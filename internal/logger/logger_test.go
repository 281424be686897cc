package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		logger, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, logger.closer)
		assert.NoError(t, logger.Close())
	})

	t.Run("plain file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "recondora.log")

		logger, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		logger.Info().Str("target", "example.com").Msg("recon started")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "recon started")
		assert.Contains(t, string(data), "example.com")
	})

	t.Run("rotating file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "recondora.log")

		logger, err := New(Config{Level: "info", File: logFile, MaxSize: 1})
		require.NoError(t, err)
		defer logger.Close()

		_, ok := logger.closer.(*RotatingWriter)
		assert.True(t, ok)
	})

	t.Run("redaction masks bot token", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "recondora.log")

		logger, err := New(Config{Level: "info", File: logFile, Redaction: true})
		require.NoError(t, err)
		require.NotNil(t, logger.redactor)

		logger.Info().Str("url", "https://api.telegram.org/bot123456789:AAbbCCddEEffGGhhIIjjKKllMMnnOOppQQ/getMe").Msg("request")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "AAbbCCddEEffGGhhIIjjKKllMMnnOOppQQ")
		assert.Contains(t, string(data), redactedMarker)
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := New(Config{Level: "loud", Console: true})
		require.NoError(t, err)
		assert.Equal(t, "info", logger.GetZerolog().GetLevel().String())
	})
}

func TestComponent(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "recondora.log")

	logger, err := New(Config{Level: "debug", File: logFile})
	require.NoError(t, err)

	child := logger.Component("dispatch")
	child.Debug().Msg("fan-out")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"dispatch"`)
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Info().Msg("discarded")
	assert.NoError(t, logger.Close())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
	assert.Greater(t, cfg.MaxSize, 0)
}
