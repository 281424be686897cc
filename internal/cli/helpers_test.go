package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeConfig writes a config file whose data directory is the temp dir.
func writeConfig(t *testing.T, tools map[string]any) string {
	t.Helper()

	dir := t.TempDir()
	cfg := map[string]any{
		"data_dir": dir,
		"logging":  map[string]any{"level": "error", "console": false, "file": filepath.Join(dir, "test.log")},
		"server":   map[string]any{"enabled": true, "host": "127.0.0.1", "port": 5000},
		"telegram": map[string]any{"enabled": false},
	}
	if tools != nil {
		cfg["tools"] = tools
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(dir, "recondora.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// writeCatalog writes a tool catalog next to the test's other files.
func writeCatalog(t *testing.T, catalog string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := GetRootCmd()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetErr(nil)
		reconJSON = false
		reconNoColor = false
		initForce = false
		for _, c := range append(cmd.Commands(), cmd) {
			if f := c.Flags().Lookup("help"); f != nil {
				_ = f.Value.Set("false")
				f.Changed = false
			}
		}
	})

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
