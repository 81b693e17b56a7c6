package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/rawsniff/internal/config"
	"firestige.xyz/rawsniff/internal/core"
)

func TestRunConfig_Defaults(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runConfig("", &buf))

	var out struct {
		Rawsniff config.GlobalConfig `yaml:"rawsniff"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "socket", out.Rawsniff.Capture.Source)
	assert.Equal(t, "500ms", out.Rawsniff.Capture.ReadTimeout)
	assert.Equal(t, []config.SinkConfig{{Name: "console"}}, out.Rawsniff.Sinks)
	assert.Contains(t, buf.String(), "rawsniff:\n  capture:\n")
}

func TestRunConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
rawsniff:
  capture:
    source: tap
    interface: tap0
  sinks:
    - name: counter
      config:
        db_path: /var/lib/rawsniff/counters.db
`), 0o644))

	var buf bytes.Buffer
	require.NoError(t, runConfig(path, &buf))
	assert.Contains(t, buf.String(), "source: tap")
	assert.Contains(t, buf.String(), "db_path: /var/lib/rawsniff/counters.db")
}

func TestRunConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("rawsniff:\n  capture:\n    workers: -2\n"), 0o644))

	err := runConfig(path, &bytes.Buffer{})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf)
	assert.Regexp(t, `^rawsniff dev \(go.+, \w+/\w+\)\n$`, buf.String())
}

func TestRootCommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"capture", "config", "version"})
}
