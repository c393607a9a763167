package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.MaxSchedulers)
	assert.Equal(t, 500, cfg.IndexBlockSize)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowmill.yaml")
	content := `
data_dir: /var/lib/flowmill
log_level: debug
log_json: true
max_schedulers: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/flowmill", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, 10, cfg.MaxSchedulers)
	// unset values keep their defaults
	assert.Equal(t, 500, cfg.IndexBlockSize)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("/no/such/file.yaml")
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: [\n"), 0600))
	_, err = Load(path)
	require.Error(t, err)
}
