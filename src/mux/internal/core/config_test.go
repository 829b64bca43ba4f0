package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestNewConfig(t *testing.T) {
	t.Run("merges files in meta.yaml order", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"meta.yaml":        "files:\n  - base.yaml\n  - development.yaml\n",
			"base.yaml":        "service:\n  name: sorbet-mux\nlogging:\n  level: info\n",
			"development.yaml": "logging:\n  level: debug\n",
		})
		t.Setenv(_configDirEnv, dir)

		provider, err := NewConfig()
		require.NoError(t, err)

		assert.Equal(t, "sorbet-mux", provider.Get("service.name").String())
		assert.Equal(t, "debug", provider.Get("logging.level").String())
	})

	t.Run("skips listed files that do not exist", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"meta.yaml": "files:\n  - base.yaml\n  - local.yaml\n",
			"base.yaml": "logging:\n  level: info\n",
		})
		t.Setenv(_configDirEnv, dir)

		provider, err := NewConfig()
		require.NoError(t, err)
		assert.Equal(t, "info", provider.Get("logging.level").String())
	})

	t.Run("expands environment variables with defaults", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"meta.yaml": "files:\n  - base.yaml\n",
			"base.yaml": "jsonrpc:\n  address: \"127.0.0.1:${MUX_TEST_PORT:28176}\"\n",
		})
		t.Setenv(_configDirEnv, dir)

		provider, err := NewConfig()
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:28176", provider.Get("jsonrpc.address").String())

		t.Setenv("MUX_TEST_PORT", "9999")
		provider, err = NewConfig()
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9999", provider.Get("jsonrpc.address").String())
	})

	t.Run("fails without meta.yaml", func(t *testing.T) {
		t.Setenv(_configDirEnv, t.TempDir())

		_, err := NewConfig()
		assert.Error(t, err)
	})

	t.Run("fails when no listed file exists", func(t *testing.T) {
		dir := writeConfigDir(t, map[string]string{
			"meta.yaml": "files:\n  - base.yaml\n",
		})
		t.Setenv(_configDirEnv, dir)

		_, err := NewConfig()
		assert.Error(t, err)
	})
}

func TestConfigName(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"meta.yaml": "files:\n  - base.yaml\n",
		"base.yaml": "logging:\n  level: info\n",
	})
	t.Setenv(_configDirEnv, dir)

	provider, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "config", provider.Name())
}

func TestGetConfigDir(t *testing.T) {
	t.Run("returns environment variable when set", func(t *testing.T) {
		t.Setenv(_configDirEnv, "/custom/config/path")
		assert.Equal(t, "/custom/config/path", getConfigDir())
	})

	t.Run("returns default path when environment variable not set", func(t *testing.T) {
		t.Setenv(_configDirEnv, "")
		assert.Equal(t, _defaultConfigDir, getConfigDir())
	})
}
