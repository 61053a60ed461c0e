package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/parcel/internal/codec"
	"github.com/bamsammich/parcel/internal/config"
	"github.com/bamsammich/parcel/internal/header"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	configDir := filepath.Join(dir, "parcel")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.Codec)
	assert.Nil(t, cfg.Defaults.Jobs)
	assert.Empty(t, cfg.Filter.Exclude)
	assert.Nil(t, cfg.Theme.Green)
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
[defaults]
codec = "zstd"
level = 3
keys = "default,HSH"
jobs = 4
overwrite = true
verify = false
bwlimit = "50M"
output_dir = "/srv/archives"

[filter]
exclude = ["*.tmp", ".git/"]
include = ["keep.tmp"]

[theme]
green = "#00ff00"
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Defaults.Codec)
	assert.Equal(t, codec.Zstd, *cfg.Defaults.Codec)
	require.NotNil(t, cfg.Defaults.Level)
	assert.Equal(t, 3, *cfg.Defaults.Level)
	require.NotNil(t, cfg.Defaults.Keys)
	assert.True(t, cfg.Defaults.Keys.Has(header.KeyHSH))
	assert.True(t, cfg.Defaults.Keys.Has(header.KeyMTM))
	assert.False(t, cfg.Defaults.Keys.Has(header.KeyATM))
	require.NotNil(t, cfg.Defaults.Jobs)
	assert.Equal(t, 4, *cfg.Defaults.Jobs)
	require.NotNil(t, cfg.Defaults.Overwrite)
	assert.True(t, *cfg.Defaults.Overwrite)
	require.NotNil(t, cfg.Defaults.Verify)
	assert.False(t, *cfg.Defaults.Verify)
	require.NotNil(t, cfg.Defaults.BWLimit)
	assert.Equal(t, "50M", *cfg.Defaults.BWLimit)
	require.NotNil(t, cfg.Defaults.OutputDir)
	assert.Equal(t, "/srv/archives", *cfg.Defaults.OutputDir)

	assert.Equal(t, []string{"*.tmp", ".git/"}, cfg.Filter.Exclude)
	assert.Equal(t, []string{"keep.tmp"}, cfg.Filter.Include)

	require.NotNil(t, cfg.Theme.Green)
	assert.Equal(t, "#00ff00", *cfg.Theme.Green)
	assert.Nil(t, cfg.Theme.Red)
}

func TestLoad_PartialConfig(t *testing.T) {
	writeConfig(t, `
[filter]
exclude = ["node_modules/"]
`)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.Codec)
	assert.Nil(t, cfg.Defaults.Verify)
	assert.Equal(t, []string{"node_modules/"}, cfg.Filter.Exclude)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name, content string
	}{
		{"invalid toml", "invalid [[["},
		{"unknown codec", "[defaults]\ncodec = \"rar\"\n"},
		{"unknown key name", "[defaults]\nkeys = \"path,colour\"\n"},
		{"unknown field", "[defaults]\nworkers = 8\n"},
		{"negative jobs", "[defaults]\njobs = -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.content)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/parcel/config.toml", config.Path())
}

func TestPath_HomeFallback(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, ".config", "parcel", "config.toml"), config.Path())
}
