// Package config loads the optional parcel configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/bamsammich/parcel/internal/codec"
	"github.com/bamsammich/parcel/internal/header"
)

// Config represents the optional parcel configuration file. Unset values
// are nil so callers can tell them apart from explicit zero values.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Filter   FilterConfig   `toml:"filter"`
	Theme    ThemeConfig    `toml:"theme"`
}

// DefaultsConfig holds persistent flag defaults.
type DefaultsConfig struct {
	Codec     *codec.Algorithm    `toml:"codec"`
	Level     *int                `toml:"level"`
	Keys      *header.FieldKeySet `toml:"keys"`
	Jobs      *int                `toml:"jobs"`
	Overwrite *bool               `toml:"overwrite"`
	Verify    *bool               `toml:"verify"`
	BWLimit   *string             `toml:"bwlimit"`
	OutputDir *string             `toml:"output_dir"`
}

// FilterConfig holds glob rules applied before any given on the command
// line.
type FilterConfig struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// ThemeConfig holds optional color overrides for terminal output.
type ThemeConfig struct {
	Green  *string `toml:"green"`
	Red    *string `toml:"red"`
	Yellow *string `toml:"yellow"`
	Teal   *string `toml:"teal"`
	Mauve  *string `toml:"mauve"`
	Muted  *string `toml:"muted"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "parcel", "config.toml")
}

// Load reads the config file from the XDG path. A missing file yields a
// zero Config and no error.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero
// Config and no error; unknown keys are rejected.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Defaults.Jobs != nil && *c.Defaults.Jobs < 0 {
		return fmt.Errorf("defaults.jobs must not be negative, got %d", *c.Defaults.Jobs)
	}
	if c.Defaults.Level != nil && *c.Defaults.Level < 0 {
		return fmt.Errorf("defaults.level must not be negative, got %d", *c.Defaults.Level)
	}
	return nil
}
