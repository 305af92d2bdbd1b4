// Package config loads the TOML configuration file. Precedence is flags
// over file over built-in defaults; a missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config is the full file shape: one [global] table plus per-subcommand
// tables overriding it.
type Config struct {
	Global Global `mapstructure:"global" toml:"global"`
	Run    Run    `mapstructure:"run" toml:"run"`
	FTS    FTS    `mapstructure:"fts" toml:"fts"`
	Asset  Asset  `mapstructure:"asset" toml:"asset"`
}

// Global holds defaults every subcommand shares.
type Global struct {
	DataDir  string `mapstructure:"data_dir" toml:"data_dir"`
	LogLevel string `mapstructure:"log_level" toml:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" toml:"log_json"`
}

// Run configures the server subcommand.
type Run struct {
	Listen          string        `mapstructure:"listen" toml:"listen"`
	LockTTL         time.Duration `mapstructure:"lock_ttl" toml:"lock_ttl"`
	ReaperInterval  time.Duration `mapstructure:"reaper_interval" toml:"reaper_interval"`
	TemplatePrefix  string        `mapstructure:"template_prefix" toml:"template_prefix"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval" toml:"metrics_interval"`
	Metrics         bool          `mapstructure:"metrics" toml:"metrics"`
	TLSCert         string        `mapstructure:"tls_cert" toml:"tls_cert"`
	TLSKey          string        `mapstructure:"tls_key" toml:"tls_key"`
}

// FTS configures search subcommands.
type FTS struct {
	BatchSize int `mapstructure:"batch_size" toml:"batch_size"`
}

// Asset configures asset subcommands.
type Asset struct {
	MaxSize int64 `mapstructure:"max_size" toml:"max_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Global: Global{
			DataDir:  defaultDataDir(),
			LogLevel: "info",
		},
		Run: Run{
			Listen:          "127.0.0.1:8341",
			LockTTL:         300 * time.Second,
			ReaperInterval:  5 * time.Second,
			TemplatePrefix:  "/templates",
			MetricsInterval: time.Minute,
		},
		FTS:   FTS{BatchSize: 256},
		Asset: Asset{MaxSize: 10 << 20},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wikora"
	}
	return filepath.Join(home, ".wikora")
}

// Load reads path (or the default locations when path is empty) over the
// defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wikora")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultDataDir())
	}
	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Write renders cfg as TOML at path, for `wikora commands`-style
// bootstrapping and tests.
func (c *Config) Write(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// DBPath returns the KV database location under the data dir.
func (c *Config) DBPath() string { return filepath.Join(c.Global.DataDir, "wikora.db") }

// AssetRoot returns the asset tree location.
func (c *Config) AssetRoot() string { return filepath.Join(c.Global.DataDir, "assets") }

// IndexDir returns the full-text index location.
func (c *Config) IndexDir() string { return filepath.Join(c.Global.DataDir, "index") }
