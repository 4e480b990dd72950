// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath    = "biligo.toml"
	DefaultHTTPAddr      = ":5000"
	DefaultDataDir       = "."
	DefaultSettingsFile  = "config.json"
	DefaultRulesFile     = "keywords.json"
	DefaultAITimeoutSecs = 30
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log    LogConfig    `toml:"log"`
	Server ServerConfig `toml:"server"`
	Data   DataConfig   `toml:"data"`
	AI     AIConfig     `toml:"ai"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the admin HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// DataConfig holds the directory and file names for the runtime settings
// and keyword rule stores.
type DataConfig struct {
	Dir          string `toml:"dir"`
	SettingsFile string `toml:"settings_file"`
	RulesFile    string `toml:"rules_file"`
}

// AIConfig holds the AI reply service request timeout.
type AIConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// SettingsPath returns the absolute-ish path of the runtime settings file.
func (c DataConfig) SettingsPath() string {
	return filepath.Join(c.Dir, c.SettingsFile)
}

// RulesPath returns the path of the keyword rules file.
func (c DataConfig) RulesPath() string {
	return filepath.Join(c.Dir, c.RulesFile)
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Data: DataConfig{
			Dir:          DefaultDataDir,
			SettingsFile: DefaultSettingsFile,
			RulesFile:    DefaultRulesFile,
		},
		AI: AIConfig{
			TimeoutSeconds: DefaultAITimeoutSecs,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
