package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// DBPath is the SQLite database holding all persisted settings.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// RootNamespace overrides the settings namespace so independent
	// instances of the program can share a database.
	RootNamespace string `mapstructure:"root_namespace" yaml:"root_namespace"`

	// KeyringService is the service name used for keyring entries.
	KeyringService string `mapstructure:"keyring_service" yaml:"keyring_service"`

	// MailDir is the directory holding local folder stores
	// (outboxes, drafts, per-account local inboxes).
	MailDir string `mapstructure:"mail_dir" yaml:"mail_dir"`

	// PromptTimeoutSec bounds how long a background authentication may
	// wait for an interactive credential prompt.
	PromptTimeoutSec int `mapstructure:"prompt_timeout_sec" yaml:"prompt_timeout_sec"`

	// ProbeAddr is the host:port dialed by the connectivity monitor.
	ProbeAddr string `mapstructure:"probe_addr" yaml:"probe_addr"`

	// ProbeIntervalSec is how often connectivity is probed.
	ProbeIntervalSec int `mapstructure:"probe_interval_sec" yaml:"probe_interval_sec"`

	// RefreshIntervalSec is how often account mailboxes are refreshed
	// in the background.
	RefreshIntervalSec int `mapstructure:"refresh_interval_sec" yaml:"refresh_interval_sec"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/iwkmail/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "iwkmail", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dataDir := "."
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "iwkmail")
	}
	return &AppConfig{
		DBPath:             filepath.Join(dataDir, "settings.db"),
		KeyringService:     "iwkmail",
		MailDir:            filepath.Join(dataDir, "mail"),
		PromptTimeoutSec:   300,
		ProbeAddr:          "1.1.1.1:53",
		ProbeIntervalSec:   30,
		RefreshIntervalSec: 120,
		LogLevel:           "info",
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	def := defaultAppConfig()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("keyring_service", def.KeyringService)
	v.SetDefault("mail_dir", def.MailDir)
	v.SetDefault("prompt_timeout_sec", def.PromptTimeoutSec)
	v.SetDefault("probe_addr", def.ProbeAddr)
	v.SetDefault("probe_interval_sec", def.ProbeIntervalSec)
	v.SetDefault("refresh_interval_sec", def.RefreshIntervalSec)
	v.SetDefault("log_level", def.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
