// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/treykane/alias-tunnel/internal/util"
	"gopkg.in/yaml.v3"
)

// Privilege controls how alias commands gain root.
type Privilege string

const (
	// PrivilegeAuto prefixes sudo unless the process already runs as root.
	PrivilegeAuto Privilege = "auto"
	PrivilegeSudo Privilege = "sudo"
	PrivilegeNone Privilege = "none"
)

// RemovePolicy selects which aliases are torn down after the session.
type RemovePolicy string

const (
	// RemoveAll removes every configured IP, whether or not its add succeeded.
	RemoveAll RemovePolicy = "all"
	// RemoveAddedOnly skips IPs whose add command failed.
	RemoveAddedOnly RemovePolicy = "added-only"
)

// SSHConfig holds settings for the tunnel process.
type SSHConfig struct {
	Binary    string   `yaml:"binary"`
	ExtraArgs []string `yaml:"extra_args"`
}

// AliasConfig holds settings for loopback alias commands.
type AliasConfig struct {
	Privilege    Privilege    `yaml:"privilege"`
	RemovePolicy RemovePolicy `yaml:"remove_policy"`
}

// JournalConfig toggles the events.jsonl session journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config holds application-level configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	SSH      SSHConfig     `yaml:"ssh"`
	Aliases  AliasConfig   `yaml:"aliases"`
	Journal  JournalConfig `yaml:"journal"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		SSH:      SSHConfig{Binary: util.DefaultSSHBinary},
		Aliases: AliasConfig{
			Privilege:    PrivilegeAuto,
			RemovePolicy: RemoveAll,
		},
		Journal: JournalConfig{Enabled: true},
	}
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/alias-tunnel.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, util.AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", util.AppName), nil
}

// EventsFilePath returns the full path to events.jsonl.
func EventsFilePath() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "events.jsonl"), nil
}

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(d, 0o700); err != nil {
		return Config{}, err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return normalize(cfg), nil
}

func normalize(cfg Config) Config {
	def := Default()
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		cfg.LogLevel = def.LogLevel
	}
	cfg.SSH.Binary = util.DefaultString(strings.TrimSpace(cfg.SSH.Binary), def.SSH.Binary)
	switch cfg.Aliases.Privilege {
	case PrivilegeAuto, PrivilegeSudo, PrivilegeNone:
	default:
		cfg.Aliases.Privilege = def.Aliases.Privilege
	}
	switch cfg.Aliases.RemovePolicy {
	case RemoveAll, RemoveAddedOnly:
	default:
		cfg.Aliases.RemovePolicy = def.Aliases.RemovePolicy
	}
	return cfg
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	d, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d, 0o700); err != nil {
		return err
	}
	path := filepath.Join(d, "config.yaml")
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
