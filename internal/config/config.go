// Package config loads and validates promptdrive configuration from a TOML
// file, layering file values over built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Application directory name used across all platforms.
const appName = "promptdrive"

// Config file name.
const configFileName = "config.toml"

// placeholderClientID is the value shipped in documentation examples. A config
// still carrying it is treated as not configured.
const placeholderClientID = "YOUR_CLIENT_ID.apps.googleusercontent.com"

// Default values. Layer 0 of the override chain: defaults -> config file ->
// CLI flags.
const (
	// DefaultFileName is the fixed name of the sync target file on Drive.
	DefaultFileName = "ai-prompt-assistant-prompts.json"

	defaultLogLevel   = "info"
	defaultListenAddr = "127.0.0.1:8391"
)

// Config holds all promptdrive settings.
type Config struct {
	// ClientID is the Google OAuth2 client identifier. Required for any
	// remote operation; everything local works without it.
	ClientID string `toml:"client_id"`

	// ClientSecret is optional — installed-app clients issued by Google
	// carry a non-confidential secret that still must be sent.
	ClientSecret string `toml:"client_secret"`

	// FileName is the name of the prompts file on Drive.
	FileName string `toml:"file_name"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// LibraryPath is the SQLite database holding the local prompt library.
	LibraryPath string `toml:"library_path"`

	// TokenPath is the cached OAuth token file.
	TokenPath string `toml:"token_path"`

	// MirrorPath is the optional JSON mirror written by export/watch.
	MirrorPath string `toml:"mirror_path"`

	// ListenAddr is the address the serve command binds to.
	ListenAddr string `toml:"listen_addr"`
}

// knownKeys are the valid top-level keys in the config file. Unknown keys are
// fatal — silently ignoring a typo leads to hard-to-debug behavior.
var knownKeys = map[string]bool{
	"client_id": true, "client_secret": true, "file_name": true,
	"log_level": true, "library_path": true, "token_path": true,
	"mirror_path": true, "listen_addr": true,
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// DefaultConfig returns a Config populated with all default values. Used both
// as the starting point for TOML decoding (unset fields retain defaults) and
// as the fallback when no config file exists.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()

	return &Config{
		FileName:    DefaultFileName,
		LogLevel:    defaultLogLevel,
		LibraryPath: filepath.Join(dataDir, "library.db"),
		TokenPath:   filepath.Join(dataDir, "token.json"),
		ListenAddr:  defaultListenAddr,
	}
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config layered over defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config with all default values. Supports the zero-config first-run
// experience for purely local commands.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Validate checks field values for consistency.
func Validate(cfg *Config) error {
	if cfg.FileName == "" {
		return fmt.Errorf("file_name must not be empty")
	}

	if strings.ContainsRune(cfg.FileName, '\'') {
		// The name is interpolated into a Drive search query.
		return fmt.Errorf("file_name %q must not contain single quotes", cfg.FileName)
	}

	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", cfg.LogLevel)
	}

	return nil
}

// IsConfigured reports whether a usable (non-placeholder) OAuth client ID is
// present. Remote operations short-circuit when false.
func (c *Config) IsConfigured() bool {
	return c.ClientID != "" && c.ClientID != placeholderClientID
}

// checkUnknownKeys rejects config keys that were decoded into nothing.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}

	sort.Strings(keys)

	return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
}

// DefaultConfigPath returns the full path of the default config file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/promptdrive).
// On macOS, uses ~/Library/Application Support/promptdrive.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultDataDir returns the platform-specific directory for application data
// (library database, cached token). Respects XDG_DATA_HOME on Linux.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".local", "share", appName)
}
