// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for navstream.
//
// Configuration is read from ~/.navstream/config.toml, overlaid with
// environment overrides, completed with defaults and validated.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/navstream/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete navstream configuration.
type Config struct {
	Server  ServerConfig  `toml:"server" json:"server"`
	Session SessionConfig `toml:"session" json:"session"`
	Cache   CacheConfig   `toml:"cache" json:"cache"`
	Log     LogConfig     `toml:"log" json:"log"`
	UI      UIConfig      `toml:"ui" json:"ui"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	// BaseURL is the API root, e.g. http://localhost:8000/api
	BaseURL string `toml:"base_url" json:"base_url"`
	// Timeout bounds the wait for response headers and REST calls.
	Timeout Duration `toml:"timeout" json:"timeout"`
	// UserID owns conversations created through the REST store.
	UserID string `toml:"user_id" json:"user_id"`
}

// SessionConfig tunes the streaming session.
type SessionConfig struct {
	// MaxInterruptDepth bounds interrupts within one turn.
	MaxInterruptDepth int `toml:"max_interrupt_depth" json:"max_interrupt_depth"`
	// QueueSends queues sends issued while a turn is streaming instead of
	// rejecting them.
	QueueSends bool `toml:"queue_sends" json:"queue_sends"`
	// QueueSize bounds the send queue.
	QueueSize int `toml:"queue_size" json:"queue_size"`
}

// CacheConfig controls the local message cache.
type CacheConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path of the SQLite database (empty = ~/.navstream/cache.db)
	Path string `toml:"path" json:"path"`
	// MaxConversations limits cached conversations (0 = unlimited)
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// Format is "console" or "json"
	Format string `toml:"format" json:"format"`
	// File receives log output (empty = stderr)
	File string `toml:"file" json:"file"`
}

// UIConfig controls the terminal presentation.
type UIConfig struct {
	RenderMarkdown bool `toml:"render_markdown" json:"render_markdown"`
	// Theme is a glamour style: auto, dark, light, notty
	Theme string `toml:"theme" json:"theme"`
	// ShowStats prints latency stats after assistant messages
	ShowStats bool `toml:"show_stats" json:"show_stats"`
}

// Duration is a time.Duration written as a string ("30s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	DefaultBaseURL           = "http://localhost:8000/api"
	DefaultTimeout           = 30 * time.Second
	DefaultMaxInterruptDepth = 8
	DefaultQueueSize         = 5
	DefaultMaxConversations  = 200
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: DefaultBaseURL,
			Timeout: Duration{DefaultTimeout},
			UserID:  "user_001",
		},
		Session: SessionConfig{
			MaxInterruptDepth: DefaultMaxInterruptDepth,
			QueueSends:        false,
			QueueSize:         DefaultQueueSize,
		},
		Cache: CacheConfig{
			Enabled:          true,
			MaxConversations: DefaultMaxConversations,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		UI: UIConfig{
			RenderMarkdown: true,
			Theme:          "auto",
			ShowStats:      true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns ~/.navstream.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".navstream"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CachePath returns the configured cache path or the default location.
func (c *Config) CachePath() (string, error) {
	if c.Cache.Path != "" {
		return expandHome(c.Cache.Path), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// ensureSecurePermissions tightens config files to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the default config file, falling back to defaults when it does
// not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg and fills missing values.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadFromPath loads configuration from a specific file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	// Start from defaults so absent booleans keep their default value.
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults restores defaults for values explicitly emptied in the file.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if strings.TrimSpace(cfg.Server.BaseURL) == "" {
		cfg.Server.BaseURL = defaults.Server.BaseURL
	}
	if cfg.Server.Timeout.Duration == 0 {
		cfg.Server.Timeout = defaults.Server.Timeout
	}
	if cfg.Server.UserID == "" {
		cfg.Server.UserID = defaults.Server.UserID
	}
	if cfg.Session.MaxInterruptDepth == 0 {
		cfg.Session.MaxInterruptDepth = defaults.Session.MaxInterruptDepth
	}
	if cfg.Session.QueueSize == 0 {
		cfg.Session.QueueSize = defaults.Session.QueueSize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# navstream configuration file\n")
	buf.WriteString("# Generated by navstream - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"console": true, "json": true}
	validThemes  = map[string]bool{"auto": true, "dark": true, "light": true, "notty": true, "dracula": true}
)

// Validate checks the configuration and returns ValidateErrors on failure.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Server.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[:port][/path]", c.Server.BaseURL),
		})
	}
	if c.Server.Timeout.Duration < 0 {
		errs = append(errs, ValidationError{Field: "server.timeout", Message: "must not be negative"})
	}
	if c.Session.MaxInterruptDepth < 1 || c.Session.MaxInterruptDepth > 100 {
		errs = append(errs, ValidationError{
			Field:   "session.max_interrupt_depth",
			Message: fmt.Sprintf("must be between 1 and 100, got %d", c.Session.MaxInterruptDepth),
		})
	}
	if c.Session.QueueSize < 0 {
		errs = append(errs, ValidationError{Field: "session.queue_size", Message: "must not be negative"})
	}
	if c.Cache.MaxConversations < 0 {
		errs = append(errs, ValidationError{Field: "cache.max_conversations", Message: "must not be negative"})
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: console, json", c.Log.Format),
		})
	}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light, notty, dracula", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies NAVSTREAM_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NAVSTREAM_SERVER_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("NAVSTREAM_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("NAVSTREAM_MAX_INTERRUPT_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Session.MaxInterruptDepth = n
		}
	}
	if v := os.Getenv("NAVSTREAM_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("NAVSTREAM_QUEUE_SENDS"); v != "" {
		c.Session.QueueSends = v == "1" || strings.EqualFold(v, "true")
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "log.level").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	if d, ok := field.Interface().(Duration); ok {
		return d.String(), nil
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g. "log.level").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if key == "" || len(parts) != 2 {
		return reflect.Value{}, fmt.Errorf("invalid key: %q (want section.field)", key)
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return v, nil
}

// normalizeFieldName converts snake_case or kebab-case to a Go field name.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

// setFieldValue sets a field from a string or an assignable value.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		if field.Type() == reflect.TypeOf(Duration{}) {
			var d Duration
			if err := d.UnmarshalText([]byte(strVal)); err != nil {
				return fmt.Errorf("invalid duration value: %v", err)
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.New("cannot assign nil")
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the configuration as indented JSON for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration, loading it on first access.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
