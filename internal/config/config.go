// Package config loads offsync settings from ~/.config/offsync and the
// environment. Precedence is env > config file > default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marcus/offsync/internal/conflict"
	"github.com/marcus/offsync/internal/models"
)

// Defaults
const (
	DefaultServerURL      = "http://localhost:8080"
	DefaultSyncInterval   = 30 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultProbeInterval  = 15 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Config is the on-disk config (config.yaml, config.yml or config.json).
type Config struct {
	URL            string            `json:"url,omitempty" yaml:"url,omitempty"`
	APIKey         string            `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Tenant         string            `json:"tenant,omitempty" yaml:"tenant,omitempty"`
	DBPath         string            `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	SyncInterval   string            `json:"sync_interval,omitempty" yaml:"sync_interval,omitempty"`     // duration string
	RequestTimeout string            `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"` // duration string
	ProbeInterval  string            `json:"probe_interval,omitempty" yaml:"probe_interval,omitempty"`   // duration string
	Probe          *bool             `json:"probe,omitempty" yaml:"probe,omitempty"`                     // nil = default true
	MaxRetries     *int              `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	LogLevel       string            `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat      string            `json:"log_format,omitempty" yaml:"log_format,omitempty"`
	WebhookURL     string            `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	WebhookSecret  string            `json:"webhook_secret,omitempty" yaml:"webhook_secret,omitempty"`
	Conflicts      map[string]string `json:"conflicts,omitempty" yaml:"conflicts,omitempty"` // resource type -> strategy
}

// Settings are the effective values after applying env, file and defaults.
type Settings struct {
	URL            string                                    `json:"url" yaml:"url"`
	APIKey         string                                    `json:"-" yaml:"-"`
	Tenant         string                                    `json:"tenant" yaml:"tenant"`
	DBPath         string                                    `json:"db_path" yaml:"db_path"`
	SyncInterval   time.Duration                             `json:"sync_interval" yaml:"sync_interval"`
	RequestTimeout time.Duration                             `json:"request_timeout" yaml:"request_timeout"`
	ProbeInterval  time.Duration                             `json:"probe_interval" yaml:"probe_interval"`
	Probe          bool                                      `json:"probe" yaml:"probe"`
	MaxRetries     int                                       `json:"max_retries" yaml:"max_retries"`
	LogLevel       string                                    `json:"log_level" yaml:"log_level"`
	LogFormat      string                                    `json:"log_format" yaml:"log_format"`
	WebhookURL     string                                    `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	WebhookSecret  string                                    `json:"-" yaml:"-"`
	Conflicts      map[models.ResourceType]conflict.Strategy `json:"conflicts" yaml:"conflicts"`
}

var configNames = []string{"config.yaml", "config.yml", "config.json"}

// Dir returns the config directory: $OFFSYNC_HOME if set, else ~/.config/offsync.
// It is created if necessary.
func Dir() (string, error) {
	dir := os.Getenv("OFFSYNC_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".config", "offsync")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Path returns the config file in dir: the first existing of config.yaml,
// config.yml and config.json, or config.json if none exists.
func Path(dir string) string {
	for _, name := range configNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the config file in dir. A missing file yields an empty Config.
func Load(dir string) (*Config, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &cfg, nil
}

// Save writes cfg to the config file in dir using atomic write (temp file + rename).
func Save(dir string, cfg *Config) error {
	path := Path(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	// config may hold the API key
	tmp, err := os.CreateTemp(dir, "config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Set updates one key in the config file. Keys: url, api_key, tenant, db_path,
// sync_interval, request_timeout, probe_interval, probe, max_retries,
// log_level, log_format, webhook_url, webhook_secret, conflicts.<resource type>.
func Set(dir, key, value string) error {
	cfg, err := Load(dir)
	if err != nil {
		return err
	}
	if err := cfg.set(key, value); err != nil {
		return err
	}
	return Save(dir, cfg)
}

func (c *Config) set(key, value string) error {
	switch key {
	case "url":
		c.URL = value
	case "api_key":
		c.APIKey = value
	case "tenant":
		c.Tenant = value
	case "db_path":
		c.DBPath = value
	case "sync_interval", "request_timeout", "probe_interval":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		switch key {
		case "sync_interval":
			c.SyncInterval = value
		case "request_timeout":
			c.RequestTimeout = value
		default:
			c.ProbeInterval = value
		}
	case "probe":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("probe: %w", err)
		}
		c.Probe = &b
	case "max_retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("max_retries: invalid value %q", value)
		}
		c.MaxRetries = &n
	case "log_level":
		c.LogLevel = value
	case "log_format":
		c.LogFormat = value
	case "webhook_url":
		if value != "" && !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("webhook_url: must be an http(s) URL")
		}
		c.WebhookURL = value
	case "webhook_secret":
		c.WebhookSecret = value
	default:
		rtName, ok := strings.CutPrefix(key, "conflicts.")
		if !ok {
			return fmt.Errorf("unknown config key %q", key)
		}
		rt, err := models.ParseResourceType(rtName)
		if err != nil {
			return err
		}
		s, err := conflict.ParseStrategy(value)
		if err != nil {
			return err
		}
		if c.Conflicts == nil {
			c.Conflicts = make(map[string]string)
		}
		c.Conflicts[string(rt)] = string(s)
	}
	return nil
}

// Resolve applies env overrides and defaults. dir locates the default
// database path.
func (c *Config) Resolve(dir string) (*Settings, error) {
	s := &Settings{
		URL:       firstNonEmpty(os.Getenv("OFFSYNC_URL"), c.URL, DefaultServerURL),
		APIKey:    firstNonEmpty(os.Getenv("OFFSYNC_API_KEY"), c.APIKey),
		Tenant:    firstNonEmpty(os.Getenv("OFFSYNC_TENANT"), c.Tenant, models.DefaultTenant),
		DBPath:    firstNonEmpty(os.Getenv("OFFSYNC_DB"), c.DBPath, filepath.Join(dir, "offsync.db")),
		LogLevel:  strings.ToLower(firstNonEmpty(os.Getenv("OFFSYNC_LOG_LEVEL"), c.LogLevel, DefaultLogLevel)),
		LogFormat: strings.ToLower(firstNonEmpty(os.Getenv("OFFSYNC_LOG_FORMAT"), c.LogFormat, DefaultLogFormat)),
		Probe:     true,
		Conflicts: make(map[models.ResourceType]conflict.Strategy),
	}
	s.WebhookURL = firstNonEmpty(os.Getenv("OFFSYNC_WEBHOOK_URL"), c.WebhookURL)
	s.WebhookSecret = firstNonEmpty(os.Getenv("OFFSYNC_WEBHOOK_SECRET"), c.WebhookSecret)

	var err error
	if s.SyncInterval, err = durationSetting("OFFSYNC_SYNC_INTERVAL", c.SyncInterval, DefaultSyncInterval); err != nil {
		return nil, err
	}
	if s.RequestTimeout, err = durationSetting("OFFSYNC_REQUEST_TIMEOUT", c.RequestTimeout, DefaultRequestTimeout); err != nil {
		return nil, err
	}
	if s.ProbeInterval, err = durationSetting("OFFSYNC_PROBE_INTERVAL", c.ProbeInterval, DefaultProbeInterval); err != nil {
		return nil, err
	}

	s.MaxRetries = models.DefaultMaxRetries
	if c.MaxRetries != nil && *c.MaxRetries >= 0 {
		s.MaxRetries = *c.MaxRetries
	}
	if v := os.Getenv("OFFSYNC_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("OFFSYNC_MAX_RETRIES: invalid value %q", v)
		}
		s.MaxRetries = n
	}

	if c.Probe != nil {
		s.Probe = *c.Probe
	}
	if v := parseBoolEnv("OFFSYNC_PROBE"); v != nil {
		s.Probe = *v
	}

	for name, strategy := range c.Conflicts {
		rt, err := models.ParseResourceType(name)
		if err != nil {
			return nil, fmt.Errorf("conflicts: %w", err)
		}
		st, err := conflict.ParseStrategy(strategy)
		if err != nil {
			return nil, fmt.Errorf("conflicts.%s: %w", name, err)
		}
		s.Conflicts[rt] = st
	}

	return s, nil
}

// durationSetting returns env > file > def. Invalid values are errors.
func durationSetting(envKey, fileValue string, def time.Duration) (time.Duration, error) {
	if v := os.Getenv(envKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("%s: invalid duration %q", envKey, v)
		}
		return d, nil
	}
	if fileValue != "" {
		d, err := time.ParseDuration(fileValue)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("invalid duration %q", fileValue)
		}
		return d, nil
	}
	return def, nil
}

// parseBoolEnv returns nil if env not set, pointer to bool if set.
func parseBoolEnv(envKey string) *bool {
	v := strings.ToLower(os.Getenv(envKey))
	if v == "1" || v == "true" {
		b := true
		return &b
	}
	if v == "0" || v == "false" {
		b := false
		return &b
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
