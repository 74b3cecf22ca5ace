package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "FLUVIUS_"

// Config contains configuration for the application.
type Config struct {
	Portal   PortalConfig   `json:"portal"`
	Meter    MeterConfig    `json:"meter"`
	Fetch    FetchConfig    `json:"fetch"`
	Browser  BrowserConfig  `json:"browser"`
	Session  SessionConfig  `json:"session"`
	Cache    CacheConfig    `json:"cache"`
	Export   ExportConfig   `json:"export"`
	Logging  LoggingConfig  `json:"logging"`
	Schedule ScheduleConfig `json:"schedule"`
}

// PortalConfig describes the customer portal and its credentials.
type PortalConfig struct {
	BaseURL         string `json:"base_url"`
	APIBaseURL      string `json:"api_base_url"`
	ConsumptionPath string `json:"consumption_path"`
	LoginHost       string `json:"login_host"`
	Login           string `json:"login"`
	Password        string `json:"password"`
}

func (c *PortalConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://mijn.fluvius.be"
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = "https://mijn.fluvius.be/verbruik/api"
	}
	if c.ConsumptionPath == "" {
		c.ConsumptionPath = "/verbruik"
	}
	if c.LoginHost == "" {
		c.LoginHost = "b2clogin"
	}
}

// MeterConfig identifies the metering point.
type MeterConfig struct {
	EAN    string `json:"ean"`
	Serial string `json:"serial"`
}

func (c MeterConfig) Validate() error {
	if c.EAN == "" || c.Serial == "" {
		return errors.New("meter.ean and meter.serial are required")
	}
	return nil
}

// FetchConfig controls the history request.
type FetchConfig struct {
	DaysBack  int    `json:"days_back"`
	Timezone  string `json:"timezone"`
	UserAgent string `json:"user_agent"`
}

func (c *FetchConfig) SetDefaults() {
	if c.DaysBack == 0 {
		c.DaysBack = 7
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Brussels"
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

func (c FetchConfig) Validate() error {
	if c.DaysBack < 0 {
		return fmt.Errorf("fetch.days_back must not be negative, got %d", c.DaysBack)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("fetch.timezone: %w", err)
	}
	return nil
}

// Location returns the configured time zone, falling back to local time.
func (c FetchConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// BrowserConfig controls the headless browser used for login.
type BrowserConfig struct {
	Headful     bool          `json:"headful"`
	ExecPath    string        `json:"exec_path"`
	UserAgent   string        `json:"user_agent"`
	StepTimeout time.Duration `json:"step_timeout"`
	Settle      time.Duration `json:"settle"`
}

func (c *BrowserConfig) SetDefaults() {
	if c.StepTimeout == 0 {
		c.StepTimeout = 20 * time.Second
	}
	if c.Settle == 0 {
		c.Settle = 5 * time.Second
	}
}

// SessionConfig controls how the bearer token is obtained and reused.
type SessionConfig struct {
	Token        string        `json:"token"`
	TokenFile    string        `json:"token_file"`
	Reuse        bool          `json:"reuse"`
	MaxAge       time.Duration `json:"max_age"`
	BearerPrefix string        `json:"bearer_prefix"`
	APIFilter    string        `json:"api_filter"`
}

func (c *SessionConfig) SetDefaults() {
	if c.MaxAge == 0 {
		c.MaxAge = 30 * time.Minute
	}
	if c.BearerPrefix == "" {
		c.BearerPrefix = "Bearer"
	}
	if c.APIFilter == "" {
		c.APIFilter = "/api/"
	}
}

// CacheConfig controls the on-disk response cache. Dir "disable" turns it off,
// an empty Dir uses the system temp directory.
type CacheConfig struct {
	Dir    string        `json:"dir"`
	MaxAge time.Duration `json:"max_age"`
}

func (c *CacheConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "disable"
	}
	if c.MaxAge == 0 {
		c.MaxAge = time.Hour
	}
}

// ScheduleConfig holds the cron expression for the schedule command.
type ScheduleConfig struct {
	Cron string `json:"cron"`
}

func (c *ScheduleConfig) SetDefaults() {
	if c.Cron == "" {
		c.Cron = "0 6 * * *"
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Format)
	}
}

func (c *Config) SetDefaults() {
	c.Portal.SetDefaults()
	c.Fetch.SetDefaults()
	c.Browser.SetDefaults()
	c.Session.SetDefaults()
	c.Cache.SetDefaults()
	c.Export.SetDefaults()
	c.Logging.SetDefaults()
	c.Schedule.SetDefaults()
}

// Validate checks the settings needed for a full run.
func (c *Config) Validate() error {
	if c.Session.Token == "" && (c.Portal.Login == "" || c.Portal.Password == "") {
		return errors.New("portal.login and portal.password are required unless session.token is set")
	}
	if c.Session.Reuse && c.Session.TokenFile == "" {
		return errors.New("session.reuse requires session.token_file")
	}
	if err := c.Meter.Validate(); err != nil {
		return err
	}
	if err := c.Fetch.Validate(); err != nil {
		return err
	}
	if err := c.Export.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// Load reads the configuration file at path, if present, then applies FLUVIUS_*
// environment overrides. Nested keys use a double underscore, e.g.
// FLUVIUS_PORTAL__LOGIN. A missing file is only an error when required is set.
func Load(path string, required bool) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			parser, err := parserFor(path)
			if err != nil {
				return nil, err
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
		case required || !errors.Is(statErr, os.ErrNotExist):
			return nil, fmt.Errorf("config file: %w", statErr)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return &cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
}
