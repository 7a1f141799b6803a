package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"leasesched/internal/retry"
	"leasesched/internal/selection"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SlotConfig bounds the meeting slots offered per day.
type SlotConfig struct {
	StartHour       int `yaml:"start_hour" json:"start_hour"`
	EndHour         int `yaml:"end_hour" json:"end_hour"`
	IntervalMinutes int `yaml:"interval_minutes" json:"interval_minutes"`
}

// MeetingConfig describes the virtual meeting written into invites.
type MeetingConfig struct {
	DurationMinutes int    `yaml:"duration_minutes" json:"duration_minutes"`
	OrganizerEmail  string `yaml:"organizer_email" json:"organizer_email"`
	OrganizerName   string `yaml:"organizer_name" json:"organizer_name"`
}

// FeedConfig is one subscribed iCalendar feed.
type FeedConfig struct {
	// ID is a short internal identifier used in logs.
	ID string `yaml:"id" json:"id"`
	// URL is the feed endpoint. It often embeds an access token and is
	// never logged in full.
	URL string `yaml:"url" json:"url"`
}

// BusyConfig lists the leasing team's calendars. Meeting slots that overlap
// their events are marked busy.
type BusyConfig struct {
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// Refresh is a cron schedule for re-reading the feeds. Empty reads them
	// once at startup only.
	Refresh string `yaml:"refresh" json:"refresh"`

	// HorizonDays is how far ahead recurring events are expanded.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// CacheDir holds the last good copy of each feed. Empty uses
	// <data_dir>/feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used when a request names none (e.g. "America/New_York").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// DataDir holds one JSON file per stored availability set and meeting.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// OutboxDir receives generated invites. Empty disables the outbox and
	// invites are only logged.
	OutboxDir string `yaml:"outbox_dir" json:"outbox_dir"`

	Selection selection.Options `yaml:"selection" json:"selection"`
	Slots     SlotConfig        `yaml:"slots" json:"slots"`
	Meeting   MeetingConfig     `yaml:"meeting" json:"meeting"`

	// ExpirySweep is a cron schedule (e.g. "*/15 * * * *") for the
	// expired-request sweep. Empty disables it.
	ExpirySweep string `yaml:"expiry_sweep" json:"expiry_sweep"`

	Busy BusyConfig `yaml:"busy" json:"busy"`

	// Retry applies to persistence, invite delivery and feed downloads.
	Retry retry.Policy `yaml:"retry" json:"retry"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultDataDir     = "./var/data"
	defaultExpirySweep = "*/15 * * * *"
	defaultBusyRefresh = "*/10 * * * *"
	defaultBusyHorizon = 60
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		LogLevel:    "info",
		DataDir:     defaultDataDir,
		Selection:   selection.DefaultOptions(),
		Slots:       SlotConfig{StartHour: 9, EndHour: 18, IntervalMinutes: 30},
		Meeting:     MeetingConfig{DurationMinutes: 30, OrganizerName: "Leasing team"},
		ExpirySweep: defaultExpirySweep,
		Busy:        BusyConfig{Refresh: defaultBusyRefresh, HorizonDays: defaultBusyHorizon},
		Retry:       retry.DefaultPolicy(),
	}
}

// Normalize fills in missing/zero values so that partially filled configs
// (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}

	if c.Selection.MinNights < 0 {
		c.Selection.MinNights = 0
	}
	if c.Selection.MaxNights < 0 {
		c.Selection.MaxNights = 0
	}

	// An unusable slot window falls back to business hours as a whole.
	s := c.Slots
	if s.StartHour < 0 || s.EndHour > 24 || s.StartHour >= s.EndHour || s.IntervalMinutes <= 0 {
		c.Slots = def.Slots
	}

	if c.Meeting.DurationMinutes <= 0 {
		c.Meeting.DurationMinutes = def.Meeting.DurationMinutes
	}
	if c.Meeting.OrganizerName == "" {
		c.Meeting.OrganizerName = def.Meeting.OrganizerName
	}

	if c.Busy.HorizonDays <= 0 {
		c.Busy.HorizonDays = def.Busy.HorizonDays
	}
	feeds := c.Busy.Feeds[:0]
	for _, f := range c.Busy.Feeds {
		if f.URL == "" {
			continue
		}
		if f.ID == "" {
			f.ID = fmt.Sprintf("feed-%d", len(feeds)+1)
		}
		feeds = append(feeds, f)
	}
	c.Busy.Feeds = feeds

	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = def.Retry.Attempts
	}
	if c.Retry.BaseDelay < 0 {
		c.Retry.BaseDelay = 0
	}
	if c.Retry.MaxDelay < 0 {
		c.Retry.MaxDelay = 0
	}

	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is read and defaults are filled in.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg with the error so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".leasesched-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// BusyCacheDir returns where feed copies are kept.
func (c *Config) BusyCacheDir() string {
	if c.Busy.CacheDir != "" {
		return c.Busy.CacheDir
	}
	return filepath.Join(c.DataDir, "feeds")
}
