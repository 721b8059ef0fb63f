package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"kioskcal/internal/timeline"
)

var (
	ErrEmptyPath = errors.New("config path is empty")
	ErrNilConfig = errors.New("config is nil")
)

// Values offered by the widget settings UI.
var (
	LookBackChoices = []int{0, 15, 30, 60, 120}
	DurationChoices = []int{4, 6, 8, 10, 12}
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint or a local file path.
	URL string `yaml:"url" json:"url"`
	// ID becomes the CalendarID of every event from this source.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// CalendarID returns the identifier used for events of this source.
func (c ICSConfig) CalendarID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// MultiDayConfig controls the week view.
type MultiDayConfig struct {
	// NumberOfDays is clamped to 3..7.
	NumberOfDays int `yaml:"number_of_days" json:"number_of_days"`
	// StartDay is "today" or "weekStart".
	StartDay timeline.StartDay `yaml:"start_day" json:"start_day"`
}

// AllDayConfig controls the all-day strip.
type AllDayConfig struct {
	Show  bool `yaml:"show" json:"show"`
	Dedup bool `yaml:"dedup" json:"dedup"`
}

// CaptureConfig controls periodic screenshots of the kiosk page.
type CaptureConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// URL of the rendered dashboard page.
	URL string `yaml:"url" json:"url"`
	// Output is where the PNG is written.
	Output string `yaml:"output" json:"output"`
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
	// Schedule is a cron expression; defaults to every 15 minutes.
	Schedule       string `yaml:"schedule" json:"schedule"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone events are normalized to (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron schedules event refreshes (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// TickCron schedules layout recomputation.
	TickCron string `yaml:"tick" json:"tick"`

	// LogLevel is debug, info or error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// HorizonDays bounds recurrence expansion into the future.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	Window   timeline.WindowConfig `yaml:"window" json:"window"`
	MultiDay MultiDayConfig        `yaml:"multi_day" json:"multi_day"`
	AllDay   AllDayConfig          `yaml:"all_day" json:"all_day"`
	Capture  CaptureConfig         `yaml:"capture" json:"capture"`

	// ICS is the list of subscribed calendars.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Local",
		WeekStart:   "monday",
		RefreshCron: "*/15 * * * *",
		TickCron:    "@every 1m",
		LogLevel:    "info",
		CacheDir:    "./var/ics-cache",
		HorizonDays: 7,
		Window:      timeline.FixedWindow(6, 21),
		MultiDay: MultiDayConfig{
			NumberOfDays: 7,
			StartDay:     timeline.StartWeekStart,
		},
		AllDay: AllDayConfig{Show: true, Dedup: true},
		Capture: CaptureConfig{
			Enabled:        false,
			URL:            "http://127.0.0.1:8080/",
			Output:         "./var/preview.png",
			Width:          1280,
			Height:         800,
			Schedule:       "*/15 * * * *",
			TimeoutSeconds: 30,
		},
		ICS: []ICSConfig{},
	}
}

// Normalize fills in missing values and replaces out-of-range ones with
// defaults so that hand-edited configs still render something sensible.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = def.WeekStart
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.TickCron == "" {
		c.TickCron = def.TickCron
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}

	c.normalizeWindow(def.Window)

	if c.MultiDay.NumberOfDays == 0 {
		c.MultiDay.NumberOfDays = def.MultiDay.NumberOfDays
	}
	c.MultiDay.NumberOfDays = min(max(c.MultiDay.NumberOfDays, timeline.MinDays), timeline.MaxDays)
	switch c.MultiDay.StartDay {
	case timeline.StartToday, timeline.StartWeekStart:
	default:
		c.MultiDay.StartDay = def.MultiDay.StartDay
	}

	if c.Capture.URL == "" {
		c.Capture.URL = def.Capture.URL
	}
	if c.Capture.Output == "" {
		c.Capture.Output = def.Capture.Output
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = def.Capture.Width
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = def.Capture.Height
	}
	if c.Capture.Schedule == "" {
		c.Capture.Schedule = def.Capture.Schedule
	}
	if c.Capture.TimeoutSeconds <= 0 {
		c.Capture.TimeoutSeconds = def.Capture.TimeoutSeconds
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

func (c *Config) normalizeWindow(def timeline.WindowConfig) {
	w := &c.Window
	switch w.Mode {
	case timeline.ModeFixed:
		if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 || w.EndHour < w.StartHour {
			w.StartHour, w.EndHour = def.StartHour, def.EndHour
		}
	case timeline.ModeRolling:
		if !slices.Contains(LookBackChoices, w.LookBackMinutes) {
			w.LookBackMinutes = 0
		}
		if !slices.Contains(DurationChoices, w.DurationHours) {
			w.DurationHours = 8
		}
	default:
		*w = def
	}
}

// Validate reports every setting that Normalize would have to replace.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Window.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Window.Mode == timeline.ModeRolling {
		if !slices.Contains(LookBackChoices, c.Window.LookBackMinutes) {
			errs = append(errs, fmt.Errorf("window.look_back_minutes must be one of %v", LookBackChoices))
		}
		if !slices.Contains(DurationChoices, c.Window.DurationHours) {
			errs = append(errs, fmt.Errorf("window.duration_hours must be one of %v", DurationChoices))
		}
	}
	if n := c.MultiDay.NumberOfDays; n < timeline.MinDays || n > timeline.MaxDays {
		errs = append(errs, fmt.Errorf("multi_day.number_of_days must be %d..%d, got %d", timeline.MinDays, timeline.MaxDays, n))
	}
	switch c.MultiDay.StartDay {
	case timeline.StartToday, timeline.StartWeekStart:
	default:
		errs = append(errs, fmt.Errorf("multi_day.start_day must be %q or %q, got %q", timeline.StartToday, timeline.StartWeekStart, c.MultiDay.StartDay))
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		errs = append(errs, fmt.Errorf("week_start must be monday or sunday, got %q", c.WeekStart))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location resolves Timezone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// WeekStartDay returns the configured first weekday.
func (c *Config) WeekStartDay() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// DaysConfig builds the multi-day layout configuration.
func (c *Config) DaysConfig() timeline.DaysConfig {
	return timeline.DaysConfig{
		Window:       c.Window,
		NumberOfDays: c.MultiDay.NumberOfDays,
		StartDay:     c.MultiDay.StartDay,
		WeekStart:    c.WeekStartDay(),
		DedupAllDay:  c.AllDay.Dedup,
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     permissions and returned.
//   - Otherwise the YAML is decoded over the defaults and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML over the defaults and normalizes the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return ErrNilConfig
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".kioskcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
