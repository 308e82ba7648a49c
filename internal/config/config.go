// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Components depend on it so tests can hand in a hand-built Config.
type Interface interface {
	Logger() LoggerConfig
	Store() StoreConfig
	Watcher() WatcherConfig
	Alarm() AlarmConfig
	Browser() BrowserConfig
	Settings() SettingsConfig

	SetStoreDriver(driver string)
	SetBrowserHeadless(bool)
	SetWatcherMutationDebounce(d time.Duration)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	StoreCfg    StoreConfig    `mapstructure:"store" yaml:"store"`
	WatcherCfg  WatcherConfig  `mapstructure:"watcher" yaml:"watcher"`
	AlarmCfg    AlarmConfig    `mapstructure:"alarm" yaml:"alarm"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	SettingsCfg SettingsConfig `mapstructure:"settings" yaml:"settings"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Store() StoreConfig       { return c.StoreCfg }
func (c *Config) Watcher() WatcherConfig   { return c.WatcherCfg }
func (c *Config) Alarm() AlarmConfig       { return c.AlarmCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Settings() SettingsConfig { return c.SettingsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetStoreDriver(driver string)               { c.StoreCfg.Driver = driver }
func (c *Config) SetBrowserHeadless(b bool)                  { c.BrowserCfg.Headless = b }
func (c *Config) SetWatcherMutationDebounce(d time.Duration) { c.WatcherCfg.MutationDebounce = d }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Supported persistence drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StoreConfig selects and configures the key-value persistence backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	// Path is the sqlite database file. "~" is expanded.
	Path string `mapstructure:"path" yaml:"path"`
	// DSN is the postgres connection string.
	DSN   string `mapstructure:"dsn" yaml:"-"`
	Table string `mapstructure:"table" yaml:"table"`
}

// ResolvedPath returns Path with a leading "~" expanded to the home directory.
func (s StoreConfig) ResolvedPath() (string, error) {
	if s.Path == "" || s.Path == ":memory:" {
		return s.Path, nil
	}
	p, err := homedir.Expand(s.Path)
	if err != nil {
		return "", fmt.Errorf("failed to expand store path %q: %w", s.Path, err)
	}
	return p, nil
}

// WatcherConfig tunes the clock button watcher.
type WatcherConfig struct {
	MutationDebounce time.Duration `mapstructure:"mutation_debounce" yaml:"mutation_debounce"`
	ClickDebounce    time.Duration `mapstructure:"click_debounce" yaml:"click_debounce"`
	// Notify toggles the "entry recorded" confirmation.
	Notify bool `mapstructure:"notify" yaml:"notify"`
}

// AlarmConfig tunes the exit alarm and its reminders.
type AlarmConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	Snooze        time.Duration `mapstructure:"snooze" yaml:"snooze"`
	// WarnFirst and WarnFinal are the minutes-before-exit reminders.
	WarnFirst   int `mapstructure:"warn_first" yaml:"warn_first"`
	WarnFinal   int `mapstructure:"warn_final" yaml:"warn_final"`
	ResetAfter  int `mapstructure:"reset_after" yaml:"reset_after"`
	NotifyBurst int `mapstructure:"notify_burst" yaml:"notify_burst"`
}

// BrowserConfig holds settings for the headless browser bridge.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// SettingsConfig seeds the workday settings used before the user saves their own.
type SettingsConfig struct {
	WorkHours    float64 `mapstructure:"work_hours" yaml:"work_hours"`
	BreakMinutes int     `mapstructure:"break_minutes" yaml:"break_minutes"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "punchclock")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Store --
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "~/.punchclock/punchclock.db")
	v.SetDefault("store.table", "punchclock_kv")

	// -- Watcher --
	v.SetDefault("watcher.mutation_debounce", "3s")
	v.SetDefault("watcher.click_debounce", "1s")
	v.SetDefault("watcher.notify", true)

	// -- Alarm --
	v.SetDefault("alarm.check_interval", "1m")
	v.SetDefault("alarm.snooze", "5m")
	v.SetDefault("alarm.warn_first", 5)
	v.SetDefault("alarm.warn_final", 1)
	v.SetDefault("alarm.reset_after", 16)
	v.SetDefault("alarm.notify_burst", 5)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.poll_interval", "2s")

	// -- Settings --
	v.SetDefault("settings.work_hours", 8.0)
	v.SetDefault("settings.break_minutes", 60)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The DSN usually carries a password, keep it out of config files.
	_ = v.BindEnv("store.dsn", "PUNCHCLOCK_STORE_DSN", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if c.WatcherCfg.MutationDebounce <= 0 {
		return fmt.Errorf("watcher.mutation_debounce must be a positive duration")
	}
	if c.WatcherCfg.ClickDebounce < 0 {
		return fmt.Errorf("watcher.click_debounce must not be negative")
	}
	if err := c.AlarmCfg.Validate(); err != nil {
		return fmt.Errorf("alarm configuration invalid: %w", err)
	}
	if c.BrowserCfg.PollInterval <= 0 {
		return fmt.Errorf("browser.poll_interval must be a positive duration")
	}
	if c.SettingsCfg.WorkHours <= 0 || c.SettingsCfg.WorkHours > 24 {
		return fmt.Errorf("settings.work_hours must be between 0 and 24")
	}
	if c.SettingsCfg.BreakMinutes < 0 {
		return fmt.Errorf("settings.break_minutes must not be negative")
	}
	return nil
}

// Validate checks the store configuration.
func (s *StoreConfig) Validate() error {
	switch s.Driver {
	case DriverMemory:
	case DriverSQLite:
		if s.Path == "" {
			return fmt.Errorf("path is required for the sqlite driver")
		}
	case DriverPostgres:
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for the postgres driver. Ensure PUNCHCLOCK_STORE_DSN is set")
		}
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
	if s.Table == "" {
		return fmt.Errorf("table must not be empty")
	}
	return nil
}

// Validate checks the alarm configuration.
func (a *AlarmConfig) Validate() error {
	if a.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be a positive duration")
	}
	if a.Snooze <= 0 {
		return fmt.Errorf("snooze must be a positive duration")
	}
	if a.WarnFinal <= 0 || a.WarnFirst <= a.WarnFinal {
		return fmt.Errorf("warn_first must be greater than warn_final, and both positive")
	}
	if a.ResetAfter <= a.WarnFirst {
		return fmt.Errorf("reset_after must be greater than warn_first")
	}
	return nil
}
