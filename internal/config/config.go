package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level application configuration
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Logging    LoggingConfig    `toml:"logging"`
	Storage    StorageConfig    `toml:"storage"`
	XContest   XContestConfig   `toml:"xcontest"`
	Fio        FioConfig        `toml:"fio"`
	Telegram   TelegramConfig   `toml:"telegram"`
	Membership MembershipConfig `toml:"membership"`
	Reconciler ReconcilerConfig `toml:"reconciler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// StorageConfig contains database settings
type StorageConfig struct {
	Path string `toml:"path"`
}

// TakeoffConfig is one monitored takeoff site
type TakeoffConfig struct {
	Name string  `toml:"name"`
	Lat  float64 `toml:"lat"`
	Lon  float64 `toml:"lon"`
}

// XContestConfig contains flight source settings
type XContestConfig struct {
	BaseURL        string          `toml:"base_url"`
	Username       string          `toml:"username"`
	Password       string          `toml:"password"`
	UserAgent      string          `toml:"user_agent"`
	TimeoutSeconds int             `toml:"timeout_seconds"`
	PageSleepMS    int             `toml:"page_sleep_ms"`
	PilotCacheSize int             `toml:"pilot_cache_size"`
	Takeoffs       []TakeoffConfig `toml:"takeoffs"`
}

// Timeout returns the HTTP timeout as a duration
func (c XContestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PageSleep returns the delay between listing pages
func (c XContestConfig) PageSleep() time.Duration {
	return time.Duration(c.PageSleepMS) * time.Millisecond
}

// FioConfig contains bank feed settings
type FioConfig struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the HTTP timeout as a duration
func (c FioConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TelegramConfig contains notification sink settings
type TelegramConfig struct {
	BaseURL        string `toml:"base_url"`
	BotToken       string `toml:"bot_token"`
	ChatID         int64  `toml:"chat_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the HTTP timeout as a duration
func (c TelegramConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MembershipConfig maps transaction amounts to membership types.
// The amounts are club business policy and change over time, so they
// live in configuration rather than code.
type MembershipConfig struct {
	DailyAmounts  []int `toml:"daily_amounts"`
	YearlyAmounts []int `toml:"yearly_amounts"`
}

// ReconcilerConfig contains cycle scheduling settings
type ReconcilerConfig struct {
	TransactionIntervalMinutes int  `toml:"transaction_interval_minutes"`
	FlightIntervalMinutes      int  `toml:"flight_interval_minutes"`
	FlightDaysBack             int  `toml:"flight_days_back"`
	RunOnStartup               bool `toml:"run_on_startup"`
}

// TransactionInterval returns the transaction cycle period
func (c ReconcilerConfig) TransactionInterval() time.Duration {
	return time.Duration(c.TransactionIntervalMinutes) * time.Minute
}

// FlightInterval returns the flight cycle period
func (c ReconcilerConfig) FlightInterval() time.Duration {
	return time.Duration(c.FlightIntervalMinutes) * time.Minute
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Path: "cashier.db",
		},
		XContest: XContestConfig{
			BaseURL:        "https://www.xcontest.org",
			UserAgent:      "cashier/1.0",
			TimeoutSeconds: 10,
			PageSleepMS:    2000,
			PilotCacheSize: 0,
		},
		Fio: FioConfig{
			BaseURL:        "https://fioapi.fio.cz/v1/rest",
			TimeoutSeconds: 10,
		},
		Telegram: TelegramConfig{
			BaseURL:        "https://api.telegram.org",
			TimeoutSeconds: 10,
		},
		Membership: MembershipConfig{
			DailyAmounts:  []int{150},
			YearlyAmounts: []int{500},
		},
		Reconciler: ReconcilerConfig{
			TransactionIntervalMinutes: 30,
			FlightIntervalMinutes:      60,
			FlightDaysBack:             1,
			RunOnStartup:               false,
		},
	}
}

// LoadConfig loads the configuration from the given TOML file,
// applying defaults for anything the file does not set
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for missing required values
func (c *Config) Validate() error {
	if c.Fio.Token == "" {
		return fmt.Errorf("fio.token is required")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if len(c.XContest.Takeoffs) == 0 {
		return fmt.Errorf("at least one xcontest takeoff is required")
	}
	if c.Reconciler.FlightDaysBack < 0 {
		return fmt.Errorf("reconciler.flight_days_back must not be negative")
	}
	return nil
}
