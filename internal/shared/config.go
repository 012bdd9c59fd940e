package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment overrides for the persisted state location (useful under
// systemd where the install root is read-only).
const (
	EnvDBPath  = "GARAGE_SYNC_DB_PATH"
	EnvDataDir = "GARAGE_SYNC_DATA_DIR"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	ABCP     ABCPConfig        `toml:"abcp"`
	Bitrix   BitrixConfig      `toml:"bitrix"`
	Database DatabaseConfig    `toml:"database"`
	Sync     SyncConfig        `toml:"sync"`
	Log      LogConfig         `toml:"log"`
	Fields   map[string]string `toml:"fields"`
}

// ABCPConfig contains credentials and tuning for the ABCP garage endpoint.
type ABCPConfig struct {
	BaseURL     string  `toml:"base_url"`
	Login       string  `toml:"login"`
	Password    string  `toml:"password"`
	TimeoutSecs int     `toml:"timeout_secs"`
	RateLimit   float64 `toml:"rate_limit"` // requests per second
}

// BitrixConfig contains the Bitrix24 webhook endpoint and deal defaults.
type BitrixConfig struct {
	WebhookURL    string  `toml:"webhook_url"`
	CategoryID    int64   `toml:"category_id"`
	UserFieldCode string  `toml:"user_field_code"` // UF code holding the ABCP user id
	TitlePrefix   string  `toml:"title_prefix"`
	TimeoutSecs   int     `toml:"timeout_secs"`
	RateLimit     float64 `toml:"rate_limit"` // requests per second
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// SyncConfig contains retry and loop tuning for the sync engine.
type SyncConfig struct {
	RetryAttempts   int     `toml:"retry_attempts"`
	RetryInitialMS  int     `toml:"retry_initial_ms"`
	RetryMaxMS      int     `toml:"retry_max_ms"`
	RetryMultiplier float64 `toml:"retry_multiplier"`
	MaxIterations   int     `toml:"max_iterations"` // continuous mode cap, 0 means unbounded
}

// LogConfig contains log level and optional rotating file output settings.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResolveDatabasePath returns the absolute location of the SQLite state file,
// honoring the GARAGE_SYNC_DB_PATH and GARAGE_SYNC_DATA_DIR environment
// overrides, and creates the parent directory when missing.
//
// Relative paths are anchored at the data directory (or the working directory
// when no data directory is configured).
func ResolveDatabasePath(cfg DatabaseConfig) (string, error) {
	path := cfg.Path
	if override := os.Getenv(EnvDBPath); override != "" {
		path = override
	}
	if path == "" {
		path = "data/garage.s3db"
	}

	if !filepath.IsAbs(path) {
		base := os.Getenv(EnvDataDir)
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("%w: cannot resolve working directory: %v", ErrConfig, err)
			}
			base = wd
		}
		path = filepath.Join(base, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("%w: cannot create data directory: %v", ErrConfig, err)
	}

	return path, nil
}
