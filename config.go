package devya

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/devya-app/devya/capture"
	"github.com/spf13/viper"
)

const (
	DefaultPort       uint16 = 7777
	DefaultBackendURL        = "http://127.0.0.1:47777"
	DefaultQueueSize         = 1024
)

// Config holds the settings of the frontend. It is stored as config.yaml in the config
// directory, every key can be overridden with a DEVYA_ prefixed environment variable.
type Config struct {
	mu    sync.Mutex
	viper *viper.Viper

	Port            uint16        `mapstructure:"port"`             // Last port the proxy was started on
	BackendURL      string        `mapstructure:"backend_url"`      // Base URL of the backend command server
	LogLevel        string        `mapstructure:"log_level"`        // DEBUG, INFO, WARN or ERROR
	OrphanTTL       time.Duration `mapstructure:"orphan_ttl"`       // How long responses wait for their request
	OrphanLimit     int           `mapstructure:"orphan_limit"`     // Maximum number of waiting responses
	QueueSize       int           `mapstructure:"queue_size"`       // Capacity of the push channel queue
	ArchiveSessions bool          `mapstructure:"archive_sessions"` // Save the records of ended sessions
	DesktopOS       string        `mapstructure:"desktop_os"`       // Operating system identifier
}

// DefaultConfig returns a Config that is not backed by a file.
func DefaultConfig() *Config {
	return &Config{
		Port:            DefaultPort,
		BackendURL:      DefaultBackendURL,
		LogLevel:        "INFO",
		OrphanTTL:       capture.DefaultOrphanTTL,
		OrphanLimit:     capture.DefaultOrphanLimit,
		QueueSize:       DefaultQueueSize,
		ArchiveSessions: true,
		DesktopOS:       runtime.GOOS,
	}
}

// LoadConfig reads config.yaml from configDir, writing one with the defaults if it does not exist.
func LoadConfig(configDir string) (*Config, error) {
	v := newFileViper(configDir)
	v.SetEnvPrefix("DEVYA")
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("port", defaults.Port)
	v.SetDefault("backend_url", defaults.BackendURL)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("orphan_ttl", defaults.OrphanTTL)
	v.SetDefault("orphan_limit", defaults.OrphanLimit)
	v.SetDefault("queue_size", defaults.QueueSize)
	v.SetDefault("archive_sessions", defaults.ArchiveSessions)

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file : %w", err)
		}
		if err := writeDefaults(configDir, defaults); err != nil {
			return nil, fmt.Errorf("writing config file : %w", err)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file : %w", err)
		}
	}

	cfg := &Config{viper: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	cfg.DesktopOS = runtime.GOOS
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newFileViper returns a viper bound to config.yaml in configDir only. Writes go through
// one of these so environment overrides never end up in the file.
func newFileViper(configDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	return v
}

func writeDefaults(configDir string, defaults *Config) error {
	v := newFileViper(configDir)
	v.Set("port", defaults.Port)
	v.Set("backend_url", defaults.BackendURL)
	v.Set("log_level", defaults.LogLevel)
	v.Set("orphan_ttl", defaults.OrphanTTL.String())
	v.Set("orphan_limit", defaults.OrphanLimit)
	v.Set("queue_size", defaults.QueueSize)
	v.Set("archive_sessions", defaults.ArchiveSessions)
	return v.SafeWriteConfig()
}

func (cfg *Config) validate() error {
	if cfg.OrphanTTL < 0 {
		return fmt.Errorf("orphan_ttl must not be negative, got %s", cfg.OrphanTTL)
	}
	if cfg.OrphanLimit < 0 {
		return fmt.Errorf("orphan_limit must not be negative, got %d", cfg.OrphanLimit)
	}
	if cfg.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive, got %d", cfg.QueueSize)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// SetPort remembers the last port the proxy was started on.
func (cfg *Config) SetPort(port uint16) error {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	cfg.Port = port
	if cfg.viper == nil {
		return nil
	}
	file := viper.New()
	file.SetConfigFile(cfg.viper.ConfigFileUsed())
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}
	file.Set("port", port)
	if err := file.WriteConfig(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	return nil
}

// LastPort returns the port saved by SetPort.
func (cfg *Config) LastPort() uint16 {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	return cfg.Port
}

// File returns the path of the settings file, empty for a DefaultConfig.
func (cfg *Config) File() string {
	if cfg.viper == nil {
		return ""
	}
	return cfg.viper.ConfigFileUsed()
}

// Level returns LogLevel as a slog.Level.
func (cfg *Config) Level() slog.Level {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel maps the diagnostic levels onto slog levels. FATAL is logged as an error.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR", "FATAL":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("level should be either: debug, info, warn, error, fatal")
	}
}

func ensureDir(dir string) error {
	_, err := os.ReadDir(dir)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("checking if directory exists %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config dir %s: %w", dir, err)
	}
	return nil
}
