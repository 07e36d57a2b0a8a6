package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the node runtime parameters.
type Config struct {
	ListenAddress       string         `mapstructure:"listen_address"`
	AdminAddress        string         `mapstructure:"admin_address"`
	LogLevel            string         `mapstructure:"log_level"`
	ShutdownGracePeriod time.Duration  `mapstructure:"shutdown_grace_period"`
	Database            DatabaseConfig `mapstructure:"database"`
	Limits              LimitsConfig   `mapstructure:"limits"`
}

// DatabaseConfig locates the durable store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LimitsConfig bounds per-connection resources.
type LimitsConfig struct {
	// SendBuffer is the outbound frame queue per connection; a full queue
	// disconnects the connection rather than blocking the hub.
	SendBuffer int `mapstructure:"send_buffer"`
	// FrameRate and FrameBurst feed the per-connection inbound limiter.
	FrameRate  float64 `mapstructure:"frame_rate"`
	FrameBurst int     `mapstructure:"frame_burst"`
}

const (
	defaultListenAddress       = "0.0.0.0:8443"
	defaultAdminAddress        = "127.0.0.1:9090"
	defaultLogLevel            = "info"
	defaultShutdownGracePeriod = 10 * time.Second
	defaultDatabasePath        = "data/parley.db"
	defaultSendBuffer          = 32
	defaultFrameRate           = 50.0
	defaultFrameBurst          = 100
)

// Load reads configuration from the provided file path (if any) and the
// environment. Environment variables are prefixed with PARLEY_ and can
// override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PARLEY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("listen_address", defaultListenAddress)
	v.SetDefault("admin_address", defaultAdminAddress)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("shutdown_grace_period", defaultShutdownGracePeriod.String())
	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("limits.send_buffer", defaultSendBuffer)
	v.SetDefault("limits.frame_rate", defaultFrameRate)
	v.SetDefault("limits.frame_burst", defaultFrameBurst)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper leaves durations as strings; normalize them here.
	if v.IsSet("shutdown_grace_period") {
		dur, err := time.ParseDuration(v.GetString("shutdown_grace_period"))
		if err != nil {
			return Config{}, fmt.Errorf("invalid shutdown_grace_period: %w", err)
		}
		cfg.ShutdownGracePeriod = dur
	} else {
		cfg.ShutdownGracePeriod = defaultShutdownGracePeriod
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDatabasePath
	}
	if cfg.Limits.SendBuffer <= 0 {
		cfg.Limits.SendBuffer = defaultSendBuffer
	}
	if cfg.Limits.FrameRate <= 0 {
		cfg.Limits.FrameRate = defaultFrameRate
	}
	if cfg.Limits.FrameBurst <= 0 {
		cfg.Limits.FrameBurst = defaultFrameBurst
	}

	return cfg, nil
}
