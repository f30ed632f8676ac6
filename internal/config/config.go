package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Contest ContestConfig `mapstructure:"contest"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Port               string `mapstructure:"port"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec"`
	ReadTimeoutSec     int    `mapstructure:"read_timeout_sec"`
}

type ContestConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

type FeedConfig struct {
	LogDir             string `mapstructure:"log_dir"`
	HeartbeatPeriodSec int    `mapstructure:"heartbeat_period_sec"`
	IdleThresholdSec   int    `mapstructure:"idle_threshold_sec"`
	ConfirmTimeoutSec  int    `mapstructure:"confirm_timeout_sec"`
	ConfirmPollMillis  int    `mapstructure:"confirm_poll_ms"`
	SnapshotMode       string `mapstructure:"snapshot_mode"`
	SubmitPerMinute    int    `mapstructure:"submit_per_minute"`
	SubmitBurst        int    `mapstructure:"submit_burst"`
}

type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Server   string `mapstructure:"server"`
	Topic    string `mapstructure:"topic"`
	Priority string `mapstructure:"priority"`
	Tags     string `mapstructure:"tags"`
	Token    string `mapstructure:"token"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func (f FeedConfig) HeartbeatPeriod() time.Duration {
	return time.Duration(f.HeartbeatPeriodSec) * time.Second
}

func (f FeedConfig) IdleThreshold() time.Duration {
	return time.Duration(f.IdleThresholdSec) * time.Second
}

func (f FeedConfig) ConfirmTimeout() time.Duration {
	return time.Duration(f.ConfirmTimeoutSec) * time.Second
}

func (f FeedConfig) ConfirmPoll() time.Duration {
	return time.Duration(f.ConfirmPollMillis) * time.Millisecond
}

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSec) * time.Second
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout_sec", 30)
	v.SetDefault("server.read_timeout_sec", 30)
	v.SetDefault("contest.id", "contest-1")
	v.SetDefault("contest.name", "Contest")
	v.SetDefault("feed.log_dir", "feeds")
	v.SetDefault("feed.heartbeat_period_sec", 30)
	v.SetDefault("feed.idle_threshold_sec", 120)
	v.SetDefault("feed.confirm_timeout_sec", 10)
	v.SetDefault("feed.confirm_poll_ms", 100)
	v.SetDefault("feed.snapshot_mode", "batched")
	v.SetDefault("feed.submit_per_minute", 60)
	v.SetDefault("feed.submit_burst", 10)
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "trophy")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("CONTESTFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("contestfeed")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Contest.ID == "" {
		return fmt.Errorf("contest.id is required")
	}
	if c.Feed.LogDir == "" {
		return fmt.Errorf("feed.log_dir is required")
	}
	switch c.Feed.SnapshotMode {
	case "batched", "entity":
	default:
		return fmt.Errorf("feed.snapshot_mode must be batched or entity, got %q", c.Feed.SnapshotMode)
	}
	if c.Feed.HeartbeatPeriodSec < 1 {
		return fmt.Errorf("feed.heartbeat_period_sec must be >= 1")
	}
	if c.Feed.IdleThresholdSec < 1 {
		return fmt.Errorf("feed.idle_threshold_sec must be >= 1")
	}
	if c.Feed.ConfirmTimeoutSec < 1 {
		return fmt.Errorf("feed.confirm_timeout_sec must be >= 1")
	}
	if c.Feed.ConfirmPollMillis < 1 {
		return fmt.Errorf("feed.confirm_poll_ms must be >= 1")
	}
	if c.Feed.SubmitPerMinute < 1 {
		return fmt.Errorf("feed.submit_per_minute must be >= 1")
	}
	if c.Notify.Enabled && c.Notify.Topic == "" {
		return fmt.Errorf("notify.topic is required when notify.enabled is true")
	}
	return nil
}
