package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Queue    QueueConfig
	Metrics  MetricsConfig
	Auth     AuthConfig
	Log      LogConfig
	LogLevel string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type QueueConfig struct {
	// DepthWarn is the posted-message depth above which a thread queue
	// logs a warning. Zero disables the watermark.
	DepthWarn int
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AuthConfig struct {
	Enabled bool
	APIKeys []string
}

type LogConfig struct {
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/winmsg")

	// Set defaults
	setDefaults()

	// Environment variable binding
	viper.SetEnvPrefix("WINMSG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)

	// Queue defaults
	viper.SetDefault("queue.depthwarn", 10000)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.apikeys", []string{})

	// Logging defaults
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("log.pretty", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("log.maxsizemb", 100)
	viper.SetDefault("log.maxbackups", 3)
	viper.SetDefault("log.maxagedays", 7)
	viper.SetDefault("log.compress", false)
}
