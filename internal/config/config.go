package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AuthConfig struct {
	// Endpoint of the external session-validation service. Empty disables
	// admission checks (local development only).
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	ErrorThreshold int           `mapstructure:"error_threshold"`
	Presence       string        `mapstructure:"presence"`
	Secret         string        `mapstructure:"secret"`
	Auth           AuthConfig    `mapstructure:"auth"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	v.SetConfigFile(fmt.Sprintf("config/config.%s.yaml", env))
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("SIGRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("send_buffer", 32)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("error_threshold", 8)
	v.SetDefault("presence", "listeners")
	v.SetDefault("auth.timeout", "3s")
	v.SetDefault("auth.attempts", 3)
	v.SetDefault("auth.backoff", "250ms")

	// config file is optional, env/defaults are enough to run
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Presence != "all" && cfg.Presence != "listeners" {
		return nil, fmt.Errorf("invalid presence policy: %q", cfg.Presence)
	}
	if cfg.Auth.Attempts < 1 {
		return nil, fmt.Errorf("auth.attempts must be at least 1")
	}
	return &cfg, nil
}
