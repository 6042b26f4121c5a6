package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type RateLimit struct {
	Burst  int           `mapstructure:"burst"`
	Window time.Duration `mapstructure:"window"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	Workers          int           `mapstructure:"workers"`
	RoomCapacity     int           `mapstructure:"room_capacity"`
	TickRateHz       int           `mapstructure:"tick_rate_hz"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	AnnounceInterval time.Duration `mapstructure:"announce_interval"`
	MetricsInterval  time.Duration `mapstructure:"metrics_interval"`

	RateLimit RateLimit `mapstructure:"rate_limit"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("workers", 2)
	v.SetDefault("room_capacity", 64)
	v.SetDefault("tick_rate_hz", 30)
	v.SetDefault("idle_timeout", "5m")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("announce_interval", "5s")
	v.SetDefault("metrics_interval", "10s")
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("rate_limit.window", "1s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Workers: %d\n", cfg.Mode, cfg.Port, cfg.Workers)
	return &cfg, nil
}
