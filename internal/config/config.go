package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	ReadLimit  int64  `mapstructure:"read_limit"`
	Secret     string `mapstructure:"secret"`

	// PairingPolicy selects the matching algorithm: "queue" or
	// "addressed".
	PairingPolicy string `mapstructure:"pairing_policy"`

	// AcceptTimeout is the accept-or-expire deadline on a pending
	// connect request.
	AcceptTimeout time.Duration `mapstructure:"accept_timeout"`

	// LivenessPulse bounds how long an addressed request may sit
	// unacknowledged before early no-responder expiry.
	LivenessPulse time.Duration `mapstructure:"liveness_pulse"`

	// Outbound selects the relay substrate: "direct" or "store".
	Outbound  string `mapstructure:"outbound"`
	StorePath string `mapstructure:"store_path"`

	CallLimit    int           `mapstructure:"call_limit"`
	CallInterval time.Duration `mapstructure:"call_interval"`
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
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("pairing_policy", "queue")
	v.SetDefault("accept_timeout", "30s")
	v.SetDefault("liveness_pulse", "2s")
	v.SetDefault("outbound", "direct")
	v.SetDefault("store_path", "")
	v.SetDefault("call_limit", 10)
	v.SetDefault("call_interval", "30s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Pairing: %s | Outbound: %s\n", cfg.Mode, cfg.Port, cfg.PairingPolicy, cfg.Outbound)
	return &cfg, nil
}
