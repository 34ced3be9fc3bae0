// Package config loads CLI configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "BUNVIEW_"

// Config is the CLI-facing configuration.
type Config struct {
	BaseURL  string `mapstructure:"baseurl"`
	Bucket   string `mapstructure:"bucket"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
	Log      Log    `mapstructure:"log"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the configuration: defaults, then an optional .env file,
// then BUNVIEW_* environment variables (BUNVIEW_LOG_LEVEL -> log.level, BUNVIEW_BASEURL -> baseurl).
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("baseurl", "http://127.0.0.1:8092")
	v.SetDefault("bucket", "default")
	v.SetDefault("timeout", 75000)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "text")

	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read .env: %w", err)
			}
		}
	}

	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		key, value := pair[0], pair[1]
		if !strings.HasPrefix(key, envPrefix) {
			continue
		}
		propKey := strings.TrimPrefix(key, envPrefix)
		propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
		v.Set(propKey, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
