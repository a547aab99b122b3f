package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the server and analysis settings. Values come from an
// optional config file, with GAMEREVIEW_* environment variables taking
// precedence over both file and defaults.
type Config struct {
	Port       uint   `mapstructure:"port"`
	EnginePath string `mapstructure:"engine_path"`
	Workers    int    `mapstructure:"workers"`
	Depth      int    `mapstructure:"depth"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("port", 8080)
	v.SetDefault("engine_path", "stockfish")
	v.SetDefault("workers", 4)
	v.SetDefault("depth", 16)

	v.SetEnvPrefix("GAMEREVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &config, nil
}
