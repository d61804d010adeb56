// Package config loads process configuration via viper, following
// cyw0ng95-go4pack's pkg/common/config package: defaults are set first,
// an optional config.json overlays them, and Get() exposes the last
// loaded snapshot.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration surface for a corerpc server
// or client binary.
type Config struct {
	ListenAddr      string `json:"listen_addr" mapstructure:"listen_addr"`
	LogLevel        string `json:"log_level" mapstructure:"log_level"`
	WorkerPoolSize  int    `json:"worker_pool_size" mapstructure:"worker_pool_size"`
	MaxFrameSize    int    `json:"max_frame_size" mapstructure:"max_frame_size"`
	DiscoveryRetry  bool   `json:"discovery_retry" mapstructure:"discovery_retry"`
}

var appConfig *Config

// Defaults mirrors §4.1's 1<<16 ingress cap and a modest default pool.
func Defaults() *Config {
	return &Config{
		ListenAddr:     ":9090",
		LogLevel:       "info",
		WorkerPoolSize: 64,
		MaxFrameSize:   1 << 16,
		DiscoveryRetry: true,
	}
}

// Load reads config.json from configPath (or "."/"./config" if empty),
// falling back to Defaults() and writing them out if no file exists.
func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	if configPath != "" {
		viper.AddConfigPath(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	d := Defaults()
	viper.SetDefault("listen_addr", d.ListenAddr)
	viper.SetDefault("log_level", d.LogLevel)
	viper.SetDefault("worker_pool_size", d.WorkerPoolSize)
	viper.SetDefault("max_frame_size", d.MaxFrameSize)
	viper.SetDefault("discovery_retry", d.DiscoveryRetry)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return writeDefault(configPath, d)
		}
		return nil, fmt.Errorf("config: read: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	appConfig = &cfg
	return &cfg, nil
}

func writeDefault(configPath string, d *Config) (*Config, error) {
	viper.Set("listen_addr", d.ListenAddr)
	viper.Set("log_level", d.LogLevel)
	viper.Set("worker_pool_size", d.WorkerPoolSize)
	viper.Set("max_frame_size", d.MaxFrameSize)
	viper.Set("discovery_retry", d.DiscoveryRetry)

	dir := configPath
	if dir == "" {
		dir = "."
	}
	if err := viper.WriteConfigAs(filepath.Join(dir, "config.json")); err != nil {
		return nil, fmt.Errorf("config: write default: %w", err)
	}
	appConfig = d
	return d, nil
}

// Get returns the last loaded configuration, or Defaults() if Load was
// never called.
func Get() *Config {
	if appConfig == nil {
		return Defaults()
	}
	return appConfig
}
