// Package logging wires the package-level zerolog logger the rest of the
// module uses, following cyw0ng95-go4pack's pkg/common/logger package:
// a process-wide Init(*Config) plus WithComponent helpers.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls the global logger's level, format and destination.
type Config struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"` // "json" or "console"
	TimeFormat string `json:"time_format" mapstructure:"time_format"`
	Output     string `json:"output" mapstructure:"output"` // "stdout", "stderr", or file path
}

// DefaultConfig mirrors the teacher's defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
		Output:     "stdout",
	}
}

// Init installs the global logger. Safe to call again to reconfigure.
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = cfg.TimeFormat

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		output = f
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	return nil
}

// WithComponent returns a logger scoped to a component name, e.g.
// "dispatcher", "requestor", "registry", "topic", "transport".
func WithComponent(component string) *zerolog.Logger {
	l := log.Logger.With().Str("component", component).Logger()
	return &l
}

func init() {
	_ = Init(DefaultConfig())
}
