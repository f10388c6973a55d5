package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// CommonConfig holds settings every command shares.
type CommonConfig struct {
	ConfigDir string `env:"TRAINER_CONFIG_DIR" envDefault:"."`
	Verbose   bool   `env:"TRAINER_VERBOSE"`
}

func (c *CommonConfig) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigDir, "config", c.ConfigDir, "directory holding trainer.cfg.json")
	fs.BoolVar(&c.Verbose, "verbose", c.Verbose, "log at debug level")
}

// DrillConfig holds drill command configuration.
type DrillConfig struct {
	CommonConfig

	Scenario   string        `env:"TRAINER_DRILL_FILE"`
	DT         float64       `env:"TRAINER_DRILL_DT"      envDefault:"0.016666666666666666"`
	Assertions bool          `env:"TRAINER_DRILL_ASSERT"  envDefault:"true"`
	Driver     string        `env:"TRAINER_DRIVER"`
	Timeout    time.Duration `env:"TRAINER_DRILL_TIMEOUT" envDefault:"5m"`
}

// ParseDrillConfig parses env then flags into a DrillConfig.
func ParseDrillConfig(fs *flag.FlagSet, args []string) (DrillConfig, error) {
	var cfg DrillConfig
	if err := env.Parse(&cfg); err != nil {
		return DrillConfig{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.bind(fs)
	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "path to drill lua file")
	fs.Float64Var(&cfg.DT, "dt", cfg.DT, "seconds per tick")
	fs.BoolVar(&cfg.Assertions, "assert", cfg.Assertions, "stop at the first failed expectation (disable to only log them)")
	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, "driver name recorded with the session")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "abort the drill after this long")
	if err := fs.Parse(args); err != nil {
		return DrillConfig{}, err
	}
	if cfg.Scenario == "" && fs.NArg() > 0 {
		cfg.Scenario = fs.Arg(0)
	}
	if cfg.Scenario == "" {
		return DrillConfig{}, errors.New("scenario path is required")
	}
	if cfg.DT <= 0 {
		return DrillConfig{}, fmt.Errorf("dt must be positive, got %v", cfg.DT)
	}
	return cfg, nil
}

// DriveConfig holds drive command configuration.
type DriveConfig struct {
	CommonConfig

	Driver string `env:"TRAINER_DRIVER"`
	Echo   bool   `env:"TRAINER_DRIVE_ECHO"`
}

// ParseDriveConfig parses env then flags into a DriveConfig.
func ParseDriveConfig(fs *flag.FlagSet, args []string) (DriveConfig, error) {
	var cfg DriveConfig
	if err := env.Parse(&cfg); err != nil {
		return DriveConfig{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.bind(fs)
	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, "driver name recorded with the session")
	fs.BoolVar(&cfg.Echo, "echo", cfg.Echo, "print every tick's frame, not only command results")
	if err := fs.Parse(args); err != nil {
		return DriveConfig{}, err
	}
	return cfg, nil
}

// SessionsConfig holds sessions command configuration.
type SessionsConfig struct {
	CommonConfig

	Limit int `env:"TRAINER_SESSIONS_LIMIT" envDefault:"20"`
}

// ParseSessionsConfig parses env then flags into a SessionsConfig.
func ParseSessionsConfig(fs *flag.FlagSet, args []string) (SessionsConfig, error) {
	var cfg SessionsConfig
	if err := env.Parse(&cfg); err != nil {
		return SessionsConfig{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.bind(fs)
	fs.IntVar(&cfg.Limit, "limit", cfg.Limit, "newest sessions to list, 0 for all")
	if err := fs.Parse(args); err != nil {
		return SessionsConfig{}, err
	}
	return cfg, nil
}
