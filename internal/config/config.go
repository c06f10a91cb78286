// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads gatehouse configuration from YAML files and
// command-line flags. Flags override file values, which override defaults.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config holds the full gatehouse runtime configuration.
type Config struct {
	Database      DatabaseConfig      `koanf:"database"`
	Session       SessionConfig       `koanf:"session"`
	Reset         ResetConfig         `koanf:"reset"`
	Sweep         SweepConfig         `koanf:"sweep"`
	Log           LogConfig           `koanf:"log"`
	Observability ObservabilityConfig `koanf:"observability"`
	SMTP          SMTPConfig          `koanf:"smtp"`
	Hasher        string              `koanf:"hasher"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// ResetConfig holds password reset token settings.
type ResetConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// SweepConfig holds expired session sweeper settings.
type SweepConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Format string `koanf:"format"`
}

// ObservabilityConfig holds metrics and health endpoint settings.
type ObservabilityConfig struct {
	Addr string `koanf:"addr"`
}

// SMTPConfig holds outbound mail settings for password reset notices.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	From     string `koanf:"from"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Database:      DatabaseConfig{URL: "postgres://localhost:5432/gatehouse"},
		Session:       SessionConfig{TTL: 3 * time.Hour},
		Reset:         ResetConfig{TTL: time.Hour},
		Sweep:         SweepConfig{Interval: time.Minute},
		Log:           LogConfig{Format: "json"},
		Observability: ObservabilityConfig{Addr: ":9090"},
		SMTP:          SMTPConfig{Port: 587},
		Hasher:        "argon2id",
	}
}

// Load reads configuration from an optional YAML file at path, then
// applies any changed flags from flags. A missing file at the default
// path is not an error; an explicitly named file must exist.
func Load(path string, explicit bool, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if explicit || !os.IsNotExist(err) {
				return Config{}, oops.
					Code("CONFIG_FILE_UNREADABLE").
					With("path", path).
					Wrap(err)
			}
		} else if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.
				Code("CONFIG_PARSE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.
				Code("CONFIG_FLAGS_FAILED").
				Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.
			Code("CONFIG_UNMARSHAL_FAILED").
			Wrap(err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url must not be empty")
	}
	if c.Session.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("session.ttl", c.Session.TTL).
			Errorf("session.ttl must be positive")
	}
	if c.Reset.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("reset.ttl", c.Reset.TTL).
			Errorf("reset.ttl must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("sweep.interval", c.Sweep.Interval).
			Errorf("sweep.interval must be positive")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").
			With("log.format", c.Log.Format).
			Errorf("log.format must be json or text")
	}
	switch c.Hasher {
	case "argon2id", "sha256":
	default:
		return oops.Code("CONFIG_INVALID").
			With("hasher", c.Hasher).
			Errorf("hasher must be argon2id or sha256")
	}
	return nil
}
