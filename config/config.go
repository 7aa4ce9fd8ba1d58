// Package config loads server settings from defaults, an optional YAML file,
// an optional .env file and the environment, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kdl/schedule-engine/scheduling"
)

type Config struct {
	HTTPAddr         string `yaml:"http_addr" validate:"required"`
	DBDriver         string `yaml:"db_driver" validate:"oneof=sqlite postgres"`
	DatabaseURL      string `yaml:"database_url" validate:"required"`
	TZ               string `yaml:"tz"`
	BusinessOpen     string `yaml:"business_open" validate:"required"`
	BusinessClose    string `yaml:"business_close" validate:"required"`
	LogLevel         string `yaml:"log_level" validate:"oneof=debug info warn error"`
	Env              string `yaml:"env" validate:"oneof=dev prod"`
	SentryDSN        string `yaml:"sentry_dsn"`
	ClassOptionsFile string `yaml:"class_options_file"`

	Location *time.Location          `yaml:"-"`
	Hours    scheduling.BusinessHours `yaml:"-"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		HTTPAddr:      ":8080",
		DBDriver:      "sqlite",
		DatabaseURL:   "./data/schedule.db",
		TZ:            "UTC",
		BusinessOpen:  "09:00",
		BusinessClose: "17:00",
		LogLevel:      "info",
		Env:           "dev",
	}
}

// Load builds the configuration. path may be empty; a missing .env file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.DBDriver = getenv("DB_DRIVER", c.DBDriver)
	c.DatabaseURL = getenv("DATABASE_URL", c.DatabaseURL)
	c.TZ = getenv("TZ", c.TZ)
	c.BusinessOpen = getenv("BUSINESS_OPEN", c.BusinessOpen)
	c.BusinessClose = getenv("BUSINESS_CLOSE", c.BusinessClose)
	c.LogLevel = strings.ToLower(getenv("LOG_LEVEL", c.LogLevel))
	c.Env = strings.ToLower(getenv("ENV", c.Env))
	c.SentryDSN = getenv("SENTRY_DSN", c.SentryDSN)
	c.ClassOptionsFile = getenv("CLASS_OPTIONS_FILE", c.ClassOptionsFile)
}

// Resolve validates the raw settings and fills Location and Hours. Call it
// again after overriding fields from flags.
func (c *Config) Resolve() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return fmt.Errorf("TZ: %w", err)
	}
	open, err := scheduling.ParseTimeOfDay(c.BusinessOpen)
	if err != nil {
		return fmt.Errorf("BUSINESS_OPEN: %w", err)
	}
	closing, err := scheduling.ParseTimeOfDay(c.BusinessClose)
	if err != nil {
		return fmt.Errorf("BUSINESS_CLOSE: %w", err)
	}
	if closing <= open {
		return fmt.Errorf("business hours: close %s must be after open %s", closing, open)
	}

	c.Location = loc
	c.Hours = scheduling.BusinessHours{Open: open, Close: closing}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
