// Package config loads the process-wide tasking settings. The result is read
// once at start-up and handed to the engine, registry and store explicitly.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cyp0633/libtasking/server/recurrence"
	"github.com/cyp0633/libtasking/server/targets"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvMaxOccurrences        = "TASKING_MAX_OCCURRENCES"
	EnvTimeZone              = "TASKING_TIME_ZONE"
	EnvBulkCreateOccurrences = "TASKING_BULK_CREATE_OCCURRENCES"
	EnvCacheExpansions       = "TASKING_CACHE_EXPANSIONS"
	EnvAllowedTargets        = "TASKING_ALLOWED_TARGETS"
	EnvDatabaseDSN           = "TASKING_DATABASE_DSN"
)

type Config struct {
	MaxOccurrences        int                  `yaml:"max_occurrences" json:"max_occurrences"`
	TimeZone              string               `yaml:"time_zone" json:"time_zone"`
	AllowedTargets        []targets.TargetType `yaml:"allowed_targets" json:"allowed_targets"`
	BulkCreateOccurrences bool                 `yaml:"bulk_create_occurrences" json:"bulk_create_occurrences"`
	CacheExpansions       bool                 `yaml:"cache_expansions" json:"cache_expansions"`
	DatabaseDSN           string               `yaml:"database_dsn" json:"database_dsn"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		MaxOccurrences:        recurrence.DefaultMaxOccurrences,
		TimeZone:              "UTC",
		AllowedTargets:        append([]targets.TargetType(nil), targets.DefaultAllowed...),
		BulkCreateOccurrences: true,
		DatabaseDSN:           "tasking.db",
	}
}

// Load starts from Default, applies the YAML file at path if there is one,
// then the environment. envFiles are read with godotenv first; missing files
// are ignored, and variables already set win over file values.
func Load(path string, envFiles ...string) (*Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, c); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvMaxOccurrences); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxOccurrences, err)
		}
		c.MaxOccurrences = n
	}
	if v := os.Getenv(EnvTimeZone); v != "" {
		c.TimeZone = v
	}
	if v := os.Getenv(EnvBulkCreateOccurrences); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvBulkCreateOccurrences, err)
		}
		c.BulkCreateOccurrences = b
	}
	if v := os.Getenv(EnvCacheExpansions); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCacheExpansions, err)
		}
		c.CacheExpansions = b
	}
	if v, ok := os.LookupEnv(EnvAllowedTargets); ok {
		list, err := ParseTargetList(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAllowedTargets, err)
		}
		c.AllowedTargets = list
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.DatabaseDSN = v
	}
	return nil
}

// ParseTargetList parses a comma separated list of app_label.model pairs.
// An empty string yields an empty list.
func ParseTargetList(s string) ([]targets.TargetType, error) {
	list := []targets.TargetType{}
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		t, err := targets.ParseTargetType(item)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, nil
}

// ApplyDefaults fills zero values. An explicitly empty AllowedTargets list is kept.
func (c *Config) ApplyDefaults() {
	if c.MaxOccurrences < 1 {
		c.MaxOccurrences = recurrence.DefaultMaxOccurrences
	}
	if c.TimeZone == "" {
		c.TimeZone = "UTC"
	}
	if c.AllowedTargets == nil {
		c.AllowedTargets = append([]targets.TargetType(nil), targets.DefaultAllowed...)
	}
}

// Validate checks that the time zone can be loaded.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err)
	}
	return nil
}

// Location returns the configured time zone, or UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EngineConfig returns the recurrence engine settings.
func (c *Config) EngineConfig() recurrence.EngineConfig {
	ec := recurrence.DefaultEngineConfig
	if c.CacheExpansions {
		ec = recurrence.CachedEngineConfig
	}
	ec.MaxOccurrences = c.MaxOccurrences
	ec.Location = c.Location()
	ec.BulkCreate = c.BulkCreateOccurrences
	return ec
}

// Registry returns a target registry using the configured allow-list.
func (c *Config) Registry() *targets.Registry {
	return targets.NewRegistry(c.AllowedTargets)
}
