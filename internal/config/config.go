// Package config loads CLI settings from flags, the environment and an
// optional reintrospect.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/tordrt/reintrospect/internal/reconcile"
)

// EnvPrefix prefixes environment overrides: REINTROSPECT_URL, REINTROSPECT_LOG_LEVEL...
const EnvPrefix = "REINTROSPECT"

// Config holds the settings of one run.
type Config struct {
	// Schema is the path of the schema document.
	Schema string `mapstructure:"schema"`
	// URL overrides the datasource url of the document.
	URL string `mapstructure:"url"`
	// Provider overrides the datasource provider, or names it when there is no document.
	Provider string `mapstructure:"provider"`
	// DBSchema is the database schema to read.
	DBSchema string        `mapstructure:"db_schema"`
	Tables   []string      `mapstructure:"tables"`
	Exclude  []string      `mapstructure:"exclude"`
	Naming   string        `mapstructure:"naming"`
	Write    bool          `mapstructure:"write"`
	LogLevel string        `mapstructure:"log_level"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// New returns a viper instance with defaults and environment bindings.
// Every key has a default so that AutomaticEnv can resolve it.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("schema", "prisma/schema.prisma")
	v.SetDefault("url", "")
	v.SetDefault("provider", "")
	v.SetDefault("db_schema", "")
	v.SetDefault("tables", []string{})
	v.SetDefault("exclude", []string{})
	v.SetDefault("naming", string(reconcile.NamingPreserve))
	v.SetDefault("write", false)
	v.SetDefault("log_level", "warn")
	v.SetDefault("timeout", 30*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads cfgFile, or reintrospect.yaml from the working directory if
// cfgFile is empty, and decodes the merged settings. A missing default
// config file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("reintrospect")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Tables = normalizeList(cfg.Tables)
	cfg.Exclude = normalizeList(cfg.Exclude)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	if _, err := reconcile.ParseNaming(c.Naming); err != nil {
		return fmt.Errorf("invalid naming: %w", err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %s", c.Timeout)
	}
	return nil
}

// NamingStrategy returns the validated naming strategy.
func (c *Config) NamingStrategy() reconcile.Naming {
	n, _ := reconcile.ParseNaming(c.Naming)
	return n
}

// Level returns the validated log level.
func (c *Config) Level() logrus.Level {
	l, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.WarnLevel
	}
	return l
}

// normalizeList splits comma-separated entries and trims names:
// ["users, posts", "comments"] -> [users posts comments].
func normalizeList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, name := range strings.Split(item, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}
