package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	er "github.com/gofhir/elmrequirements"
)

// Config holds CLI configuration.
type Config struct {
	LibraryDir string `mapstructure:"library_dir"`
	Format     string `mapstructure:"format"`
	LogLevel   string `mapstructure:"log_level"`
	CacheSize  int    `mapstructure:"cache_size"`
	Workers    int    `mapstructure:"workers"`
}

// flagKeys maps command flags to configuration keys.
var flagKeys = map[string]string{
	"dir":        "library_dir",
	"format":     "format",
	"log-level":  "log_level",
	"cache-size": "cache_size",
	"workers":    "workers",
}

// loadConfig reads elm-requirements.yaml (or file when set), ELMREQ_*
// environment variables and the flags of cmd, in increasing order of
// precedence.
func loadConfig(file string, cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	defaults := er.DefaultOptions()
	v.SetDefault("library_dir", ".")
	v.SetDefault("format", defaults.ReportFormat)
	v.SetDefault("log_level", "warn")
	v.SetDefault("cache_size", defaults.LibraryCacheSize)
	v.SetDefault("workers", defaults.WorkerCount)

	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("elm-requirements")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ELMREQ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Format {
	case er.FormatJSON, er.FormatYAML:
	default:
		return fmt.Errorf("unknown format %q (want %s or %s)", c.Format, er.FormatJSON, er.FormatYAML)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	return nil
}
