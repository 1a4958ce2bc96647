// Package config loads the engine's tunables through viper, the way
// gokit's config package binds a service's settings: a YAML file layered
// under environment variables, unmarshaled into a mapstructure-tagged
// struct.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Section names the top-level config key this package's settings live
// under, grounded on dlt's known_sections registry of dotted config paths.
const Section = "extract"

// ExtractConfig mirrors pipe.Config, expressed as a loadable, tagged
// struct so it can come from a file or environment instead of being
// constructed in code.
type ExtractConfig struct {
	MaxParallelItems    int           `yaml:"max_parallel_items" mapstructure:"max_parallel_items"`
	Workers             int           `yaml:"workers" mapstructure:"workers"`
	FuturesPollInterval time.Duration `yaml:"futures_poll_interval" mapstructure:"futures_poll_interval"`
	CopyOnFork          bool          `yaml:"copy_on_fork" mapstructure:"copy_on_fork"`
}

// DefaultExtractConfig matches pipe.DefaultConfig's values.
func DefaultExtractConfig() ExtractConfig {
	return ExtractConfig{
		MaxParallelItems:    20,
		Workers:             5,
		FuturesPollInterval: 10 * time.Millisecond,
		CopyOnFork:          false,
	}
}

// Load reads ExtractConfig from an optional YAML file plus environment
// variables prefixed PIPE_ (e.g. PIPE_EXTRACT_WORKERS=10), env taking
// precedence over the file, and the file taking precedence over defaults.
func Load(path string) (ExtractConfig, error) {
	cfg := DefaultExtractConfig()

	v := viper.New()
	v.SetEnvPrefix("pipe")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(Section+".max_parallel_items", cfg.MaxParallelItems)
	v.SetDefault(Section+".workers", cfg.Workers)
	v.SetDefault(Section+".futures_poll_interval", cfg.FuturesPollInterval)
	v.SetDefault(Section+".copy_on_fork", cfg.CopyOnFork)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
	}

	if err := v.UnmarshalKey(Section, &cfg); err != nil {
		return cfg, fmt.Errorf("config: failed to unmarshal %s section: %w", Section, err)
	}
	return cfg, nil
}

// ToPipeConfig converts to the engine's own Config shape. Kept as a
// separate conversion rather than importing the pipe package directly so
// this package has no dependency on the engine it configures.
func (c ExtractConfig) ToPipeConfig() (maxParallelItems, workers int, futuresPollInterval time.Duration, copyOnFork bool) {
	return c.MaxParallelItems, c.Workers, c.FuturesPollInterval, c.CopyOnFork
}
