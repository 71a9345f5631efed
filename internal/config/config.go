// Package config loads the host configuration from defaults, an optional
// TOML file and PLUGINHOST_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/srediag/plugin-lifecycle/pkg/lifecycle"
)

// EnvPrefix prefixes every environment variable the host reads.
const EnvPrefix = "PLUGINHOST_"

// Config is the host process configuration.
type Config struct {
	ModulesDir string `toml:"modules_dir" env:"MODULES_DIR"`
	// Modules are activated in order at startup.
	Modules []string `toml:"modules" env:"MODULES" envSeparator:","`
	// ModulePaths overrides the directory of individual modules.
	ModulePaths map[string]string `toml:"module_paths"`
	// Options are shared with every module constructor.
	Options map[string]any `toml:"options"`

	Logging   bool   `toml:"logging" env:"LOGGING"`
	LogLevel  string `toml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `toml:"log_format" env:"LOG_FORMAT"`

	HealthPort       int     `toml:"health_port" env:"HEALTH_PORT"`
	MaxMemoryPercent float64 `toml:"max_memory_percent" env:"MAX_MEMORY_PERCENT"`
	HotReload        bool    `toml:"hot_reload" env:"HOT_RELOAD"`
	Workers          int     `toml:"workers" env:"WORKERS"`
	RetryAttempts    uint64  `toml:"retry_attempts" env:"RETRY_ATTEMPTS"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		ModulesDir:    "modules",
		Logging:       true,
		LogLevel:      "info",
		LogFormat:     "pretty",
		Workers:       4,
		RetryAttempts: 3,
	}
}

// Load applies the file at path, when not empty, and then the environment
// on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				if len(k) > 0 && (k[0] == "options" || k[0] == "module_paths") {
					continue
				}
				keys = append(keys, k.String())
			}
			if len(keys) > 0 {
				sort.Strings(keys)
				return Config{}, fmt.Errorf("read config %s: unknown keys %s", path, strings.Join(keys, ", "))
			}
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.ModulesDir == "" {
		errs = append(errs, errors.New("modules_dir must not be empty"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.HealthPort < 0 || c.HealthPort > 65535 {
		errs = append(errs, fmt.Errorf("health_port %d out of range", c.HealthPort))
	}
	if c.MaxMemoryPercent < 0 || c.MaxMemoryPercent > 100 {
		errs = append(errs, fmt.Errorf("max_memory_percent %.1f out of range", c.MaxMemoryPercent))
	}
	for i, m := range c.Modules {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, fmt.Errorf("modules[%d] is empty", i))
		}
	}
	return errors.Join(errs...)
}

// Descriptors returns the startup modules with their path overrides.
func (c Config) Descriptors() []lifecycle.Descriptor {
	out := make([]lifecycle.Descriptor, 0, len(c.Modules))
	for _, name := range c.Modules {
		name = strings.TrimSpace(name)
		out = append(out, lifecycle.Descriptor{Name: name, Path: c.ModulePaths[name]})
	}
	return out
}

// Lifecycle returns the manager configuration derived from c. Sink, logger,
// registerer and tracer are left for the caller.
func (c Config) Lifecycle() *lifecycle.Config {
	lc := lifecycle.DefaultConfig()
	lc.BaseDirectory = c.ModulesDir
	lc.Logging = c.Logging
	lc.SharedOptions = c.Options
	lc.InitialModules = c.Descriptors()
	lc.Workers = c.Workers
	return lc
}
