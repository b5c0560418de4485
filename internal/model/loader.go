package model

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. HATLOOP_EVENT_LOOP_MAX_ITERATIONS.
const EnvPrefix = "HATLOOP"

// Load reads path (if non-empty), applies environment overrides and
// defaults, and validates the result.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg = ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOptional behaves like Load but treats a missing file as an empty config.
func LoadOptional(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Load("")
	}
	return Load(path)
}

// Parse decodes YAML without applying defaults.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays HATLOOP_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	sections := []struct {
		prefix string
		spec   interface{}
	}{
		{EnvPrefix + "_EVENT_LOOP", &cfg.EventLoop},
		{EnvPrefix + "_CLI", &cfg.CLI},
		{EnvPrefix + "_CORE", &cfg.Core},
		{EnvPrefix + "_LOGGING", &cfg.Logging},
		{EnvPrefix + "_NOTIFY", &cfg.Notify},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.spec); err != nil {
			return fmt.Errorf("env %s_*: %w", s.prefix, err)
		}
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
