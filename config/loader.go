package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c360/rulenet/errors"
	"github.com/c360/rulenet/pkg/cache"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "RULENET"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment variable prefix.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = prefix
}

// Defaults returns the configuration used when no layer sets a field.
func Defaults() *Config {
	return &Config{
		Version: "1.0.0",
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Linking: LinkingConfig{
			Instances: 1,
			Prototypes: PrototypesConfig{
				Mode:    PrototypeModeMemory,
				Cache:   cache.DefaultConfig(),
				Bucket:  "RULENET_PROTOTYPES",
				Timeout: 5 * time.Second,
			},
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			Timeout:       5 * time.Second,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Name:          "rulenet",
		},
		Notify:  NotifyConfig{Subject: "rulenet.paths"},
		Metrics: MetricsConfig{Port: 9090, Path: "/metrics"},
	}
}

// Load merges the defaults, every layer and the environment.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		raw, err := l.loadRawJSON(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		cfg, err = mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("merge %s", path))
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := readLayer(path)
	if err != nil {
		return nil, err
	}
	if err := checkLayerDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}
	if err := validateLayer(raw); err != nil {
		return nil, err
	}
	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// durationFields lists the duration settings that may be written as strings.
var durationFields = [][]string{
	{"linking", "prototypes", "timeout"},
	{"nats", "timeout"},
	{"nats", "reconnect_wait"},
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(raw map[string]any) error {
	for _, field := range durationFields {
		m := raw
		for _, key := range field[:len(field)-1] {
			next, ok := m[key].(map[string]any)
			if !ok {
				m = nil
				break
			}
			m = next
		}
		if m == nil {
			continue
		}
		last := field[len(field)-1]
		s, ok := m[last].(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", errors.ErrParsingFailed, strings.Join(field, "."), err)
		}
		m[last] = d.Nanoseconds()
	}
	return nil
}

// mergeFromMap overrides only the fields present in override.
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func (l *Loader) env(name string) (string, error) {
	key := l.envPrefix + "_" + name
	val := os.Getenv(key)
	if err := validateEnvValue(key, val); err != nil {
		return "", errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "read environment")
	}
	return val, nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"LOG_LEVEL", &cfg.Logging.Level},
		{"LOG_FORMAT", &cfg.Logging.Format},
		{"PROTOTYPE_MODE", &cfg.Linking.Prototypes.Mode},
		{"PROTOTYPE_BUCKET", &cfg.Linking.Prototypes.Bucket},
		{"NATS_USERNAME", &cfg.NATS.Username},
		{"NATS_PASSWORD", &cfg.NATS.Password},
		{"NATS_TOKEN", &cfg.NATS.Token},
		{"NOTIFY_SUBJECT", &cfg.Notify.Subject},
	}
	for _, s := range strs {
		val, err := l.env(s.name)
		if err != nil {
			return err
		}
		if val != "" {
			*s.dst = val
		}
	}

	val, err := l.env("NATS_URLS")
	if err != nil {
		return err
	}
	if val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}

	val, err = l.env("NOTIFY_ENABLED")
	if err != nil {
		return err
	}
	if val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides",
				fmt.Sprintf("parse %s_NOTIFY_ENABLED", l.envPrefix))
		}
		cfg.Notify.Enabled = enabled
	}

	val, err = l.env("INSTANCES")
	if err != nil {
		return err
	}
	if val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides",
				fmt.Sprintf("parse %s_INSTANCES", l.envPrefix))
		}
		cfg.Linking.Instances = n
	}
	return nil
}
