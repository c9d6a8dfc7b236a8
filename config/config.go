package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/c360/rulenet/errors"
	"github.com/c360/rulenet/pkg/cache"
)

// Prototype store modes
const (
	PrototypeModeNone   = "none"   // every instance builds its own segments
	PrototypeModeMemory = "memory" // shared by instances in this process
	PrototypeModeKV     = "kv"     // shared through a NATS KV bucket
	PrototypeModeHybrid = "hybrid" // local cache in front of the KV bucket
)

// Config is the complete rulenet configuration.
type Config struct {
	Version string        `json:"version"`
	Logging LoggingConfig `json:"logging"`
	Linking LinkingConfig `json:"linking"`
	NATS    NATSConfig    `json:"nats"`
	Notify  NotifyConfig  `json:"notify"`
	Metrics MetricsConfig `json:"metrics"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// LinkingConfig configures engine instances.
type LinkingConfig struct {
	// Instances is how many engine instances are built over one network.
	Instances  int              `json:"instances"`
	Prototypes PrototypesConfig `json:"prototypes"`
}

// PrototypesConfig configures where segment prototypes are shared.
type PrototypesConfig struct {
	Mode    string        `json:"mode"`
	Cache   cache.Config  `json:"cache"`
	Bucket  string        `json:"bucket,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Name          string        `json:"name,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// NotifyConfig configures publishing of path transitions.
type NotifyConfig struct {
	Enabled bool   `json:"enabled"`
	Subject string `json:"subject,omitempty"`
	// RateLimit caps publishes per second, zero means unlimited.
	RateLimit float64 `json:"rate_limit,omitempty"`
	Burst     int     `json:"burst,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// UsesNATS reports whether any enabled feature needs a NATS connection.
func (c *Config) UsesNATS() bool {
	switch c.Linking.Prototypes.Mode {
	case PrototypeModeKV, PrototypeModeHybrid:
		return true
	}
	return c.Notify.Enabled
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", fmt.Sprintf(format, args...))
}

// Validate checks the configuration and normalizes case-insensitive fields.
func (c *Config) Validate() error {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return invalid("logging.format %q must be json or text", c.Logging.Format)
	}

	if c.Linking.Instances < 1 {
		return invalid("linking.instances must be at least 1, got %d", c.Linking.Instances)
	}

	p := c.Linking.Prototypes
	switch p.Mode {
	case PrototypeModeNone, PrototypeModeKV:
	case PrototypeModeMemory, PrototypeModeHybrid:
		if err := p.Cache.Validate(); err != nil {
			return invalid("linking.prototypes.cache: %v", err)
		}
	default:
		return invalid("linking.prototypes.mode %q must be one of none, memory, kv, hybrid", p.Mode)
	}
	if p.Timeout < 0 {
		return invalid("linking.prototypes.timeout must not be negative")
	}
	if (p.Mode == PrototypeModeKV || p.Mode == PrototypeModeHybrid) && !isValidBucketName(p.Bucket) {
		return invalid("linking.prototypes.bucket %q is not a valid bucket name", p.Bucket)
	}

	if c.Notify.Enabled && !isValidSubject(c.Notify.Subject) {
		return invalid("notify.subject %q is not a valid NATS subject", c.Notify.Subject)
	}
	if c.Notify.RateLimit < 0 || c.Notify.Burst < 0 {
		return invalid("notify rate_limit and burst must not be negative")
	}

	if c.UsesNATS() {
		if len(c.NATS.URLs) == 0 {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"nats.urls is required by the prototype store or notifications")
		}
		for _, url := range c.NATS.URLs {
			if !strings.HasPrefix(url, "nats://") && !strings.HasPrefix(url, "tls://") {
				return invalid("nats url %q must use nats:// or tls://", url)
			}
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		return invalid("metrics.port %d out of range", c.Metrics.Port)
	}

	return nil
}

// isValidBucketName matches the JetStream bucket alphabet.
func isValidBucketName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// isValidSubject accepts dot-separated tokens without wildcards or spaces.
func isValidSubject(s string) bool {
	if s == "" {
		return false
	}
	for _, token := range strings.Split(s, ".") {
		if token == "" || strings.ContainsAny(token, "*> \t") {
			return false
		}
	}
	return true
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return saveLayer(path, data)
}

// String returns a JSON representation with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.NATS.Password != "" {
		masked.NATS.Password = "***"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}
