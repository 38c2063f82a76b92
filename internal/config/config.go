// Package config loads guardian configuration from CUE files.
//
// A config file is unified with the embedded #Config schema, so unknown
// fields, wrong types and out-of-range values are rejected with CUE
// positions, and omitted fields take schema defaults.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/guardian/internal/guard"
)

//go:embed schema.cue
var schemaCUE []byte

// Config is the resolved configuration.
type Config struct {
	Backend        string       `json:"backend"`
	AcquireTimeout string       `json:"acquire_timeout"`
	LogLevel       string       `json:"log_level"`
	Journal        string       `json:"journal"`
	Stress         StressConfig `json:"stress"`

	timeout time.Duration
}

// StressConfig sizes stress runs.
type StressConfig struct {
	Workers int `json:"workers"`
	Ops     int `json:"ops"`   // operations per worker
	Stock   int `json:"stock"` // initial inventory stock
}

// DefaultConfig returns the configuration used when no file is given.
// It matches the defaults in schema.cue.
func DefaultConfig() *Config {
	return &Config{
		Backend:  string(guard.BackendMutex),
		LogLevel: "info",
		Stress: StressConfig{
			Workers: 8,
			Ops:     100,
			Stock:   50,
		},
	}
}

// Load reads and validates the config file at path.
// An empty path returns DefaultConfig.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse validates CUE source against the schema and decodes it.
// filename is used in error positions only.
func Parse(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	file := ctx.CompileBytes(data, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	value := def.Unify(file)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}

	cfg := &Config{}
	if err := value.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", filename, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return cfg, nil
}

// validate checks what the schema cannot express and caches parsed values.
func (c *Config) validate() error {
	if _, err := guard.ParseBackend(c.Backend); err != nil {
		return err
	}
	if c.AcquireTimeout != "" {
		d, err := time.ParseDuration(c.AcquireTimeout)
		if err != nil {
			return fmt.Errorf("acquire_timeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("acquire_timeout: must not be negative, got %s", c.AcquireTimeout)
		}
		c.timeout = d
	}
	return nil
}

// BackendKind returns the configured backend.
func (c *Config) BackendKind() guard.Backend {
	b, err := guard.ParseBackend(c.Backend)
	if err != nil {
		return guard.BackendMutex
	}
	return b
}

// Timeout returns the parsed acquire_timeout, zero if unset.
func (c *Config) Timeout() time.Duration {
	return c.timeout
}

// Level returns the slog level for log_level.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StoreOptions returns the guard options implied by the config.
func (c *Config) StoreOptions(logger *slog.Logger) []guard.Option {
	opts := []guard.Option{guard.WithLogger(logger)}
	if c.timeout > 0 {
		opts = append(opts, guard.WithAcquireTimeout(c.timeout))
	}
	return opts
}
