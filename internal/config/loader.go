package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kolkov/dryrun/internal/abi"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "DRYRUN_"

// keys lists every configuration key. Environment variables are matched
// against it so that underscores inside key names survive.
var keys = []string{
	"blacklist.classes",
	"whitelist.classes",
	"manual.ignore.classes",
	"startpoint.methods",
	"startpoint.property",
	"startpoint.enabled_value",
	"fastforward.worker_class",
	"fastforward.root_method",
	"fastforward.mode",
	"fastforward.targets",
	"fastforward.field_reads",
	"fastforward.shadow_fields",
	"boxing.legacy_char",
}

// Defaults returns the default values as a nested map.
func Defaults() map[string]any {
	return unflatten(map[string]any{
		"startpoint.property":      abi.DefaultPilotProperty,
		"startpoint.enabled_value": abi.DefaultPilotValue,
		"fastforward.root_method":  "run",
		"fastforward.mode":         ModeProduction,
	})
}

// Loader loads configuration from multiple sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path. Files ending in
// ".properties" are read in the legacy key=value format, anything else as
// YAML.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads defaults, then the file, then the environment, and returns
// the validated result.
func (l *Loader) Load() (*Config, error) {
	if err := l.LoadMap(Defaults()); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := l.LoadFile(l.filePath); err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}
	if err := l.LoadEnv(); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile merges a YAML or legacy property file.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	var parser koanf.Parser = yaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".properties") {
		parser = PropertiesParser()
	}
	if err := l.k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("load file %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges environment variables.
// Format: DRYRUN_SECTION_KEY, e.g. DRYRUN_FASTFORWARD_WORKER_CLASS=demo.Worker.
// List values are comma separated.
func (l *Loader) LoadEnv() error {
	cb := func(name, value string) (string, any) {
		key := envKey(strings.TrimPrefix(name, l.envPrefix))
		return key, normalize(key, value)
	}
	if err := l.k.Load(env.ProviderWithValue(l.envPrefix, ".", cb), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// LoadMap merges a nested map.
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// Get returns a raw value by key.
func (l *Loader) Get(key string) any {
	return l.k.Get(key)
}

// Load is a shortcut for NewLoader(opts...).Load().
func Load(opts ...Option) (*Config, error) {
	return NewLoader(opts...).Load()
}

func envKey(s string) string {
	s = strings.ToLower(s)
	for _, k := range keys {
		if strings.ReplaceAll(k, ".", "_") == s {
			return k
		}
	}
	return strings.ReplaceAll(s, "_", ".")
}
