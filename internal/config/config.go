package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/ir"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Locator modes.
const (
	ModeDebug      = "debug"
	ModeProduction = "production"
)

// Config is the instrumenter configuration.
type Config struct {
	Blacklist  ClassList  `koanf:"blacklist"`
	Whitelist  ClassList  `koanf:"whitelist"`
	Manual     Manual     `koanf:"manual"`
	Startpoint Startpoint `koanf:"startpoint"`

	FastForward FastForward `koanf:"fastforward"`
	Boxing      Boxing      `koanf:"boxing"`
}

// ClassList is a list of class-name substrings.
type ClassList struct {
	Classes []string `koanf:"classes"`
}

// Manual lists classes instrumented by hand.
type Manual struct {
	Ignore ClassList `koanf:"ignore"`
}

// Startpoint configures pilot-mode redirection.
type Startpoint struct {
	// Methods is the ordered pair [target, pilot] of method signatures.
	Methods      []string `koanf:"methods"`
	Property     string   `koanf:"property"`
	EnabledValue string   `koanf:"enabled_value"`
}

// Target names a blocking call that marks a divergence point.
type Target struct {
	Class  string `koanf:"class"`
	Method string `koanf:"method"`
}

// FieldRead names a field whose read marks a divergence point.
type FieldRead struct {
	Class string `koanf:"class"`
	Field string `koanf:"field"`
}

// FastForward configures the divergence-point locator and shadow variants.
type FastForward struct {
	WorkerClass  string      `koanf:"worker_class"`
	RootMethod   string      `koanf:"root_method"`
	Mode         string      `koanf:"mode"`
	Targets      []Target    `koanf:"targets"`
	FieldReads   []FieldRead `koanf:"field_reads"`
	ShadowFields []string    `koanf:"shadow_fields"`
}

// Enabled reports whether a worker class is configured.
func (f FastForward) Enabled() bool { return f.WorkerClass != "" }

// Debug reports whether every conditional branch is a divergence point.
func (f FastForward) Debug() bool { return f.Mode == ModeDebug }

// Boxing selects the primitive boxing table used by snapshot codegen.
type Boxing struct {
	LegacyChar bool `koanf:"legacy_char"`
}

// Table returns the configured boxing table.
func (b Boxing) Table() abi.BoxingTable {
	if b.LegacyChar {
		return abi.LegacyBoxing
	}
	return abi.Boxing
}

// StartpointPair returns the target and pilot signatures, or ok=false when
// pilot mode is not configured.
func (c *Config) StartpointPair() (target, pilot string, ok bool) {
	if len(c.Startpoint.Methods) != 2 {
		return "", "", false
	}
	return c.Startpoint.Methods[0], c.Startpoint.Methods[1], true
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	switch n := len(c.Startpoint.Methods); n {
	case 0, 2:
		for _, sig := range c.Startpoint.Methods {
			if _, err := ir.ParseMethodSignature(sig); err != nil {
				errs = append(errs, fmt.Errorf("startpoint.methods: %w", err))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("startpoint.methods: want a [target, pilot] pair, got %d entries", n))
	}
	if len(c.Startpoint.Methods) == 2 && c.Startpoint.Property == "" {
		errs = append(errs, errors.New("startpoint.property must not be empty"))
	}

	ff := c.FastForward
	switch ff.Mode {
	case "", ModeDebug, ModeProduction:
	default:
		errs = append(errs, fmt.Errorf("fastforward.mode: unknown mode %q", ff.Mode))
	}
	if ff.Enabled() {
		if ff.RootMethod == "" {
			errs = append(errs, errors.New("fastforward.root_method must not be empty"))
		}
		if !ff.Debug() && len(ff.Targets) == 0 && len(ff.FieldReads) == 0 {
			errs = append(errs, errors.New("fastforward: production mode needs targets or field_reads"))
		}
	}
	for i, t := range ff.Targets {
		if t.Class == "" || t.Method == "" {
			errs = append(errs, fmt.Errorf("fastforward.targets[%d]: class and method are required", i))
		}
	}
	for i, r := range ff.FieldReads {
		if r.Class == "" || r.Field == "" {
			errs = append(errs, fmt.Errorf("fastforward.field_reads[%d]: class and field are required", i))
		}
	}
	for _, f := range ff.ShadowFields {
		if strings.TrimSpace(f) == "" {
			errs = append(errs, errors.New("fastforward.shadow_fields: empty field name"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
