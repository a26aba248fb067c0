package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kolkov/dryrun/internal/abi"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Startpoint.Property != abi.DefaultPilotProperty || cfg.Startpoint.EnabledValue != abi.DefaultPilotValue {
		t.Errorf("startpoint defaults = %+v", cfg.Startpoint)
	}
	if cfg.FastForward.RootMethod != "run" || cfg.FastForward.Mode != ModeProduction {
		t.Errorf("fastforward defaults = %+v", cfg.FastForward)
	}
	if cfg.FastForward.Enabled() {
		t.Error("fast-forward enabled without a worker class")
	}
	if _, _, ok := cfg.StartpointPair(); ok {
		t.Error("startpoint pair present by default")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "dryrun.yaml", `
blacklist:
  classes: [org.slf4j, com.google]
whitelist:
  classes: [demo.Task]
manual:
  ignore:
    classes: [demo.Handwritten]
startpoint:
  methods:
    - "<demo.Main: int serve(int)>"
    - "<demo.Main: int pilot(int)>"
fastforward:
  worker_class: demo.Worker
  targets:
    - {class: demo.Queue, method: take}
  field_reads:
    - {class: demo.Worker, field: stopped}
  shadow_fields: [pending]
`)
	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Blacklist.Classes, []string{"org.slf4j", "com.google"}) {
		t.Errorf("blacklist = %v", cfg.Blacklist.Classes)
	}
	if !reflect.DeepEqual(cfg.Manual.Ignore.Classes, []string{"demo.Handwritten"}) {
		t.Errorf("manual.ignore = %v", cfg.Manual.Ignore.Classes)
	}
	target, pilot, ok := cfg.StartpointPair()
	if !ok || target != "<demo.Main: int serve(int)>" || pilot != "<demo.Main: int pilot(int)>" {
		t.Errorf("StartpointPair() = %q, %q, %v", target, pilot, ok)
	}
	ff := cfg.FastForward
	if ff.WorkerClass != "demo.Worker" || len(ff.Targets) != 1 || ff.Targets[0] != (Target{"demo.Queue", "take"}) {
		t.Errorf("fastforward = %+v", ff)
	}
	if len(ff.FieldReads) != 1 || ff.FieldReads[0] != (FieldRead{"demo.Worker", "stopped"}) {
		t.Errorf("field_reads = %+v", ff.FieldReads)
	}
}

func TestLoadProperties(t *testing.T) {
	path := writeFile(t, "dryrun.properties", `
# legacy format
blacklist.classes=org.slf4j, com.google
whitelist.classes=demo.Task
manual.ignore.classes=
startpoint.methods=<demo.Main: int serve(int)>;\
    <demo.Main: int pilot(int)>
fastforward.worker_class=demo.Worker
fastforward.targets=demo.Queue#take,demo.Lock#acquire
boxing.legacy_char=true
`)
	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Blacklist.Classes, []string{"org.slf4j", "com.google"}) {
		t.Errorf("blacklist = %v", cfg.Blacklist.Classes)
	}
	if len(cfg.Manual.Ignore.Classes) != 0 {
		t.Errorf("manual.ignore = %v, want empty", cfg.Manual.Ignore.Classes)
	}
	if _, pilot, ok := cfg.StartpointPair(); !ok || pilot != "<demo.Main: int pilot(int)>" {
		t.Errorf("pilot = %q, ok = %v", pilot, ok)
	}
	want := []Target{{"demo.Queue", "take"}, {"demo.Lock", "acquire"}}
	if !reflect.DeepEqual(cfg.FastForward.Targets, want) {
		t.Errorf("targets = %+v, want %+v", cfg.FastForward.Targets, want)
	}
	if !cfg.Boxing.LegacyChar || cfg.Boxing.Table().Check() == nil {
		t.Errorf("legacy boxing not selected")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "dryrun.yaml", `
fastforward:
  worker_class: demo.FromFile
  mode: debug
`)
	t.Setenv("DRYRUN_FASTFORWARD_WORKER_CLASS", "demo.FromEnv")
	t.Setenv("DRYRUN_BLACKLIST_CLASSES", "a.b,c.d")

	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FastForward.WorkerClass != "demo.FromEnv" {
		t.Errorf("worker_class = %q, want demo.FromEnv (env should override file)", cfg.FastForward.WorkerClass)
	}
	if !cfg.FastForward.Debug() {
		t.Error("mode from file lost")
	}
	if !reflect.DeepEqual(cfg.Blacklist.Classes, []string{"a.b", "c.d"}) {
		t.Errorf("blacklist = %v", cfg.Blacklist.Classes)
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"FASTFORWARD_WORKER_CLASS": "fastforward.worker_class",
		"MANUAL_IGNORE_CLASSES":    "manual.ignore.classes",
		"STARTPOINT_ENABLED_VALUE": "startpoint.enabled_value",
		"BOXING_LEGACY_CHAR":       "boxing.legacy_char",
		"SOMETHING_ELSE":           "something.else",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"single startpoint", func(c *Config) { c.Startpoint.Methods = []string{"<a.B: void m()>"} }, "pair"},
		{"bad signature", func(c *Config) { c.Startpoint.Methods = []string{"a.B.m", "<a.B: void p()>"} }, "startpoint.methods"},
		{"unknown mode", func(c *Config) { c.FastForward.Mode = "fast" }, "unknown mode"},
		{"production without targets", func(c *Config) { c.FastForward.Targets = nil }, "needs targets"},
		{"debug without targets", func(c *Config) {
			c.FastForward.Targets = nil
			c.FastForward.Mode = ModeDebug
		}, ""},
		{"incomplete target", func(c *Config) { c.FastForward.Targets = []Target{{Class: "a.B"}} }, "targets[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Startpoint: Startpoint{Property: "PilotMode", EnabledValue: "enabled"},
				FastForward: FastForward{
					WorkerClass: "demo.Worker",
					RootMethod:  "run",
					Mode:        ModeProduction,
					Targets:     []Target{{"demo.Queue", "take"}},
				},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestPropertiesSyntaxError(t *testing.T) {
	_, err := PropertiesParser().Unmarshal([]byte("blacklist.classes\n"))
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("Unmarshal() error = %v, want line 1 error", err)
	}
}
