package filter

import (
	"testing"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/config"
	"github.com/kolkov/dryrun/internal/ir"
)

func newFilter() *Filter {
	cfg := &config.Config{
		Blacklist: config.ClassList{Classes: []string{"org.slf4j", "", "demo.internal"}},
		Whitelist: config.ClassList{Classes: []string{"demo.internal.Task"}},
		Manual:    config.Manual{Ignore: config.ClassList{Classes: []string{"demo.Handwritten"}}},
	}
	return New(cfg, nil)
}

func TestShouldSkip(t *testing.T) {
	marked := ir.NewClass("demo.Marked", abi.ObjectClass, ir.ModPublic)
	marked.AddField(&ir.Field{Name: abi.TraceFlagName("demo.Marked"), Type: ir.Boolean, Mods: ir.ModPublic})

	tests := []struct {
		name        string
		class       *ir.Class
		skip        bool
		skipTracing bool
	}{
		{"plain", ir.NewClass("demo.Worker", abi.ObjectClass, ir.ModPublic), false, false},
		{"interface", &ir.Class{Name: "demo.Api", Mods: ir.ModInterface}, true, true},
		{"phantom", &ir.Class{Name: "java.util.List", Phantom: true}, true, true},
		{"runtime", ir.NewClass("org.dryrun.Helper", abi.ObjectClass, 0), true, true},
		{"blacklisted", ir.NewClass("org.slf4j.Logger", abi.ObjectClass, 0), true, true},
		{"blacklisted but whitelisted", ir.NewClass("demo.internal.TaskRunner", abi.ObjectClass, 0), true, false},
		{"manual", ir.NewClass("demo.HandwrittenCodec", abi.ObjectClass, 0), true, true},
		{"already instrumented", marked, true, true},
	}
	f := newFilter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.ShouldSkip(tt.class); got != tt.skip {
				t.Errorf("ShouldSkip(%s) = %v, want %v", tt.class.Name, got, tt.skip)
			}
			if got := f.ShouldSkipForTracing(tt.class); got != tt.skipTracing {
				t.Errorf("ShouldSkipForTracing(%s) = %v, want %v", tt.class.Name, got, tt.skipTracing)
			}
		})
	}
}

func TestClasses(t *testing.T) {
	p := ir.NewProgram()
	abi.DeclareLibrary(p)
	for _, name := range []string{"demo.B", "demo.A", "org.slf4j.Logger"} {
		if err := p.AddClass(ir.NewClass(name, abi.ObjectClass, ir.ModPublic)); err != nil {
			t.Fatal(err)
		}
	}
	got := newFilter().Classes(p)
	if len(got) != 2 || got[0].Name != "demo.A" || got[1].Name != "demo.B" {
		names := make([]string, len(got))
		for i, c := range got {
			names[i] = c.Name
		}
		t.Errorf("Classes() = %v, want [demo.A demo.B]", names)
	}
}
