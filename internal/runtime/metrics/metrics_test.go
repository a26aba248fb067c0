package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.SnapshotRecorded("locals")
	c.SnapshotRecorded("locals")
	c.SnapshotRecorded("fields")
	c.SnapshotDropped("locals")
	c.SnapshotMissing("fields")
	c.ContextWrapped()
	c.ChainBegun()
	c.ChainBegun()
	c.ChainEnded()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"recorded locals", testutil.ToFloat64(c.recorded.WithLabelValues("locals")), 2},
		{"recorded fields", testutil.ToFloat64(c.recorded.WithLabelValues("fields")), 1},
		{"dropped", testutil.ToFloat64(c.dropped.WithLabelValues("locals")), 1},
		{"missing", testutil.ToFloat64(c.missing.WithLabelValues("fields")), 1},
		{"wraps", testutil.ToFloat64(c.wraps), 1},
		{"active chains", testutil.ToFloat64(c.activeChains), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestRegisteredNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.ContextWrapped()

	expected := `
# HELP dryrun_context_wraps_total Tasks and executors wrapped to carry baggage
# TYPE dryrun_context_wraps_total counter
dryrun_context_wraps_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "dryrun_context_wraps_total"); err != nil {
		t.Error(err)
	}
}

func TestNilRegisterer(t *testing.T) {
	c := New(nil)
	c.SnapshotRecorded("locals")
	if got := testutil.ToFloat64(c.recorded.WithLabelValues("locals")); got != 1 {
		t.Errorf("recorded = %v, want 1", got)
	}
}
