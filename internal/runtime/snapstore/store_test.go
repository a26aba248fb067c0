package snapstore

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oklog/ulid/v2"
)

type countingObserver struct {
	recorded, dropped, missing atomic.Int64
}

func (c *countingObserver) SnapshotRecorded(string) { c.recorded.Add(1) }
func (c *countingObserver) SnapshotDropped(string)  { c.dropped.Add(1) }
func (c *countingObserver) SnapshotMissing(string)  { c.missing.Add(1) }

func chainID(b byte) ulid.ULID {
	var id ulid.ULID
	id[15] = b
	return id
}

func TestRecordInsertIfAbsent(t *testing.T) {
	obs := &countingObserver{}
	s := New(WithObserver(obs))
	const sig = "<demo.W: int compute(int)>"

	if !s.Record(chainID(1), Locals, sig, Snapshot{"x": 3, "y": "abc"}) {
		t.Fatal("first Record was dropped")
	}
	if s.Record(chainID(1), Locals, sig, Snapshot{"x": 99}) {
		t.Error("second Record overwrote the first")
	}

	got, err := s.Get(chainID(1), Locals, sig)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got["x"] != 3 || got["y"] != "abc" {
		t.Errorf("Get = %v, want first capture", got)
	}
	if obs.recorded.Load() != 1 || obs.dropped.Load() != 1 {
		t.Errorf("observer saw recorded=%d dropped=%d", obs.recorded.Load(), obs.dropped.Load())
	}
}

func TestRecordCopiesInput(t *testing.T) {
	s := New()
	snap := Snapshot{"x": 1}
	s.Record(ulid.ULID{}, Locals, "m", snap)
	snap["x"] = 2

	got, _ := s.Get(ulid.ULID{}, Locals, "m")
	if got["x"] != 1 {
		t.Errorf("stored snapshot changed with caller's map: %v", got)
	}
	got["x"] = 3
	again, _ := s.Get(ulid.ULID{}, Locals, "m")
	if again["x"] != 1 {
		t.Error("Get returned the stored map instead of a copy")
	}
}

func TestSnapshotLivesUntilChainEnds(t *testing.T) {
	s := New()
	const sig = "<demo.W: int compute()>"
	s.Record(chainID(3), Locals, sig, Snapshot{"x": 1})

	for i := 0; i < 2; i++ {
		if _, err := s.Get(chainID(3), Locals, sig); err != nil {
			t.Fatalf("restore %d: %v", i, err)
		}
	}
	if n := s.EndChain(chainID(3)); n != 1 {
		t.Fatalf("EndChain removed %d entries, want 1", n)
	}
	if _, err := s.Get(chainID(3), Locals, sig); !errors.Is(err, ErrStaleOrMissingSnapshot) {
		t.Errorf("Get after EndChain = %v, want ErrStaleOrMissingSnapshot", err)
	}
}

func TestGetMissing(t *testing.T) {
	obs := &countingObserver{}
	s := New(WithObserver(obs))
	_, err := s.Get(chainID(7), Fields, "<demo.W: void run()>")
	if !errors.Is(err, ErrStaleOrMissingSnapshot) {
		t.Fatalf("Get = %v, want ErrStaleOrMissingSnapshot", err)
	}
	var se *SnapshotError
	if !errors.As(err, &se) {
		t.Fatalf("error %T is not *SnapshotError", err)
	}
	if se.Table != Fields || se.Chain != chainID(7) {
		t.Errorf("SnapshotError = %+v", se)
	}
	if obs.missing.Load() != 1 {
		t.Errorf("missing = %d, want 1", obs.missing.Load())
	}
}

func TestTablesAndChainsAreIsolated(t *testing.T) {
	s := New()
	s.Record(chainID(1), Locals, "m", Snapshot{"v": "locals"})
	s.Record(chainID(1), Fields, "m", Snapshot{"v": "fields"})
	s.Record(chainID(2), Locals, "m", Snapshot{"v": "other chain"})

	tests := []struct {
		chain ulid.ULID
		table Table
		want  string
	}{
		{chainID(1), Locals, "locals"},
		{chainID(1), Fields, "fields"},
		{chainID(2), Locals, "other chain"},
	}
	for _, tt := range tests {
		got, err := s.Get(tt.chain, tt.table, "m")
		if err != nil {
			t.Fatalf("Get(%s, %s): %v", tt.chain, tt.table, err)
		}
		if got["v"] != tt.want {
			t.Errorf("Get(%s, %s) = %v, want %s", tt.chain, tt.table, got["v"], tt.want)
		}
	}
	if _, err := s.Get(chainID(2), Fields, "m"); err == nil {
		t.Error("field table of chain 2 should be empty")
	}
}

func TestEndChain(t *testing.T) {
	s := New()
	for _, sig := range []string{"a", "b", "c"} {
		s.Record(chainID(1), Locals, sig, Snapshot{})
	}
	s.Record(chainID(2), Locals, "a", Snapshot{})

	if n := s.EndChain(chainID(1)); n != 3 {
		t.Errorf("EndChain removed %d, want 3", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if _, err := s.Get(chainID(1), Locals, "a"); !errors.Is(err, ErrStaleOrMissingSnapshot) {
		t.Error("ended chain still readable")
	}
	s.Reset()
	if s.Len() != 0 {
		t.Error("Reset left entries behind")
	}
}

func TestConcurrentRecordStoresOnce(t *testing.T) {
	obs := &countingObserver{}
	s := New(WithObserver(obs))
	const goroutines = 32
	var wg sync.WaitGroup
	var stored atomic.Int64
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.Record(chainID(1), Locals, "m", Snapshot{"writer": i}) {
				stored.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if stored.Load() != 1 {
		t.Errorf("%d writers stored, want exactly 1", stored.Load())
	}
	if obs.dropped.Load() != goroutines-1 {
		t.Errorf("dropped = %d, want %d", obs.dropped.Load(), goroutines-1)
	}
}
