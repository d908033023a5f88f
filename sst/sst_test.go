package sst

import (
	"bytes"
	"os"
	"testing"

	"github.com/nessdb-go/sstengine/batch"
)

func newTestEngine(t *testing.T, maxCount int) *SST {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, WithMaxCount(maxCount), WithMaxKeySize(8))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func addBatch(recs ...batch.Record) *batch.Batch {
	b := batch.New()
	for _, r := range recs {
		b.Insert(r)
	}
	return b
}

func add(key string, valueRef uint32) batch.Record {
	return batch.Record{Key: []byte(key), Op: batch.Add, ValueRef: valueRef}
}

func del(key string) batch.Record {
	return batch.Record{Key: []byte(key), Op: batch.Del}
}

// Scenario 1: empty -> fresh write.
func TestScenarioFreshWrite(t *testing.T) {
	s := newTestEngine(t, 4)
	s.Merge(addBatch(add("a", 1), add("b", 2), add("c", 3)), false)

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 file, got %d", len(snap))
	}
	if snap[0].IndexName != "0.sst" || snap[0].RecordCount != 3 || string(snap[0].EndKey) != "c" {
		t.Fatalf("unexpected descriptor: %+v", snap[0])
	}

	if off, ok := s.GetOffset([]byte("a")); !ok || off != 1 {
		t.Fatalf("getoff(a) = %d, %v", off, ok)
	}
	if _, ok := s.GetOffset([]byte("z")); ok {
		t.Fatalf("getoff(z) should be absent")
	}
}

// Scenario 2: DEL filtering.
func TestScenarioDelFiltering(t *testing.T) {
	s := newTestEngine(t, 4)
	s.Merge(addBatch(add("a", 1), del("a"), add("b", 2)), false)

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].RecordCount != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	// batch.Insert keeps both the ADD and the later DEL for "a" as distinct
	// nodes; the writer persists the ADD and simply skips the DEL, so the
	// earlier value is still resolvable.
	if off, ok := s.GetOffset([]byte("a")); !ok || off != 1 {
		t.Fatalf("getoff(a) = %d, %v, want 1", off, ok)
	}
	if off, ok := s.GetOffset([]byte("b")); !ok || off != 2 {
		t.Fatalf("getoff(b) = %d, %v", off, ok)
	}
}

// Scenario 3: spill across a fresh engine.
func TestScenarioSpill(t *testing.T) {
	s := newTestEngine(t, 4)
	recs := make([]batch.Record, 0, 10)
	for i := 0; i < 10; i++ {
		recs = append(recs, add(string(rune('a'+i)), uint32(100+i)))
	}
	s.Merge(addBatch(recs...), false)

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 files, got %d: %+v", len(snap), snap)
	}
	counts := map[string]uint32{}
	for _, d := range snap {
		counts[d.IndexName] = d.RecordCount
	}
	if counts["0.sst"] != 4 || counts["1.sst"] != 6 {
		t.Fatalf("unexpected chunk sizes: %+v", counts)
	}
}

// Scenario 4: merge into existing.
func TestScenarioMergeIntoExisting(t *testing.T) {
	s := newTestEngine(t, 4)
	s.Merge(addBatch(add("b", 1), add("d", 2), add("f", 3), add("h", 4)), false)

	s.Merge(addBatch(add("c", 99), add("e", 100)), false)

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 file after merge, got %d: %+v", len(snap), snap)
	}
	if snap[0].RecordCount != 6 || string(snap[0].EndKey) != "h" {
		t.Fatalf("unexpected descriptor after merge: %+v", snap[0])
	}

	for key, want := range map[string]uint32{"b": 1, "c": 99, "d": 2, "e": 100, "f": 3, "h": 4} {
		if off, ok := s.GetOffset([]byte(key)); !ok || off != want {
			t.Fatalf("getoff(%s) = %d, %v, want %d", key, off, ok, want)
		}
	}
}

// Scenario 5: append beyond range creates a new file, existing file untouched.
func TestScenarioAppendBeyondRange(t *testing.T) {
	s := newTestEngine(t, 4)
	s.Merge(addBatch(add("m", 1)), false)

	before := s.Snapshot()[0]

	s.Merge(addBatch(add("n", 1), add("o", 2), add("p", 3)), false)

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 files, got %d: %+v", len(snap), snap)
	}
	for _, d := range snap {
		if d.IndexName == before.IndexName {
			if d.RecordCount != before.RecordCount || !bytes.Equal(d.EndKey, before.EndKey) {
				t.Fatalf("existing file was modified: before=%+v after=%+v", before, d)
			}
		}
	}
}

// Scenario 6: corruption detected on load.
func TestScenarioCorruptionAborts(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, WithMaxKeySize(8))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Merge(addBatch(add("a", 1)), false)

	// Corrupt the crc sentinel field in the footer.
	path := dir + "/0.sst"
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	ft, err := readFooter(f, 8)
	if err != nil {
		t.Fatalf("read footer before corrupting: %v", err)
	}
	_ = ft
	// The crc field follows the 8-byte key field and the 4-byte count.
	size := footerSize(8)
	if _, err := f.Seek(-int64(size)+8+4, 2); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if _, err := f.Write([]byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("write garbage crc: %v", err)
	}
	f.Close()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected New to panic on corrupt footer")
		}
	}()
	if _, err := New(dir, WithMaxKeySize(8)); err == nil {
		t.Fatalf("expected New to fail on corrupt footer")
	}
}

// P1: keys within a written file are strictly ascending.
func TestPropertySortedBlocks(t *testing.T) {
	s := newTestEngine(t, 100)
	s.Merge(addBatch(add("c", 1), add("a", 2), add("b", 3)), false)

	b := batch.New()
	if err := readMergeBase(s.basedir, "0.sst", s.maxKeySize, b); err != nil {
		t.Fatalf("readMergeBase: %v", err)
	}
	var prev []byte
	for _, r := range b.Records() {
		if prev != nil && bytes.Compare(prev, r.Key) >= 0 {
			t.Fatalf("keys not strictly ascending: %q then %q", prev, r.Key)
		}
		prev = r.Key
	}
}

// P6: flushNewList chunk sizing.
func TestPropertyChunkSizes(t *testing.T) {
	cases := []struct {
		count, maxCount int
		want            []int
	}{
		{count: 3, maxCount: 4, want: []int{3}},
		{count: 8, maxCount: 4, want: []int{8}},
		{count: 10, maxCount: 4, want: []int{4, 6}},
		{count: 13, maxCount: 4, want: []int{4, 4, 5}},
	}
	for _, c := range cases {
		got := chunkSizes(c.count, c.maxCount)
		if len(got) != len(c.want) {
			t.Fatalf("count=%d maxCount=%d: got %v, want %v", c.count, c.maxCount, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("count=%d maxCount=%d: got %v, want %v", c.count, c.maxCount, got, c.want)
			}
		}
	}
}

// P7: idempotent reload.
func TestPropertyIdempotentReload(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, WithMaxCount(4), WithMaxKeySize(8))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Merge(addBatch(add("b", 1), add("d", 2), add("f", 3), add("h", 4)), false)
	s.Merge(addBatch(add("c", 99), add("e", 100)), false)

	before := s.Snapshot()

	reopened, err := New(dir, WithMaxCount(4), WithMaxKeySize(8))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	after := reopened.Snapshot()

	if len(before) != len(after) {
		t.Fatalf("descriptor count changed: before=%d after=%d", len(before), len(after))
	}
	for i := range before {
		if before[i].IndexName != after[i].IndexName ||
			!bytes.Equal(before[i].EndKey, after[i].EndKey) ||
			before[i].RecordCount != after[i].RecordCount {
			t.Fatalf("descriptor %d changed: before=%+v after=%+v", i, before[i], after[i])
		}
	}
}
