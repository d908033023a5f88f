package batch

import (
	"bytes"
	"testing"
)

func keys(b *Batch) [][]byte {
	var out [][]byte
	for rec := range b.All() {
		out = append(out, rec.Key)
	}
	return out
}

func TestInsertKeepsAscendingOrder(t *testing.T) {
	b := New()
	for _, k := range []string{"f", "b", "d", "a", "c", "e"} {
		b.Insert(Record{Key: []byte(k), Op: Add, ValueRef: 1})
	}

	got := keys(b)
	want := []string{"a", "b", "c", "d", "e", "f"}
	if len(got) != len(want) {
		t.Fatalf("got %d keys, want %d", len(got), len(want))
	}
	for i, w := range want {
		if !bytes.Equal(got[i], []byte(w)) {
			t.Fatalf("position %d: got %q, want %q", i, got[i], w)
		}
	}
	if b.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", b.Len(), len(want))
	}
}

func TestInsertSameKeyPreservesBothEntries(t *testing.T) {
	b := New()
	b.Insert(Record{Key: []byte("a"), Op: Add, ValueRef: 1})
	b.Insert(Record{Key: []byte("a"), Op: Del, ValueRef: 0})
	b.Insert(Record{Key: []byte("b"), Op: Add, ValueRef: 2})

	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	recs := b.Records()
	if recs[0].Key[0] != 'a' || recs[0].Op != Add || recs[0].ValueRef != 1 {
		t.Fatalf("recs[0] = %+v, want ADD a=1", recs[0])
	}
	if recs[1].Key[0] != 'a' || recs[1].Op != Del {
		t.Fatalf("recs[1] = %+v, want DEL a", recs[1])
	}
	if recs[2].Key[0] != 'b' || recs[2].Op != Add || recs[2].ValueRef != 2 {
		t.Fatalf("recs[2] = %+v, want ADD b=2", recs[2])
	}
}

func TestRecordsMatchesAll(t *testing.T) {
	b := New()
	for _, k := range []string{"z", "a", "m"} {
		b.Insert(Record{Key: []byte(k)})
	}
	recs := b.Records()
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if string(recs[0].Key) != "a" || string(recs[1].Key) != "m" || string(recs[2].Key) != "z" {
		t.Fatalf("unexpected order: %v", recs)
	}
}

func TestEmptyBatch(t *testing.T) {
	b := New()
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
	if recs := b.Records(); len(recs) != 0 {
		t.Fatalf("Records() = %v, want empty", recs)
	}
}
