package sst

import (
	"bytes"
	"sort"
	"sync"
)

// Descriptor points at one SST file by its greatest key (§3.1).
type Descriptor struct {
	IndexName   string
	EndKey      []byte
	RecordCount uint32
	LSN         int64
}

// metaDirectory is an ordered set of Descriptors, kept sorted by EndKey and
// searched for the smallest EndKey >= a query key — the "floor of the
// ceiling range" §4.3 describes. The original engine/sst.c keeps this as a
// flat array scanned linearly (see SPEC_FULL.md's "SUPPLEMENTED FEATURES"
// item 2); this keeps the sorted-array representation but searches it with
// sort.Search, a pure performance change with no behavioral difference.
type metaDirectory struct {
	mu      sync.Mutex
	descs   []Descriptor
	nextLSN int64
}

func newMetaDirectory() *metaDirectory {
	return &metaDirectory{}
}

func (m *metaDirectory) ceilIndexLocked(endKey []byte) int {
	return sort.Search(len(m.descs), func(i int) bool {
		return bytes.Compare(m.descs[i].EndKey, endKey) >= 0
	})
}

// Get returns the descriptor whose EndKey is the smallest EndKey >= key, or
// false when key exceeds every EndKey currently held.
func (m *metaDirectory) Get(key []byte) (Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.ceilIndexLocked(key)
	if i == len(m.descs) {
		return Descriptor{}, false
	}
	return m.descs[i], true
}

func (m *metaDirectory) insertLocked(d Descriptor) {
	i := m.ceilIndexLocked(d.EndKey)
	m.descs = append(m.descs, Descriptor{})
	copy(m.descs[i+1:], m.descs[i:])
	m.descs[i] = d
}

// Set inserts a new descriptor, assigning a fresh, strictly increasing LSN
// (§4.3), and keeps the slice sorted by EndKey (partitioning invariant,
// §3.2 #4).
func (m *metaDirectory) Set(d Descriptor) Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	d.LSN = m.nextLSN
	m.nextLSN++
	m.insertLocked(d)
	return d
}

// SetByName updates the descriptor whose IndexName matches d.IndexName,
// preserving its LSN, and re-sorts since EndKey may have changed.
func (m *metaDirectory) SetByName(d Descriptor) (Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i := range m.descs {
		if m.descs[i].IndexName == d.IndexName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Descriptor{}, false
	}

	d.LSN = m.descs[idx].LSN
	m.descs = append(m.descs[:idx], m.descs[idx+1:]...)
	m.insertLocked(d)
	return d, true
}

// Size is the number of descriptors held, used to mint the next file name.
func (m *metaDirectory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.descs)
}

// Snapshot returns a copy of all descriptors, sorted by EndKey.
func (m *metaDirectory) Snapshot() []Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Descriptor, len(m.descs))
	copy(out, m.descs)
	return out
}
