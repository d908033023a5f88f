// Package filter provides the approximate-membership-filter collaborator
// the merge coordinator consults for log-sourced batches (see package
// sst's Merge). The external filter's contract is add-only: keys are
// never removed, so a negative result is definitive and a positive one
// merely possible.
package filter

import "github.com/bits-and-blooms/bloom/v3"

// Filter is the minimal contract sst.Merge needs from its membership
// filter collaborator.
type Filter interface {
	Add(key []byte)
}

// Bloom is the default Filter, backed by a bits-and-blooms bloom filter
// sized for an expected key cardinality and false-positive rate — the same
// library and defaults the teacher's own SST writer used for its embedded
// per-file bloom filter.
type Bloom struct {
	filter *bloom.BloomFilter
}

// NewBloom returns a Bloom sized via bloom.NewWithEstimates.
func NewBloom(expectedKeys uint, falsePositiveRate float64) *Bloom {
	return &Bloom{filter: bloom.NewWithEstimates(expectedKeys, falsePositiveRate)}
}

func (b *Bloom) Add(key []byte) {
	b.filter.Add(key)
}

// MayContain reports whether key was possibly added. A false result is
// definitive and lets a caller skip SST probing entirely; a true result is
// not (standard bloom filter semantics).
func (b *Bloom) MayContain(key []byte) bool {
	return b.filter.Test(key)
}
