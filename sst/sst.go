// Package sst implements the sorted-string-table layer of a log-structured
// key/value store: the persistence and compaction engine that turns an
// in-memory ordered batch of key operations into zero or more immutable,
// memory-mapped on-disk index files, and resolves point lookups to a
// value-log offset.
//
// The memtable/skiplist supplying the incoming batch, the value log the
// returned offsets index into, and the approximate-membership filter
// consulted for log-sourced batches are all external collaborators: this
// package touches them only through the batch.Batch and filter.Filter
// contracts.
package sst

import (
	"fmt"
	"log"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/nessdb-go/sstengine/filter"
)

// Defaults for the engine-wide knobs named in the GLOSSARY.
const (
	DefaultMaxKeySize   = 256 // MAX_KEY_SIZE
	DefaultFileNameSize = 24  // FILE_NAME_SIZE, enforced as a validation bound (see fileName)
	DefaultMaxCount     = 4096
)

// SST is the merge/compaction engine: New opens (or creates) a directory of
// *.sst files, Merge folds an incoming batch into it, GetOffset resolves a
// point lookup, and Close releases resources (§6.4).
type SST struct {
	basedir    string
	maxKeySize int
	maxCount   int
	msync      bool
	filter     filter.Filter

	meta *metaDirectory
	gate *gate
}

// Option configures an SST at construction time.
type Option func(*SST)

// WithMaxKeySize overrides MAX_KEY_SIZE (default DefaultMaxKeySize).
func WithMaxKeySize(n int) Option { return func(s *SST) { s.maxKeySize = n } }

// WithMaxCount overrides SST_MAX_COUNT (default DefaultMaxCount).
func WithMaxCount(n int) Option { return func(s *SST) { s.maxCount = n } }

// WithMsync enables an msync(MS_SYNC) call after every block-area write,
// before munmap. Off by default, matching the teacher's own optional
// #ifdef MSYNC compile-time toggle.
func WithMsync(on bool) Option { return func(s *SST) { s.msync = on } }

// WithFilter overrides the approximate-membership filter consulted for
// log-sourced batches. Defaults to a bloom filter sized for 100,000 keys
// at a 1% false-positive rate, matching the teacher's own bloom filter
// defaults in sst/writer.go.
func WithFilter(f filter.Filter) Option { return func(s *SST) { s.filter = f } }

// New opens basedir, creating it if necessary, and rebuilds the meta
// directory from every *.sst file's footer (§4.8).
func New(basedir string, opts ...Option) (*SST, error) {
	s := &SST{
		basedir:    basedir,
		maxKeySize: DefaultMaxKeySize,
		maxCount:   DefaultMaxCount,
		filter:     filter.NewBloom(100000, 0.01),
		meta:       newMetaDirectory(),
		gate:       newGate(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(basedir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "sst: create basedir %s", basedir)
	}
	if err := s.bootstrap(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases resources held by s. SST files are opened and closed
// within each operation rather than held open across calls, so Close is a
// no-op, kept for symmetry with callers that expect a Closer.
func (s *SST) Close() error { return nil }

// Snapshot returns the current meta directory contents, sorted by end key.
// Exposed for bootstrap-reload verification (P7) and diagnostics.
func (s *SST) Snapshot() []Descriptor { return s.meta.Snapshot() }

// fileName mints the name for the n-th SST file created in this basedir.
func fileName(n int) string {
	name := fmt.Sprintf("%d.sst", n)
	if len(name) > DefaultFileNameSize {
		fatal(errors.Newf("sst: file name %q exceeds FILE_NAME_SIZE", name))
	}
	return name
}

// fatal handles the category-1 errors of §7: conditions the on-disk state
// can't safely continue past. It logs the error with full detail —
// cockroachdb/errors augments wrapped errors with a stack trace, which
// %+v renders — then panics; cmd/sstdump is the only place that recovers
// this panic, converting it into a process exit code.
func fatal(err error) {
	log.Printf("sst: fatal: %+v", err)
	panic(err)
}
