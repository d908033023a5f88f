package recovery

import (
	"io"

	"github.com/cockroachdb/errors"

	"github.com/nessdb-go/sstengine/batch"
)

// merger is the subset of *sst.SST that ReplayDir needs, kept as an
// interface so this package doesn't import sst (the dependency runs the
// other way: sst never imports recovery, and recovery depends only on
// sst's public Merge signature).
type merger interface {
	Merge(incoming *batch.Batch, fromLog bool)
}

// ReplayDir reads every segment file in dir in order, decodes each entry,
// and folds the result into dst via Merge(..., fromLog=true) — the same
// path a live flush would take, so the approximate-membership filter ends
// up seeded with every key replay observed (§3.2 invariant 6).
//
// A corrupt entry or an io error partway through a segment other than a
// clean end-of-log stops reading that segment at that point: everything
// decoded before it is still merged, and later segments are still read,
// since a segment's tail is the most likely place to find a torn write
// from a crash mid-append.
func ReplayDir(dir string, dst merger) error {
	readers, err := openSegmentsForReplay(dir)
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	b := batch.New()
	for _, r := range readers {
		for {
			e, err := Decode(r)
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				// Corrupt entry: stop reading this segment's tail, keep
				// whatever was decoded before it.
				break
			}
			b.Insert(batch.Record{Key: e.Key, Op: e.Op, ValueRef: e.ValueRef})
		}
	}

	if b.Len() > 0 {
		dst.Merge(b, true)
	}
	return nil
}
