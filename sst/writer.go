package sst

import (
	"log"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/nessdb-go/sstengine/batch"
)

// stats are the per-flush layout statistics §4.4.1 requires before the
// write pass can size the block area.
type stats struct {
	realCount     uint32
	maxKeyLen     uint32
	maxLCP        uint32
	blockAreaSize uint32
}

// computeStats scans records once, as §4.4.1 specifies: realCount and
// maxKeyLen are straightforward running maxima over ADD records only;
// maxLCP starts at 0 and is only ever allowed to shrink, so it stays 0:
// tracking stops after the first adjacent ADD pair, and the footer always
// records 0. That's the algorithm spec.md §4.4.1 and the
// original engine/sst.c both describe, and §9 marks max_lcp metadata-only,
// so the convergence-to-zero behavior is preserved rather than "fixed".
func computeStats(records []batch.Record) stats {
	var s stats
	var prevKey []byte
	haveZeroed := false

	for _, r := range records {
		if r.Op != batch.Add {
			continue
		}
		s.realCount++
		if kl := uint32(len(r.Key)); kl > s.maxKeyLen {
			s.maxKeyLen = kl
		}

		if prevKey != nil && !haveZeroed {
			lcp := uint32(commonPrefixLen(prevKey, r.Key))
			if lcp < s.maxLCP {
				s.maxLCP = lcp
			}
			if s.maxLCP == 0 {
				haveZeroed = true
			}
		}
		prevKey = r.Key
	}

	s.blockAreaSize = (s.maxKeyLen + 4) * s.realCount
	return s
}

// writeFile implements the §4.4.2 write pass: create name in basedir, size
// it to the computed block area, memory-map it, write one fixed-width
// block per ADD record (DELs are dropped and excluded from the returned
// count), optionally msync, munmap, then append the footer.
//
// Go's os.File.Truncate replaces the teacher's lseek-then-write idiom for
// extending a freshly created file to its final size; both zero-fill the
// extended region, which the block-writing loop below relies on for the
// zero-padding between a key and the next field.
//
// Failures creating, truncating, or mapping the file are fatal (§7
// category 1); msync/munmap failures are logged and otherwise ignored
// (§7 category 2).
func writeFile(basedir, name string, maxKeySize int, records []batch.Record, msync bool) (Descriptor, error) {
	st := computeStats(records)
	path := filepath.Join(basedir, name)

	f, err := os.Create(path)
	if err != nil {
		return Descriptor{}, errors.Wrapf(err, "sst: create %s", path)
	}
	defer f.Close()

	var lastKey []byte
	var persisted uint32

	if st.blockAreaSize > 0 {
		if err := f.Truncate(int64(st.blockAreaSize)); err != nil {
			fatal(errors.Wrapf(err, "sst: truncate %s", path))
		}

		mm, err := unix.Mmap(int(f.Fd()), 0, int(st.blockAreaSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			fatal(errors.Wrapf(err, "sst: mmap %s for write", path))
		}

		recordWidth := int(st.maxKeyLen) + 4
		pos := 0
		for _, r := range records {
			if r.Op != batch.Add {
				continue
			}
			block := mm[pos : pos+recordWidth]
			copy(block, r.Key) // remainder is already zero: Truncate zero-fills
			putUint32(block[st.maxKeyLen:], r.ValueRef)
			pos += recordWidth
			lastKey = r.Key
			persisted++
		}

		if msync {
			if err := unix.Msync(mm, unix.MS_SYNC); err != nil {
				log.Printf("sst: msync %s: %v", path, err)
			}
		}
		if err := unix.Munmap(mm); err != nil {
			log.Printf("sst: munmap %s: %v", path, err)
		}
	}

	if err := writeFooter(f, maxKeySize, lastKey, persisted, st.blockAreaSize, st.maxKeyLen, st.maxLCP); err != nil {
		fatal(err)
	}

	return Descriptor{
		IndexName:   name,
		EndKey:      append([]byte(nil), lastKey...),
		RecordCount: persisted,
	}, nil
}
