package sst

import (
	"github.com/nessdb-go/sstengine/batch"
)

// Merge implements sst_merge (§4.6): the public compaction entry point.
// When fromLog is set, every ADD key in incoming is first added to the
// approximate-membership filter (§6.3), matching log-replay's need to
// rebuild the filter's view of what the engine has ever seen. The meta
// directory being empty routes to flushNewList; otherwise flushList walks
// the incoming batch against existing files.
func (s *SST) Merge(incoming *batch.Batch, fromLog bool) {
	records := incoming.Records()

	if fromLog {
		for _, r := range records {
			if r.Op == batch.Add {
				s.filter.Add(r.Key)
			}
		}
	}

	if s.meta.Size() == 0 {
		s.flushNewList(records)
		return
	}
	s.flushList(records)
}

// flushNewList implements §4.6.1: no existing SST files cover any part of
// records, so partition it into chunks of maxCount, writing each as a
// brand new file, except that the last chunk absorbs any remainder.
func (s *SST) flushNewList(records []batch.Record) {
	count := len(records)
	if count == 0 {
		return
	}

	chunks := chunkSizes(count, s.maxCount)
	pos := 0
	for _, size := range chunks {
		chunk := records[pos : pos+size]
		pos += size
		name := fileName(s.meta.Size())
		desc, err := writeFile(s.basedir, name, s.maxKeySize, chunk, s.msync)
		if err != nil {
			fatal(err)
		}
		s.meta.Set(desc)
	}
}

// chunkSizes implements the §4.6.1 split rule: count <= 2*maxCount yields
// one chunk holding everything; otherwise count/maxCount - 1 full chunks
// of maxCount followed by one final chunk absorbing the remainder.
func chunkSizes(count, maxCount int) []int {
	if count <= 2*maxCount {
		return []int{count}
	}

	full := count/maxCount - 1
	sizes := make([]int, 0, full+1)
	remaining := count
	for i := 0; i < full; i++ {
		sizes = append(sizes, maxCount)
		remaining -= maxCount
	}
	sizes = append(sizes, remaining)
	return sizes
}

// mergeState tracks the single active merge buffer flushList walks
// incoming records against, per §4.6.2: at most one target file's
// contents are held in memory at a time, keyed by the target descriptor
// that buffer must eventually be flushed back to.
type mergeState struct {
	target *Descriptor // nil exactly when buffer is nil (no merge pending)
	buffer *batch.Batch
}

// flushList implements §4.6.2: merge-into-existing. Each incoming record
// is routed via the meta directory to the file whose key range covers it;
// consecutive records destined for the same file accumulate in one merge
// buffer, flushed to disk only when the target changes or the input is
// exhausted. A record past every existing file's end_key flushes the
// pending buffer, then hands the remaining tail to flushNewList.
func (s *SST) flushList(records []batch.Record) {
	var st mergeState

	for i, cur := range records {
		desc, ok := s.meta.Get(cur.Key)
		if !ok {
			// cur.key exceeds every existing end_key: flush whatever buffer
			// is pending, then the rest (from cur onward) is new territory.
			s.drainMergeState(&st)
			s.flushNewList(records[i:])
			return
		}

		switch {
		case st.buffer == nil:
			st.buffer = batch.New()
			if err := readMergeBase(s.basedir, desc.IndexName, s.maxKeySize, st.buffer); err != nil {
				fatal(err)
			}
			target := desc
			st.target = &target
			st.buffer.Insert(cur)

		case st.target.IndexName == desc.IndexName:
			st.buffer.Insert(cur)

		default:
			// Target changed: flush the old buffer back to its own
			// descriptor (not the newly looked-up one) before starting a
			// fresh buffer for desc.
			s.flushMergeList(st.buffer.Records(), *st.target)
			st.buffer = batch.New()
			if err := readMergeBase(s.basedir, desc.IndexName, s.maxKeySize, st.buffer); err != nil {
				fatal(err)
			}
			target := desc
			st.target = &target
			st.buffer.Insert(cur)
		}
	}

	s.drainMergeState(&st)
}

// drainMergeState flushes a pending merge buffer, if any, back to its
// target file in place.
func (s *SST) drainMergeState(st *mergeState) {
	if st.buffer == nil {
		return
	}
	s.flushMergeList(st.buffer.Records(), *st.target)
	st.buffer = nil
	st.target = nil
}

// flushMergeList implements §4.6.3: rewrite target in place when the
// merged record count fits within 2*maxCount; otherwise rewrite target
// with the first maxCount records, then spill the remainder into a chain
// of new files, the last of which absorbs the remainder per §4.6.1's
// rule. The in-place rewrite of target is guarded by the concurrency gate
// (§4.7) so a concurrent GetOffset against that same file's lsn blocks
// for the duration of the write rather than reading a half-written file.
func (s *SST) flushMergeList(records []batch.Record, target Descriptor) {
	count := len(records)

	if count <= 2*s.maxCount {
		s.gate.begin(target.LSN)
		desc, err := writeFile(s.basedir, target.IndexName, s.maxKeySize, records, s.msync)
		s.gate.end()
		if err != nil {
			fatal(err)
		}
		s.meta.SetByName(desc)
		return
	}

	s.gate.begin(target.LSN)
	head, err := writeFile(s.basedir, target.IndexName, s.maxKeySize, records[:s.maxCount], s.msync)
	s.gate.end()
	if err != nil {
		fatal(err)
	}
	s.meta.SetByName(head)

	rest := records[s.maxCount:]

	// §4.6.3's split math, kept in terms of count and maxCount rather than
	// len(rest) so it matches the spec's literal formula: full new files
	// of maxCount each, then one final file holding (count mod maxCount) +
	// maxCount records — the same "last chunk absorbs the remainder" rule
	// as flushNewList, applied to what's left after the in-place rewrite.
	full := (count - 2*s.maxCount) / s.maxCount
	last := count%s.maxCount + s.maxCount

	sizes := make([]int, 0, full+1)
	for i := 0; i < full; i++ {
		sizes = append(sizes, s.maxCount)
	}
	sizes = append(sizes, last)

	pos := 0
	for _, size := range sizes {
		chunk := rest[pos : pos+size]
		pos += size
		name := fileName(s.meta.Size())
		desc, err := writeFile(s.basedir, name, s.maxKeySize, chunk, s.msync)
		if err != nil {
			fatal(err)
		}
		s.meta.Set(desc)
	}
}
