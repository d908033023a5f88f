package recovery

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

const defaultMaxSegmentSize = 16 * 1024 * 1024

var segmentFileNamePattern = regexp.MustCompile(`^segment-(\d+)\.log$`)

type segmentEntry struct {
	id   int
	name string
}

type segmentEntries []segmentEntry

func (s segmentEntries) Len() int           { return len(s) }
func (s segmentEntries) Less(i, j int) bool { return s[i].id < s[j].id }
func (s segmentEntries) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// discoverSegments lists dir's segment-NNNN.log files in ascending id
// order, the same regexp-match-then-sort.Sort discovery the teacher's
// segment manager uses.
func discoverSegments(dir string) ([]segmentEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "recovery: read segment dir %s", dir)
	}

	var found segmentEntries
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		matches := segmentFileNamePattern.FindStringSubmatch(e.Name())
		if len(matches) != 2 {
			continue
		}
		var id int
		if _, err := fmt.Sscanf(matches[1], "%d", &id); err != nil {
			continue
		}
		found = append(found, segmentEntry{id: id, name: e.Name()})
	}
	sort.Sort(found)
	return found, nil
}

// SegmentWriter appends log entries to a rotating chain of segment-NNNN.log
// files in dir, rotating to a fresh segment once the active one would
// exceed maxSegmentSize. It is the active-writing half of recovery; replay
// only ever reads a closed, immutable chain.
type SegmentWriter struct {
	mu             sync.Mutex
	dir            string
	active         *os.File
	activeID       int
	maxSegmentSize int64
}

// NewSegmentWriter opens dir (creating it if necessary) and resumes
// appending to its highest-numbered segment, or creates segment-0001.log
// if the directory is empty.
func NewSegmentWriter(dir string) (*SegmentWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "recovery: create segment dir %s", dir)
	}

	sw := &SegmentWriter{dir: dir, maxSegmentSize: defaultMaxSegmentSize}

	found, err := discoverSegments(dir)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		if err := sw.rotate(); err != nil {
			return nil, err
		}
		return sw, nil
	}

	last := found[len(found)-1]
	// Not O_APPEND: Entry.Encode seeks back to patch each CRC, which an
	// append-mode file would redirect to the end of the file.
	f, err := os.OpenFile(filepath.Join(dir, last.name), os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "recovery: open active segment %s", last.name)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "recovery: seek to end of segment %s", last.name)
	}
	sw.active = f
	sw.activeID = last.id
	return sw, nil
}

func (sw *SegmentWriter) idToPath(id int) string {
	return filepath.Join(sw.dir, fmt.Sprintf("segment-%04d.log", id))
}

func (sw *SegmentWriter) rotate() error {
	if sw.active != nil {
		if err := sw.active.Close(); err != nil {
			return errors.Wrap(err, "recovery: close previous segment")
		}
	}
	sw.activeID++
	f, err := os.Create(sw.idToPath(sw.activeID))
	if err != nil {
		return errors.Wrapf(err, "recovery: create segment %d", sw.activeID)
	}
	sw.active = f
	return nil
}

// Append encodes e to the active segment, rotating first if e wouldn't
// fit within maxSegmentSize, then fsyncs the write.
func (sw *SegmentWriter) Append(e *Entry) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	stat, err := sw.active.Stat()
	if err != nil {
		return errors.Wrap(err, "recovery: stat active segment")
	}
	// Encoded size: CRC, TOTAL_LEN, OP, KEY_LEN, KEY, VALUE_REF.
	entrySize := int64(4 + 4 + 1 + 4 + len(e.Key) + 4)
	if stat.Size()+entrySize > sw.maxSegmentSize {
		if err := sw.rotate(); err != nil {
			return err
		}
	}

	if err := e.Encode(sw.active); err != nil {
		return errors.Wrap(err, "recovery: encode entry")
	}
	return errors.Wrap(sw.active.Sync(), "recovery: sync active segment")
}

// Close closes the active segment file.
func (sw *SegmentWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.active == nil {
		return nil
	}
	return errors.Wrap(sw.active.Close(), "recovery: close active segment")
}

// openSegmentsForReplay opens every discovered segment file in ascending
// id order, for a single sequential read pass.
func openSegmentsForReplay(dir string) ([]io.ReadCloser, error) {
	found, err := discoverSegments(dir)
	if err != nil {
		return nil, err
	}
	readers := make([]io.ReadCloser, 0, len(found))
	for _, se := range found {
		f, err := os.Open(filepath.Join(dir, se.name))
		if err != nil {
			for _, r := range readers {
				r.Close()
			}
			return nil, errors.Wrapf(err, "recovery: open segment %s for replay", se.name)
		}
		readers = append(readers, f)
	}
	return readers, nil
}
