// Package recovery implements the write-ahead log the SST layer replays
// on startup: entries are appended to rotating segment files and, on
// recovery, decoded back into a batch.Batch and handed to sst.Merge with
// fromLog set, exactly as a live flush would.
//
// This package is a caller of sst, never the reverse — the sst package
// itself has no notion of a log or of recovery; §1's scope explicitly
// carves crash-recovery of the write-ahead log out of the SST layer and
// treats it as an external collaborator.
package recovery

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/nessdb-go/sstengine/batch"
)

// invalidCRC marks a placeholder CRC field not yet patched. Decode treats
// an entry still carrying it (a write that never completed) as the clean
// end of the log.
const invalidCRC = uint32(0xFFFFFFFF)

// maxEntrySize bounds a single log entry, guarding decode against a
// corrupt length field that would otherwise drive an enormous allocation.
const maxEntrySize = 16 << 20

var errCorruptEntry = errors.New("recovery: corrupt log entry")

// Entry is one record of the write-ahead log: a batch.Record plus enough
// to reconstruct it, encoded with a leading CRC and length prefix.
type Entry struct {
	Op       batch.Op
	Key      []byte
	ValueRef uint32
}

// Encode writes e to w in the format:
//
//	| CRC (4) | TOTAL_LEN (4) | OP (1) | KEY_LEN (4) | KEY | VALUE_REF (4) |
//
// CRC is the checksum of everything after the CRC field's own four bytes,
// TOTAL_LEN included; TOTAL_LEN counts its own four bytes plus the rest. w must also be an io.Seeker: the CRC field
// is written as a placeholder, then patched after the payload is known,
// the same write-placeholder-then-seek-back pattern the teacher's own
// Log.Encode uses.
func (e *Entry) Encode(w io.Writer) error {
	seeker, ok := w.(io.Seeker)
	if !ok {
		return errors.New("recovery: log writer must be seekable")
	}

	keyLen := uint32(len(e.Key))
	payloadLen := 1 + 4 + keyLen + 4
	totalLen := 4 + payloadLen
	if totalLen > maxEntrySize {
		return errors.Newf("recovery: entry too large (%d bytes)", totalLen)
	}

	if err := binary.Write(w, binary.BigEndian, invalidCRC); err != nil {
		return errors.Wrap(err, "recovery: write crc placeholder")
	}

	crc := crc32.NewIEEE()
	mw := io.MultiWriter(w, crc)

	if err := binary.Write(mw, binary.BigEndian, totalLen); err != nil {
		return errors.Wrap(err, "recovery: write entry length")
	}
	if err := binary.Write(mw, binary.BigEndian, byte(e.Op)); err != nil {
		return errors.Wrap(err, "recovery: write op")
	}
	if err := binary.Write(mw, binary.BigEndian, keyLen); err != nil {
		return errors.Wrap(err, "recovery: write key length")
	}
	if _, err := mw.Write(e.Key); err != nil {
		return errors.Wrap(err, "recovery: write key")
	}
	if err := binary.Write(mw, binary.BigEndian, e.ValueRef); err != nil {
		return errors.Wrap(err, "recovery: write value ref")
	}

	pos, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrap(err, "recovery: seek current")
	}
	if _, err := seeker.Seek(pos-int64(totalLen)-4, io.SeekStart); err != nil {
		return errors.Wrap(err, "recovery: seek to crc field")
	}
	if err := binary.Write(w, binary.BigEndian, crc.Sum32()); err != nil {
		return errors.Wrap(err, "recovery: patch crc")
	}
	if _, err := seeker.Seek(pos, io.SeekStart); err != nil {
		return errors.Wrap(err, "recovery: seek past entry")
	}
	return nil
}

// Decode reads one Entry from r. io.EOF signals a clean end of log: input
// exhausted (a truncated final entry's io.ErrUnexpectedEOF is reported as
// io.EOF too) or an unpatched placeholder CRC. errCorruptEntry signals a
// checksum mismatch or an invalid length field, which includes a
// zero-filled tail (its length field reads as 0).
func Decode(r io.Reader) (*Entry, error) {
	var storedCRC uint32
	if err := binary.Read(r, binary.BigEndian, &storedCRC); err != nil {
		return nil, cleanEOF(err)
	}
	if storedCRC == invalidCRC {
		return nil, io.EOF
	}

	var totalLen uint32
	if err := binary.Read(r, binary.BigEndian, &totalLen); err != nil {
		return nil, cleanEOF(err)
	}
	if totalLen > maxEntrySize || totalLen < 9 {
		return nil, errCorruptEntry
	}

	payload := make([]byte, totalLen)
	binary.BigEndian.PutUint32(payload[0:4], totalLen)
	if _, err := io.ReadFull(r, payload[4:]); err != nil {
		return nil, cleanEOF(err)
	}
	if crc32.ChecksumIEEE(payload) != storedCRC {
		return nil, errCorruptEntry
	}

	pos := 4
	var e Entry
	e.Op = batch.Op(payload[pos])
	pos++

	keyLen := binary.BigEndian.Uint32(payload[pos:])
	pos += 4
	if int(keyLen) > len(payload)-pos-4 {
		return nil, errCorruptEntry
	}
	e.Key = append([]byte(nil), payload[pos:pos+int(keyLen)]...)
	pos += int(keyLen)

	e.ValueRef = binary.BigEndian.Uint32(payload[pos:])
	return &e, nil
}

func cleanEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}
