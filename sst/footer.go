package sst

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// crcSentinel is the constant written into every footer's crc field (§3.1).
// Any other value on read marks the file corrupt.
const crcSentinel = 0x7DB

// errCorruptFooter marks a footer whose crc field isn't crcSentinel.
var errCorruptFooter = errors.New("sst: corrupt footer (crc sentinel mismatch)")

// footer is the fixed-size trailing record of every SST file (§3.1, §6.1).
type footer struct {
	lastKey       []byte // trimmed of its zero padding
	count         uint32
	crc           uint32
	blockAreaSize uint32
	maxKeyLen     uint32
	maxLCP        uint32
	offsetDelta   uint64
}

// footerSize is fixed for the lifetime of a basedir: maxKeySize (the
// footer's own zero-padded last-key field width, the engine-wide
// MAX_KEY_SIZE constant — not to be confused with footer.maxKeyLen, which
// is a per-file statistic) plus six fixed-width integer fields.
func footerSize(maxKeySize int) int {
	return maxKeySize + 4 + 4 + 4 + 4 + 4 + 8
}

// writeFooter appends the footer for a just-written block area.
func writeFooter(f *os.File, maxKeySize int, lastKey []byte, count, blockAreaSize, maxKeyLen, maxLCP uint32) error {
	buf := make([]byte, footerSize(maxKeySize))
	copy(buf, lastKey)

	off := maxKeySize
	putUint32(buf[off:], count)
	off += 4
	putUint32(buf[off:], crcSentinel)
	off += 4
	putUint32(buf[off:], blockAreaSize)
	off += 4
	putUint32(buf[off:], maxKeyLen)
	off += 4
	putUint32(buf[off:], maxLCP)
	off += 4
	putUint64(buf[off:], 0) // offset_delta: reserved, left zero per §9.

	if _, err := f.Write(buf); err != nil {
		return errors.Wrap(err, "sst: write footer")
	}
	return nil
}

// readFooter seeks to the trailing footerSize(maxKeySize) bytes of f and
// decodes it, returning errCorruptFooter if the crc sentinel doesn't match.
func readFooter(f *os.File, maxKeySize int) (footer, error) {
	size := footerSize(maxKeySize)
	if _, err := f.Seek(-int64(size), io.SeekEnd); err != nil {
		return footer{}, errors.Wrap(err, "sst: seek footer")
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return footer{}, errors.Wrap(err, "sst: read footer")
	}

	var ft footer
	ft.lastKey = trimTrailingZeros(buf[:maxKeySize])

	off := maxKeySize
	ft.count = uint32From(buf[off:])
	off += 4
	ft.crc = uint32From(buf[off:])
	off += 4
	ft.blockAreaSize = uint32From(buf[off:])
	off += 4
	ft.maxKeyLen = uint32From(buf[off:])
	off += 4
	ft.maxLCP = uint32From(buf[off:])
	off += 4
	ft.offsetDelta = uint64From(buf[off:])

	if ft.crc != crcSentinel {
		return footer{}, errCorruptFooter
	}
	return ft, nil
}
