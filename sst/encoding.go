package sst

import "encoding/binary"

// On-disk integers are always big-endian (§4.1).

func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func uint32From(b []byte) uint32   { return binary.BigEndian.Uint32(b) }

func putUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func uint64From(b []byte) uint64   { return binary.BigEndian.Uint64(b) }

// commonPrefixLen returns the length of the shared leading bytes of a and b.
func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// trimTrailingZeros returns a copy of b with trailing zero bytes removed,
// undoing the zero-padding applied to fixed-width key fields.
func trimTrailingZeros(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	out := make([]byte, i)
	copy(out, b[:i])
	return out
}
