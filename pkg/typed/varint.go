package typed

import (
	"encoding/binary"
	"math"

	"cowtree/internal/varint"
)

// VarintBytesSize reports the on-wire size of a value written by
// MarshalVarintBytes: a varint length prefix followed by that many
// payload bytes. The default SizeFunc for any variable-length K or V
// marshaled through MarshalVarintBytes/UnmarshalVarintBytes.
func VarintBytesSize(buf []byte) uint32 {
	length, consumed := varint.Get(buf)
	return uint32(consumed) + uint32(length)
}

// MarshalVarintBytes prepends a varint length prefix to b, making the
// result self-describing on the wire the way spec.md §4.1 requires.
func MarshalVarintBytes(b []byte) []byte {
	prefix := make([]byte, varint.MaxLen)
	n := varint.Put(prefix, uint64(len(b)))
	out := make([]byte, n+len(b))
	copy(out, prefix[:n])
	copy(out[n:], b)
	return out
}

// UnmarshalVarintBytes strips the length prefix MarshalVarintBytes
// added and returns the payload.
func UnmarshalVarintBytes(buf []byte) []byte {
	length, consumed := varint.Get(buf)
	return buf[consumed : consumed+int(length)]
}

// MarshalVarintString/UnmarshalVarintString are the string-typed
// counterparts, for the common case of a string-keyed or string-valued
// tree.
func MarshalVarintString(s string) []byte {
	return MarshalVarintBytes([]byte(s))
}

func UnmarshalVarintString(buf []byte) string {
	return string(UnmarshalVarintBytes(buf))
}

// Fixed8Size/MarshalUint64/UnmarshalUint64 give callers a ready-made
// fixed-width 8-byte big-endian codec for uint64 keys/values — no
// length prefix needed since the width never varies, matching
// spec.md §4.1's "fixed or self-describing" size contract.
func Fixed8Size(buf []byte) uint32 { return 8 }

func MarshalUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func UnmarshalUint64(buf []byte) uint64 {
	return binary.BigEndian.Uint64(buf)
}

// MarshalFloat64/UnmarshalFloat64 round out the fixed-width family for
// float-valued trees (e.g. a score/weight column).
func MarshalFloat64(v float64) []byte {
	return MarshalUint64(math.Float64bits(v))
}

func UnmarshalFloat64(buf []byte) float64 {
	return math.Float64frombits(UnmarshalUint64(buf))
}
