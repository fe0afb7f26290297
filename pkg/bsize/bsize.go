// Package bsize implements the size accountant: it decides whether a
// node's wire size exceeds the block store's ceiling and, if so, where
// to split it. The arithmetic mirrors libbruce's NodeSize family
// (original_source/src/libbruce/src/serializing.cpp) rather than going
// through the codec, since the accountant runs on every mutation and
// serializing just to measure would be wasteful.
package bsize

import "bytes"

// wireHeaderAndTail is the fixed-size portion common to leaf and
// overflow nodes: 1-byte flags + 2-byte keycount header, plus the
// 4-byte itemcount + 8-byte nodeid overflow/next-chain pointer that
// every leaf and overflow node carries whether or not it points
// anywhere.
const wireHeaderAndTail = 1 + 2 + 4 + 8

// ceilDiv2 returns ceil(n / 2.0) for non-negative n, matching the
// std::ceil(x / 2.0) calls in the original size accountant.
func ceilDiv2(n uint32) uint32 {
	return (n + 1) / 2
}

func pairBytes(key, value []byte) uint32 {
	return uint32(len(key) + len(value))
}

// sameKey reports whether a and b are byte-identical.
func sameKey(a, b []byte) bool {
	return bytes.Equal(a, b)
}
