// Package blob implements an immutable byte-range primitive. A Slice
// either borrows bytes from a caller-owned buffer or owns a private
// copy; callers should not mutate the underlying array of a borrowed
// Slice. The rest of this module does not use it: keys, values and
// serialized pages are passed as plain []byte.
package blob

// Slice is an immutable view of bytes. The zero value is an empty slice.
type Slice []byte

// Borrow wraps b without copying. The caller must not mutate b afterwards.
func Borrow(b []byte) Slice {
	return Slice(b)
}

// Own returns a Slice backed by a private copy of b.
func Own(b []byte) Slice {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return Slice(out)
}

// Bytes returns the underlying bytes. Treat the result as read-only.
func (s Slice) Bytes() []byte {
	return []byte(s)
}

// Len returns the length in bytes.
func (s Slice) Len() int {
	return len(s)
}

// Clone returns an owned copy of s, detached from whatever it currently borrows.
func (s Slice) Clone() Slice {
	return Own(s)
}
