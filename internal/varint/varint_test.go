package varint

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40, ^uint64(0)}
	buf := make([]byte, MaxLen)
	for _, v := range cases {
		n := Put(buf, v)
		if n != Len(v) {
			t.Fatalf("Put wrote %d bytes, Len says %d for v=%d", n, Len(v), v)
		}
		got, m := Get(buf[:n])
		if m != n {
			t.Fatalf("Get consumed %d bytes, want %d for v=%d", m, n, v)
		}
		if got != v {
			t.Fatalf("round trip: got %d, want %d", got, v)
		}
	}
}

func TestGetEmptyBuffer(t *testing.T) {
	v, n := Get(nil)
	if v != 0 || n != 0 {
		t.Fatalf("Get(nil) = (%d, %d), want (0, 0)", v, n)
	}
}
