package querytree

import (
	"encoding/binary"
	"testing"

	"cowtree/pkg/bnode"
	"cowtree/pkg/edittree"
	"cowtree/pkg/store"
	"cowtree/pkg/store/memstore"
)

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func fixed4(buf []byte) uint32 { return 4 }

func arithmeticCompare(a, b []byte) int {
	av := binary.LittleEndian.Uint32(a)
	bv := binary.LittleEndian.Uint32(b)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

func buildTree(t *testing.T, st store.Store, keys []uint32) bnode.NodeId {
	t.Helper()
	fns := edittree.Funcs{KeyCompare: arithmeticCompare, KeySize: fixed4, ValueSize: fixed4}
	tr, err := edittree.Open(st, bnode.NoID, fns, edittree.Config{KeyCompare: arithmeticCompare})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, k := range keys {
		if err := tr.Insert(u32(k), u32(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	report, err := tr.Flush()
	if err != nil || !report.Success {
		t.Fatalf("Flush: %v %+v", err, report)
	}
	return report.NewRootID
}

func newQueryFuncs() Funcs {
	return Funcs{KeyCompare: arithmeticCompare, KeySize: fixed4, ValueSize: fixed4}
}

// S5 - upsert update vs insert, exercised through the query surface:
// find(1).value, find(3).rank, seek(1).key.
func TestS5FindRankSeek(t *testing.T) {
	st := memstore.New(1024)
	rootID := buildTree(t, st, []uint32{1, 3})

	fns := edittree.Funcs{KeyCompare: arithmeticCompare, KeySize: fixed4, ValueSize: fixed4}
	branchA, err := edittree.Open(st, rootID, fns, edittree.Config{KeyCompare: arithmeticCompare})
	if err != nil {
		t.Fatalf("Open branchA: %v", err)
	}
	if err := branchA.Upsert(u32(1), u32(2)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	reportA, err := branchA.Flush()
	if err != nil || !reportA.Success {
		t.Fatalf("flush A: %v", err)
	}

	qt := Open(st, reportA.NewRootID, newQueryFuncs())

	value, ok, err := qt.Get(u32(1))
	if err != nil || !ok {
		t.Fatalf("Get(1): ok=%v err=%v", ok, err)
	}
	if binary.LittleEndian.Uint32(value) != 2 {
		t.Fatalf("expected find(1).value==2, got %d", binary.LittleEndian.Uint32(value))
	}

	it, err := qt.Find(u32(3))
	if err != nil {
		t.Fatalf("Find(3): %v", err)
	}
	if !it.Valid() {
		t.Fatalf("expected Find(3) to be valid")
	}
	if it.Rank() != 1 {
		t.Fatalf("expected find(3).rank==1, got %d", it.Rank())
	}

	seekIt, err := qt.Seek(1)
	if err != nil {
		t.Fatalf("Seek(1): %v", err)
	}
	if !seekIt.Valid() || binary.LittleEndian.Uint32(seekIt.Key()) != 3 {
		t.Fatalf("expected seek(1).key==3, got valid=%v key=%v", seekIt.Valid(), seekIt.Key())
	}
}

// Rank/seek consistency (spec.md invariant 6): for every rank r in
// [0, N), seek(r).rank() == r and seek(r).key() equals the r-th key in
// sorted order; walking forward from First() must agree.
func TestRankSeekConsistency(t *testing.T) {
	st := memstore.New(512)
	var keys []uint32
	for i := uint32(0); i < 80; i++ {
		keys = append(keys, i)
	}
	rootID := buildTree(t, st, keys)
	qt := Open(st, rootID, newQueryFuncs())

	it, err := qt.First()
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	for r := uint32(0); r < 80; r++ {
		if !it.Valid() {
			t.Fatalf("expected valid at rank %d", r)
		}
		if it.Rank() != r {
			t.Fatalf("expected rank %d, got %d", r, it.Rank())
		}
		if got := binary.LittleEndian.Uint32(it.Key()); got != r {
			t.Fatalf("expected key %d at rank %d, got %d", r, r, got)
		}

		seeked, err := qt.Seek(r)
		if err != nil {
			t.Fatalf("Seek(%d): %v", r, err)
		}
		if !seeked.Valid() || seeked.Rank() != r {
			t.Fatalf("seek(%d).rank() != %d", r, r)
		}
		if binary.LittleEndian.Uint32(seeked.Key()) != r {
			t.Fatalf("seek(%d).key() != %d", r, r)
		}

		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if it.Valid() {
		t.Fatalf("expected iterator exhausted after 80 items")
	}
}

// Overflow chain iteration: every value under one key is visited in
// insertion order via Next, including across overflow node boundaries.
// A block size of 64 forces a 60-value run under one key across several
// overflow nodes (each holds 4-byte values; wireHeaderAndTail alone is
// 15 bytes, so a single node can't come close to holding all 60).
func TestIterateOverflowChain(t *testing.T) {
	st := memstore.New(64)
	fns := edittree.Funcs{KeyCompare: arithmeticCompare, KeySize: fixed4, ValueSize: fixed4}
	tr, err := edittree.Open(st, bnode.NoID, fns, edittree.Config{KeyCompare: arithmeticCompare})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := uint32(0); i < 60; i++ {
		if err := tr.Insert(u32(0), u32(i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	report, err := tr.Flush()
	if err != nil || !report.Success {
		t.Fatalf("Flush: %v", err)
	}

	qt := Open(st, report.NewRootID, newQueryFuncs())
	it, err := qt.Find(u32(0))
	if err != nil {
		t.Fatalf("Find(0): %v", err)
	}
	count := 0
	for it.Valid() {
		if binary.LittleEndian.Uint32(it.Key()) != 0 {
			t.Fatalf("expected every item under key 0")
		}
		if got := binary.LittleEndian.Uint32(it.Value()); got != uint32(count) {
			t.Fatalf("value out of insertion order at position %d: got %d, want %d", count, got, count)
		}
		count++
		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if count != 60 {
		t.Fatalf("expected 60 values, got %d", count)
	}
}

// Skip falls back to a full seek once it would cross a node boundary.
func TestSkipCrossesBoundary(t *testing.T) {
	st := memstore.New(256)
	var keys []uint32
	for i := uint32(0); i < 50; i++ {
		keys = append(keys, i)
	}
	rootID := buildTree(t, st, keys)
	qt := Open(st, rootID, newQueryFuncs())

	it, err := qt.First()
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if err := it.Skip(30); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if !it.Valid() || it.Rank() != 30 {
		t.Fatalf("expected rank 30 after skip, got valid=%v rank=%d", it.Valid(), it.Rank())
	}
	if binary.LittleEndian.Uint32(it.Key()) != 30 {
		t.Fatalf("expected key 30, got %d", binary.LittleEndian.Uint32(it.Key()))
	}
}

func TestGetAbsentKey(t *testing.T) {
	st := memstore.New(1024)
	rootID := buildTree(t, st, []uint32{1, 3, 5})
	qt := Open(st, rootID, newQueryFuncs())

	_, ok, err := qt.Get(u32(4))
	if err != nil {
		t.Fatalf("Get(4): %v", err)
	}
	if ok {
		t.Fatalf("expected key 4 to be absent")
	}
}
