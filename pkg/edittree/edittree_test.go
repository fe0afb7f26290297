package edittree

import (
	"encoding/binary"
	"testing"

	"cowtree/pkg/bcodec"
	"cowtree/pkg/bnode"
	"cowtree/pkg/store"
	"cowtree/pkg/store/memstore"
)

// u32 matches spec.md's end-to-end scenarios: fixed 4-byte little-endian
// keys and values with an arithmetic comparator.
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

func newTestTree(t *testing.T, maxBlockSize uint32) (*Tree, store.Store) {
	t.Helper()
	st := memstore.New(maxBlockSize)
	fns := Funcs{KeyCompare: arithmeticCompare, KeySize: fixed4, ValueSize: fixed4}
	tr, err := Open(st, bnode.NoID, fns, Config{KeyCompare: arithmeticCompare})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tr, st
}

// S1 - single leaf persistence.
func TestS1SingleLeafPersistence(t *testing.T) {
	tr, st := newTestTree(t, 1024)
	mustInsert(t, tr, 1, 1)
	mustInsert(t, tr, 2, 2)

	report, err := tr.Flush()
	if err != nil || !report.Success {
		t.Fatalf("flush failed: %v %+v", err, report)
	}
	if len(report.CreatedIDs) != 1 {
		t.Fatalf("expected 1 created id, got %d", len(report.CreatedIDs))
	}

	node := mustLoad(t, st, report.NewRootID)
	if node.Kind != bnode.KindLeaf {
		t.Fatalf("expected leaf root, got %s", node.Kind)
	}
	if node.Leaf.PairCount() != 2 {
		t.Fatalf("expected pairCount=2, got %d", node.Leaf.PairCount())
	}
}

// S2 - split on growth.
func TestS2SplitOnGrowth(t *testing.T) {
	tr, st := newTestTree(t, 1024)
	for i := uint32(0); i < 140; i++ {
		mustInsert(t, tr, i, i)
	}
	report, err := tr.Flush()
	if err != nil || !report.Success {
		t.Fatalf("flush failed: %v %+v", err, report)
	}

	root := mustLoad(t, st, report.NewRootID)
	if root.Kind != bnode.KindInternal {
		t.Fatalf("expected internal root, got %s", root.Kind)
	}
	if root.Internal.BranchCount() != 2 {
		t.Fatalf("expected branchCount=2, got %d", root.Internal.BranchCount())
	}
	if root.ItemCount() != 140 {
		t.Fatalf("expected itemCount=140, got %d", root.ItemCount())
	}

	left := mustLoad(t, st, root.Internal.Branches[0].ChildID)
	right := mustLoad(t, st, root.Internal.Branches[1].ChildID)
	separator := root.Internal.Branches[1].MinKey
	for _, p := range left.Leaf.Pairs {
		if arithmeticCompare(p.Key, separator) >= 0 {
			t.Fatalf("left leaf key %v >= separator %v", p.Key, separator)
		}
	}
	for _, p := range right.Leaf.Pairs {
		if arithmeticCompare(p.Key, separator) < 0 {
			t.Fatalf("right leaf key %v < separator %v", p.Key, separator)
		}
	}
	if left.Leaf.ItemCount()+right.Leaf.ItemCount() != 140 {
		t.Fatalf("leaf item counts don't sum to 140")
	}
}

// S3 - overflow chain: 300 values under one key never split across leaves.
func TestS3OverflowChain(t *testing.T) {
	tr, st := newTestTree(t, 1024)
	for i := uint32(0); i < 300; i++ {
		mustInsert(t, tr, 0, i)
	}
	report, err := tr.Flush()
	if err != nil || !report.Success {
		t.Fatalf("flush failed: %v %+v", err, report)
	}
	if len(report.CreatedIDs) < 3 {
		t.Fatalf("expected >=3 pages, got %d", len(report.CreatedIDs))
	}

	root := mustLoad(t, st, report.NewRootID)
	if root.Kind != bnode.KindLeaf {
		t.Fatalf("expected a single leaf root, got %s", root.Kind)
	}

	count := 0
	expect := uint32(0)
	checkValue := func(v []byte) {
		if got := binary.LittleEndian.Uint32(v); got != expect {
			t.Fatalf("value out of insertion order at position %d: got %d, want %d", count, got, expect)
		}
		expect++
		count++
	}
	for _, p := range root.Leaf.Pairs {
		checkValue(p.Value)
	}
	ov := root.Leaf.Overflow
	for ov.ID != bnode.NoID {
		node := mustLoad(t, st, ov.ID)
		for _, v := range node.Overflow.Values {
			checkValue(v)
		}
		ov = node.Overflow.Next
	}
	if count != 300 {
		t.Fatalf("expected 300 total values, got %d", count)
	}
}

// S4 - empty branch compaction on remove (no sibling merge). The
// two-leaf root {(1,1)} | {(2,2)} is written to the store directly: with
// 4-byte keys and values a two-branch internal node serializes to 33
// bytes, more than a two-pair leaf (31 bytes), so no block size both
// splits that leaf on insert and still fits the resulting root.
func TestS4EmptyBranchCompactionOnRemove(t *testing.T) {
	st := memstore.New(1024)
	ids, err := st.AllocateIDs(3)
	if err != nil {
		t.Fatalf("AllocateIDs: %v", err)
	}
	leaf1 := bnode.NewLeaf(&bnode.Leaf{Pairs: []bnode.Pair{{Key: u32(1), Value: u32(1)}}})
	leaf2 := bnode.NewLeaf(&bnode.Leaf{Pairs: []bnode.Pair{{Key: u32(2), Value: u32(2)}}})
	base := bnode.NewInternal(&bnode.Internal{Branches: []bnode.Branch{
		{ChildID: ids[1], ItemCount: 1},
		{MinKey: u32(2), ChildID: ids[2], ItemCount: 1},
	}})
	if err := st.PutAll([]store.Block{
		{ID: ids[0], Bytes: bcodec.Serialize(base)},
		{ID: ids[1], Bytes: bcodec.Serialize(leaf1)},
		{ID: ids[2], Bytes: bcodec.Serialize(leaf2)},
	}); err != nil {
		t.Fatalf("base PutAll: %v", err)
	}
	baseRootID := ids[0]
	baseRoot := mustLoad(t, st, baseRootID)
	if baseRoot.Kind != bnode.KindInternal || baseRoot.Internal.BranchCount() != 2 {
		t.Fatalf("expected a 2-branch internal root to start from, got %+v", baseRoot)
	}

	fns := Funcs{KeyCompare: arithmeticCompare, KeySize: fixed4, ValueSize: fixed4}
	tr2, err := Open(st, baseRootID, fns, Config{KeyCompare: arithmeticCompare})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := tr2.Remove(u32(1)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	report, err := tr2.Flush()
	if err != nil || !report.Success {
		t.Fatalf("flush failed: %v %+v", err, report)
	}

	root := mustLoad(t, st, report.NewRootID)
	if root.Kind != bnode.KindInternal {
		t.Fatalf("expected root to remain internal (no single-branch collapse), got %s", root.Kind)
	}
	if root.Internal.BranchCount() != 1 {
		t.Fatalf("expected the empty branch pruned down to 1, got %d", root.Internal.BranchCount())
	}
	if root.ItemCount() != 1 {
		t.Fatalf("expected itemCount=1, got %d", root.ItemCount())
	}
	if len(report.ObsoleteIDs) != 2 {
		t.Fatalf("expected 2 obsolete ids, got %d", len(report.ObsoleteIDs))
	}
	if len(report.CreatedIDs) < 1 {
		t.Fatalf("expected at least 1 created id")
	}
}

// S5 - upsert update vs insert: two mutators over the same starting root
// produce independent results (copy-on-write isolation).
func TestS5UpsertUpdateVsInsert(t *testing.T) {
	base, st := newTestTree(t, 1024)
	mustInsert(t, base, 1, 1)
	mustInsert(t, base, 3, 3)
	baseReport, err := base.Flush()
	if err != nil || !baseReport.Success {
		t.Fatalf("base flush failed: %v", err)
	}

	fns := Funcs{KeyCompare: arithmeticCompare, KeySize: fixed4, ValueSize: fixed4}

	branchA, err := Open(st, baseReport.NewRootID, fns, Config{KeyCompare: arithmeticCompare})
	if err != nil {
		t.Fatalf("Open branchA: %v", err)
	}
	if err := branchA.Upsert(u32(1), u32(2)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	reportA, err := branchA.Flush()
	if err != nil || !reportA.Success {
		t.Fatalf("flush A failed: %v", err)
	}
	rootA := mustLoad(t, st, reportA.NewRootID)
	if got := findValue(t, rootA, u32(1)); binary.LittleEndian.Uint32(got) != 2 {
		t.Fatalf("expected find(1)==2, got %v", got)
	}

	branchB, err := Open(st, baseReport.NewRootID, fns, Config{KeyCompare: arithmeticCompare})
	if err != nil {
		t.Fatalf("Open branchB: %v", err)
	}
	if err := branchB.Upsert(u32(2), u32(2)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	reportB, err := branchB.Flush()
	if err != nil || !reportB.Success {
		t.Fatalf("flush B failed: %v", err)
	}
	rootB := mustLoad(t, st, reportB.NewRootID)
	if got := findValue(t, rootB, u32(1)); binary.LittleEndian.Uint32(got) != 1 {
		t.Fatalf("expected original root's key 1 untouched via branch B, got %v", got)
	}
}

// S6 - overflow remove nonexistent: removing a value never inserted
// leaves the chain's item count unchanged.
func TestS6OverflowRemoveNonexistent(t *testing.T) {
	tr, st := newTestTree(t, 1024)
	for i := uint32(0); i < 128; i++ {
		mustInsert(t, tr, 2, i)
	}
	if err := tr.RemoveValue(u32(2), u32(130)); err != nil {
		t.Fatalf("RemoveValue: %v", err)
	}
	report, err := tr.Flush()
	if err != nil || !report.Success {
		t.Fatalf("flush failed: %v", err)
	}
	root := mustLoad(t, st, report.NewRootID)
	if root.ItemCount() != 128 {
		t.Fatalf("expected itemCount=128, got %d", root.ItemCount())
	}
}

func TestIdempotentReflush(t *testing.T) {
	tr, _ := newTestTree(t, 1024)
	report, err := tr.Flush()
	if err != nil || !report.Success {
		t.Fatalf("flush failed: %v", err)
	}
	if report.NewRootID != bnode.NoID {
		t.Fatalf("expected NoID root for never-mutated tree, got %d", report.NewRootID)
	}
	if len(report.CreatedIDs) != 0 || len(report.ObsoleteIDs) != 0 {
		t.Fatalf("expected empty created/obsolete sets, got %+v", report)
	}
}

func TestFrozenAfterFlushRejectsMutation(t *testing.T) {
	tr, _ := newTestTree(t, 1024)
	mustInsert(t, tr, 1, 1)
	if _, err := tr.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if err := tr.Insert(u32(2), u32(2)); err != ErrFrozen {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
}

func mustInsert(t *testing.T, tr *Tree, key, value uint32) {
	t.Helper()
	if err := tr.Insert(u32(key), u32(value)); err != nil {
		t.Fatalf("Insert(%d,%d): %v", key, value, err)
	}
}

func mustLoad(t *testing.T, st store.Store, id bnode.NodeId) *bnode.Node {
	t.Helper()
	tr := &Tree{fns: Funcs{KeySize: fixed4, ValueSize: fixed4}, st: st}
	node, err := tr.load(id)
	if err != nil {
		t.Fatalf("load(%d): %v", id, err)
	}
	return node
}

func findValue(t *testing.T, root *bnode.Node, key []byte) []byte {
	t.Helper()
	if root.Kind != bnode.KindLeaf {
		t.Fatalf("findValue only supports a single leaf fixture in this test helper")
	}
	for _, p := range root.Leaf.Pairs {
		if arithmeticCompare(p.Key, key) == 0 {
			return p.Value
		}
	}
	t.Fatalf("key not found")
	return nil
}
