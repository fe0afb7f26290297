// Package querytree implements the read-only side of the tree: point
// get, positional find, rank-based seek, and forward iteration across
// leaf, overflow, and internal nodes. It never dirties a page — every
// traversal loads nodes straight from the block store. Get also
// consults the pending-edit queues of the internal nodes on its path
// logically, without writing anything back; Find, Seek, First and the
// Iterator read only what is stored in leaves and overflow chains.
//
// Grounded on the teacher's btree cursor
// (_examples/mjm918-tur/pkg/btree/cursor.go): a root-to-leaf stack of
// forks, each fork remembering which branch it is currently on, with
// Next descending into an overflow chain before popping back up to the
// next sibling branch. The teacher has no edit queue or overflow chain
// to thread through that walk; both are new here.
package querytree

import (
	"cowtree/pkg/bcodec"
	"cowtree/pkg/bnode"
	"cowtree/pkg/store"
)

// CompareFunc orders two raw keys, matching edittree.CompareFunc.
type CompareFunc func(a, b []byte) int

// Funcs bundles the comparator and size functions needed to load and
// walk nodes read from the store.
type Funcs struct {
	KeyCompare CompareFunc
	KeySize    bcodec.SizeFunc
	ValueSize  bcodec.SizeFunc
}

// Tree is a read-only handle on a root: either a flushed id read
// through the store, or a live in-memory node (liveRoot) handed to it
// directly by a mutator that hasn't flushed yet.
type Tree struct {
	st       store.Store
	fns      Funcs
	rootID   bnode.NodeId
	liveRoot *bnode.Node
}

// Open returns a Tree reading through st, rooted at rootID. rootID may
// be bnode.NoID, in which case the tree is empty.
func Open(st store.Store, rootID bnode.NodeId, fns Funcs) *Tree {
	return &Tree{st: st, fns: fns, rootID: rootID}
}

// OpenLive returns a Tree that reads root directly rather than loading
// it by id — for traversing a mutator's uncommitted, in-memory state
// (spec.md §4.7's "applying any pending edits along the way logically,
// without writing them back" applies just as well before a tree's
// first Flush as after). root may be nil for an empty tree.
func OpenLive(st store.Store, root *bnode.Node, fns Funcs) *Tree {
	return &Tree{st: st, fns: fns, liveRoot: root}
}

func (t *Tree) load(id bnode.NodeId) (*bnode.Node, error) {
	data, err := t.st.Get(id)
	if err != nil {
		return nil, err
	}
	return bcodec.Parse(data, bcodec.Funcs{KeySize: t.fns.KeySize, ValueSize: t.fns.ValueSize})
}

func (t *Tree) root() (*bnode.Node, error) {
	if t.liveRoot != nil {
		return t.liveRoot, nil
	}
	if t.rootID == bnode.NoID {
		return nil, nil
	}
	return t.load(t.rootID)
}

// Get traverses root to leaf, applying any pending edits queued along
// the path logically, and returns the value of the first matching
// pair for key, or ok=false if key is absent.
func (t *Tree) Get(key []byte) (value []byte, ok bool, err error) {
	node, err := t.root()
	if err != nil || node == nil {
		return nil, false, err
	}

	var queued []bnode.PendingEdit
	for node.Kind == bnode.KindInternal {
		idx := bnode.FindBranch(node.Internal.Branches, key, t.fns.KeyCompare)
		for _, e := range node.Internal.Edits {
			if t.fns.KeyCompare(e.Key, key) == 0 {
				queued = append(queued, e)
			}
		}
		child, loadErr := t.resolveBranch(&node.Internal.Branches[idx])
		if loadErr != nil {
			return nil, false, loadErr
		}
		node = child
	}

	values, err := t.leafValuesForKey(node, key)
	if err != nil {
		return nil, false, err
	}
	values = applyQueuedEdits(values, queued)
	if len(values) == 0 {
		return nil, false, nil
	}
	return values[0], true, nil
}

// leafValuesForKey returns every value directly stored in leaf for
// key, including the overflow chain when key is the leaf's terminal
// key (the only key an overflow chain can ever be attached to).
func (t *Tree) leafValuesForKey(leaf *bnode.Node, key []byte) ([][]byte, error) {
	cmp := t.fns.KeyCompare
	var values [][]byte
	for _, p := range leaf.Leaf.Pairs {
		if cmp(p.Key, key) == 0 {
			values = append(values, p.Value)
		}
	}
	if cmp(leaf.Leaf.TerminalKey(), key) == 0 {
		ov := leaf.Leaf.Overflow
		for ov.ID != bnode.NoID {
			node, err := t.load(ov.ID)
			if err != nil {
				return nil, err
			}
			values = append(values, node.Overflow.Values...)
			ov = node.Overflow.Next
		}
	}
	return values, nil
}

// applyQueuedEdits replays edits queued for this exact key on top of
// the leaf's already-committed values — a shallow, read-only view of
// what the tree would look like once those edits drain down.
func applyQueuedEdits(values [][]byte, edits []bnode.PendingEdit) [][]byte {
	for _, e := range edits {
		switch e.Kind {
		case bnode.EditInsert:
			values = append(values, e.Value)
		case bnode.EditUpsert:
			values = [][]byte{e.Value}
		case bnode.EditRemoveKey:
			values = nil
		case bnode.EditRemoveKV:
			for i, v := range values {
				if bytesEqual(v, e.Value) {
					values = append(values[:i], values[i+1:]...)
					break
				}
			}
		}
	}
	return values
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// First positions an iterator at the tree's smallest item. Equivalent
// to Seek(0) but avoids the rank arithmetic.
func (t *Tree) First() (*Iterator, error) {
	root, err := t.root()
	if err != nil {
		return nil, err
	}
	it := &Iterator{t: t}
	if root == nil || root.ItemCount() == 0 {
		return it, nil
	}
	if err := it.descendLeftmost(root); err != nil {
		return nil, err
	}
	return it, nil
}

func (t *Tree) resolveBranch(b *bnode.Branch) (*bnode.Node, error) {
	if b.Child != nil {
		return b.Child, nil
	}
	return t.load(b.ChildID)
}
