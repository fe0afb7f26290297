package edittree

import (
	"cowtree/pkg/bcodec"
	"cowtree/pkg/blog"
	"cowtree/pkg/bnode"
	"cowtree/pkg/mutation"
	"cowtree/pkg/store"
)

// Flush persists every node dirtied since the tree was opened (or since
// its last flush) in one batch: ids are allocated for the whole dirty
// set up front, then every node is serialized bottom-up so a parent
// always embeds its children's final ids, then the batch is written in
// a single PutAll. A tree with nothing dirtied returns its current root
// unchanged without touching the store at all. After a successful
// flush the tree is frozen: further Insert/Upsert/Remove/RemoveValue
// calls fail with ErrFrozen, matching the original mutable_tree's
// "frozen after flush" contract.
func (t *Tree) Flush() (mutation.Report, error) {
	if t.clean {
		t.frozen = true
		return mutation.OK(t.rootID, nil, nil), nil
	}

	drainedRoot, split, err := t.drainAll(t.root)
	if err != nil {
		return mutation.Failed(t.rootID, err), err
	}
	if split != nil {
		drainedRoot = bnode.NewInternal(&bnode.Internal{Branches: []bnode.Branch{
			{MinKey: nil, Child: drainedRoot, ItemCount: drainedRoot.ItemCount()},
			{MinKey: split.minKey, Child: split.node, ItemCount: split.node.ItemCount()},
		}})
		t.stats.SplitCount++
	}
	t.root = drainedRoot

	var dirty []*bnode.Node
	t.collectDirty(t.root, &dirty)
	if len(dirty) == 0 {
		t.clean = true
		t.frozen = true
		return mutation.OK(t.rootID, nil, nil), nil
	}

	ids, err := t.st.AllocateIDs(len(dirty))
	if err != nil {
		return mutation.Failed(t.rootID, err), err
	}
	idOf := make(map[*bnode.Node]bnode.NodeId, len(dirty))
	for i, n := range dirty {
		idOf[n] = ids[i]
	}

	var blocks []store.Block
	if err := t.finalize(t.root, idOf, &blocks); err != nil {
		return mutation.Failed(t.rootID, err), err
	}
	if err := t.st.PutAll(blocks); err != nil {
		return mutation.Failed(t.rootID, err), err
	}

	newRoot := idOf[t.root]
	obsolete := t.obsolete
	t.obsolete = nil
	t.rootID = newRoot
	t.clean = true
	t.frozen = true
	t.stats.FlushCount++

	t.log.V(blog.V1).Info("flush complete", "newRoot", newRoot, "created", len(ids), "obsolete", len(obsolete))
	return mutation.OK(newRoot, ids, obsolete), nil
}

// collectDirty appends node, then every still-in-memory (dirty)
// descendant reachable from it: branch children and overflow chain
// links that haven't themselves been flushed yet.
func (t *Tree) collectDirty(node *bnode.Node, out *[]*bnode.Node) {
	*out = append(*out, node)

	var tail bnode.Overflow
	switch node.Kind {
	case bnode.KindLeaf:
		tail = node.Leaf.Overflow
	case bnode.KindOverflow:
		tail = node.Overflow.Next
	case bnode.KindInternal:
		for i := range node.Internal.Branches {
			if node.Internal.Branches[i].Child != nil {
				t.collectDirty(node.Internal.Branches[i].Child, out)
			}
		}
		return
	}
	for tail.Node != nil {
		*out = append(*out, tail.Node)
		if tail.Node.Kind != bnode.KindOverflow {
			break
		}
		tail = tail.Node.Overflow.Next
	}
}

// finalize fixes up every dirty descendant's id references (bottom-up)
// before serializing node itself, appending the resulting block.
func (t *Tree) finalize(node *bnode.Node, idOf map[*bnode.Node]bnode.NodeId, blocks *[]store.Block) error {
	switch node.Kind {
	case bnode.KindLeaf:
		if err := t.finalizeOverflow(&node.Leaf.Overflow, idOf, blocks); err != nil {
			return err
		}
	case bnode.KindOverflow:
		if err := t.finalizeOverflow(&node.Overflow.Next, idOf, blocks); err != nil {
			return err
		}
	case bnode.KindInternal:
		for i := range node.Internal.Branches {
			b := &node.Internal.Branches[i]
			if b.Child == nil {
				continue
			}
			if err := t.finalize(b.Child, idOf, blocks); err != nil {
				return err
			}
			b.ChildID = idOf[b.Child]
			b.ItemCount = b.Child.ItemCount()
		}
	}

	id, ok := idOf[node]
	if !ok {
		return invariantViolation("flush: dirty %s node has no allocated id", node.Kind)
	}
	*blocks = append(*blocks, store.Block{ID: id, Bytes: bcodec.Serialize(node)})
	return nil
}

func (t *Tree) finalizeOverflow(ov *bnode.Overflow, idOf map[*bnode.Node]bnode.NodeId, blocks *[]store.Block) error {
	if ov.Node == nil {
		return nil
	}
	if err := t.finalize(ov.Node, idOf, blocks); err != nil {
		return err
	}
	ov.ID = idOf[ov.Node]
	return nil
}
