package edittree

import (
	"cowtree/pkg/blog"
	"cowtree/pkg/bnode"
)

// Insert adds (key, value), keeping any existing values already stored
// under key — a tree is a multimap, matching spec.md's model.
func (t *Tree) Insert(key, value []byte) error {
	return t.mutate(bnode.PendingEdit{Kind: bnode.EditInsert, Key: key, Value: value})
}

// Upsert replaces every existing value under key with the single given
// value.
func (t *Tree) Upsert(key, value []byte) error {
	return t.mutate(bnode.PendingEdit{Kind: bnode.EditUpsert, Key: key, Value: value})
}

// Remove deletes every value stored under key. A no-op if key is absent.
func (t *Tree) Remove(key []byte) error {
	return t.mutate(bnode.PendingEdit{Kind: bnode.EditRemoveKey, Key: key})
}

// RemoveValue deletes the first (key, value) pair found for key, leaving
// any other values under the same key untouched — resolving the Open
// Question of which match wins by taking the first one encountered
// scanning the leaf's direct pairs, then its overflow chain in order.
func (t *Tree) RemoveValue(key, value []byte) error {
	return t.mutate(bnode.PendingEdit{Kind: bnode.EditRemoveKV, Key: key, Value: value})
}

// splitResult describes the right-hand sibling produced when a node
// outgrows its budget and must split; the left half is returned in
// place of the original node.
type splitResult struct {
	node   *bnode.Node
	minKey []byte
}

func (t *Tree) mutate(edit bnode.PendingEdit) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	if len(edit.Key) == 0 {
		return ErrKeyRequired
	}
	if edit.Kind.HasValue() && len(edit.Value) == 0 {
		return ErrValueRequired
	}

	if t.root == nil {
		if edit.Kind == bnode.EditRemoveKey || edit.Kind == bnode.EditRemoveKV {
			return nil // removing from an empty tree is a no-op
		}
		t.root = bnode.NewLeaf(&bnode.Leaf{Pairs: []bnode.Pair{{Key: edit.Key, Value: edit.Value}}})
		t.clean = false
		return nil
	}

	origin := bnode.NoID
	if t.clean {
		origin = t.rootID
	}
	newRoot, split, err := t.applyToNode(t.root, origin, edit)
	if err != nil {
		return err
	}
	if split != nil {
		newRoot = bnode.NewInternal(&bnode.Internal{Branches: []bnode.Branch{
			{MinKey: nil, Child: newRoot, ItemCount: newRoot.ItemCount()},
			{MinKey: split.minKey, Child: split.node, ItemCount: split.node.ItemCount()},
		}})
		t.stats.SplitCount++
		t.log.V(blog.V1).Info("root split", "newBranchCount", 2)
	}
	t.root = newRoot
	t.clean = false
	return nil
}

// applyToNode dirties node (recording its prior on-disk id, if any, as
// obsolete) and dispatches the edit to the matching per-kind handler.
func (t *Tree) applyToNode(node *bnode.Node, originID bnode.NodeId, edit bnode.PendingEdit) (*bnode.Node, *splitResult, error) {
	t.markObsolete(originID)
	switch node.Kind {
	case bnode.KindLeaf:
		return t.applyToLeaf(node, edit)
	case bnode.KindInternal:
		return t.applyToInternal(node, edit)
	default:
		return nil, nil, invariantViolation("cannot apply an edit to a %s node", node.Kind)
	}
}

func (t *Tree) resolveChild(b *bnode.Branch) (*bnode.Node, bnode.NodeId, error) {
	if b.Child != nil {
		return b.Child, bnode.NoID, nil
	}
	node, err := t.load(b.ChildID)
	if err != nil {
		return nil, bnode.NoID, err
	}
	return node, b.ChildID, nil
}

func (t *Tree) resolveOverflow(ov bnode.Overflow) (*bnode.Node, bnode.NodeId, error) {
	if ov.Node != nil {
		return ov.Node, bnode.NoID, nil
	}
	if ov.ID == bnode.NoID {
		return nil, bnode.NoID, invariantViolation("resolveOverflow called on an empty overflow pointer")
	}
	node, err := t.load(ov.ID)
	if err != nil {
		return nil, bnode.NoID, err
	}
	return node, ov.ID, nil
}
