package edittree

import (
	"cowtree/pkg/bnode"
	"cowtree/pkg/bsize"
)

func (t *Tree) applyToInternal(node *bnode.Node, edit bnode.PendingEdit) (*bnode.Node, *splitResult, error) {
	clone := node.Clone().Internal
	t.stats.CloneCount++

	idx := bnode.FindBranch(clone.Branches, edit.Key, t.cfg.KeyCompare)
	clone.Edits = append(clone.Edits, edit)
	adjustItemCountOptimistically(&clone.Branches[idx], edit.Kind)

	maxBlockSize := t.st.MaxBlockSize()
	plan := bsize.PlanInternalSplit(clone.Branches, clone.Edits, maxBlockSize, t.cfg.MaxEditQueueSize)

	if plan.ShouldApplyEditQueue || t.cfg.MaxEditQueueSize == 0 {
		if err := t.drainEditQueue(clone); err != nil {
			return nil, nil, err
		}
		t.stats.QueueDrains++
		plan = bsize.PlanInternalSplit(clone.Branches, clone.Edits, maxBlockSize, t.cfg.MaxEditQueueSize)
	}

	if plan.Split {
		left, right := splitInternalNode(clone, plan.SplitIndex, t.cfg.KeyCompare)
		t.stats.SplitCount++
		rightNode := bnode.NewInternal(&right.Internal)
		return bnode.NewInternal(left), &splitResult{node: rightNode, minKey: right.MinKeyBeforeSplit}, nil
	}

	return bnode.NewInternal(clone), nil, nil
}

// drainEditQueue routes every queued edit to its target child, applying
// it there (recursively draining/splitting as needed), then clears the
// queue. Item counts become exact again once this returns.
func (t *Tree) drainEditQueue(internal *bnode.Internal) error {
	pending := internal.Edits
	internal.Edits = nil

	for _, e := range pending {
		idx := bnode.FindBranch(internal.Branches, e.Key, t.cfg.KeyCompare)
		branch := &internal.Branches[idx]
		child, originID, err := t.resolveChild(branch)
		if err != nil {
			return err
		}
		newChild, split, err := t.applyToNode(child, originID, e)
		if err != nil {
			return err
		}
		branch.Child = newChild
		branch.ChildID = bnode.NoID
		branch.ItemCount = newChild.ItemCount()

		if pruneEmptyLeafBranch(internal, idx) {
			continue
		}
		if split != nil {
			insertBranch(internal, idx, bnode.Branch{MinKey: split.minKey, Child: split.node, ItemCount: split.node.ItemCount()})
		}
	}
	return nil
}

// drainAll recursively drains every internal node's pending-edit queue
// in the dirty subgraph rooted at node, splitting or pruning as needed,
// so that by the time Flush serializes the tree every item count is
// exact and no edit queue survives onto disk half-applied.
func (t *Tree) drainAll(node *bnode.Node) (*bnode.Node, *splitResult, error) {
	if node.Kind != bnode.KindInternal {
		return node, nil, nil
	}
	internal := node.Internal

	i := 0
	for i < len(internal.Branches) {
		b := &internal.Branches[i]
		if b.Child == nil {
			i++
			continue
		}
		newChild, split, err := t.drainAll(b.Child)
		if err != nil {
			return nil, nil, err
		}
		b.Child = newChild
		b.ChildID = bnode.NoID
		b.ItemCount = newChild.ItemCount()

		if pruneEmptyLeafBranch(internal, i) {
			continue
		}
		if split != nil {
			insertBranch(internal, i, bnode.Branch{MinKey: split.minKey, Child: split.node, ItemCount: split.node.ItemCount()})
			i += 2
			continue
		}
		i++
	}

	if len(internal.Edits) > 0 {
		if err := t.drainEditQueue(internal); err != nil {
			return nil, nil, err
		}
		t.stats.QueueDrains++
	}

	plan := bsize.PlanInternalSplit(internal.Branches, internal.Edits, t.st.MaxBlockSize(), t.cfg.MaxEditQueueSize)
	if plan.Split {
		left, right := splitInternalNode(internal, plan.SplitIndex, t.cfg.KeyCompare)
		t.stats.SplitCount++
		rightNode := bnode.NewInternal(&right.Internal)
		return bnode.NewInternal(left), &splitResult{node: rightNode, minKey: right.MinKeyBeforeSplit}, nil
	}
	return node, nil, nil
}

// pruneEmptyLeafBranch removes branch idx when its child is a leaf left
// with no direct pairs and no overflow chain — spec.md's "no sibling
// merge" design still drops a branch whose subtree is fully empty,
// it just never redistributes a neighbor's content to fill the gap.
func pruneEmptyLeafBranch(internal *bnode.Internal, idx int) bool {
	b := internal.Branches[idx]
	if b.Child == nil || b.Child.Kind != bnode.KindLeaf {
		return false
	}
	if b.Child.Leaf.PairCount() != 0 || !b.Child.Leaf.Overflow.Empty() {
		return false
	}
	if len(internal.Branches) <= 1 {
		return false
	}
	internal.Branches = append(internal.Branches[:idx], internal.Branches[idx+1:]...)
	if idx == 0 {
		internal.Branches[0].MinKey = nil
	}
	return true
}

// insertBranch inserts b immediately after index idx.
func insertBranch(internal *bnode.Internal, idx int, b bnode.Branch) {
	internal.Branches = append(internal.Branches, bnode.Branch{})
	copy(internal.Branches[idx+2:], internal.Branches[idx+1:])
	internal.Branches[idx+1] = b
}

func adjustItemCountOptimistically(b *bnode.Branch, kind bnode.EditKind) {
	switch kind {
	case bnode.EditInsert:
		b.ItemCount++
	case bnode.EditRemoveKV:
		if b.ItemCount > 0 {
			b.ItemCount--
		}
	case bnode.EditUpsert, bnode.EditRemoveKey:
		// Net effect unknown until the edit reaches its leaf; left as
		// an approximation that drainEditQueue corrects.
	}
}

func splitInternalNode(internal *bnode.Internal, splitIndex int, cmp CompareFunc) (*bnode.Internal, *splitRight) {
	splitKey := internal.Branches[splitIndex].MinKey

	left := append([]bnode.Branch(nil), internal.Branches[:splitIndex]...)
	rightBranches := append([]bnode.Branch(nil), internal.Branches[splitIndex:]...)
	rightBranches[0].MinKey = nil

	var leftEdits, rightEdits []bnode.PendingEdit
	for _, e := range internal.Edits {
		if cmp(e.Key, splitKey) < 0 {
			leftEdits = append(leftEdits, e)
		} else {
			rightEdits = append(rightEdits, e)
		}
	}

	return &bnode.Internal{Branches: left, Edits: leftEdits},
		&splitRight{Internal: bnode.Internal{Branches: rightBranches, Edits: rightEdits}, MinKeyBeforeSplit: splitKey}
}

// splitRight bundles the right half of an internal split with the
// promoted key its zeroed branch-0 minKey used to hold.
type splitRight struct {
	bnode.Internal
	MinKeyBeforeSplit []byte
}
