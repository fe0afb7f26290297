package edittree

import (
	"bytes"

	"cowtree/pkg/bnode"
	"cowtree/pkg/bsize"
)

func (t *Tree) applyToLeaf(node *bnode.Node, edit bnode.PendingEdit) (*bnode.Node, *splitResult, error) {
	clone := node.Clone().Leaf
	t.stats.CloneCount++
	cmp := t.cfg.KeyCompare
	origTerminal := node.Leaf.TerminalKey()
	sharesOverflowKey := len(origTerminal) > 0 && cmp(edit.Key, origTerminal) == 0

	switch edit.Kind {
	case bnode.EditInsert:
		if sharesOverflowKey && !clone.Overflow.Empty() {
			// This key already has a chain; a new duplicate must land
			// at its tail, not in Pairs, or it would sort ahead of
			// older chained values on iteration.
			newOverflow, err := t.appendOverflowChain(clone.Overflow, [][]byte{edit.Value})
			if err != nil {
				return nil, nil, err
			}
			clone.Overflow = newOverflow
		} else {
			clone.Pairs = insertSorted(clone.Pairs, edit.Key, edit.Value, cmp)
		}

	case bnode.EditUpsert:
		clone.Pairs = removeAllForKey(clone.Pairs, edit.Key, cmp)
		if sharesOverflowKey {
			clone.Overflow = bnode.Overflow{}
		}
		clone.Pairs = insertSorted(clone.Pairs, edit.Key, edit.Value, cmp)

	case bnode.EditRemoveKey:
		clone.Pairs = removeAllForKey(clone.Pairs, edit.Key, cmp)
		if sharesOverflowKey {
			clone.Overflow = bnode.Overflow{}
		}

	case bnode.EditRemoveKV:
		remaining, removed := removeFirstMatch(clone.Pairs, edit.Key, edit.Value, cmp)
		clone.Pairs = remaining
		if !removed && sharesOverflowKey && !clone.Overflow.Empty() {
			newOverflow, found, err := t.removeFirstFromOverflow(clone.Overflow, edit.Value)
			if err != nil {
				return nil, nil, err
			}
			if found {
				clone.Overflow = newOverflow
			}
		}

	default:
		return nil, nil, invariantViolation("unhandled leaf edit kind %s", edit.Kind)
	}

	maxBlockSize := t.st.MaxBlockSize()
	plan := bsize.PlanLeafSplit(clone.Pairs, maxBlockSize)

	if plan.Reseed {
		var err error
		clone.Overflow, err = t.appendOverflowChain(clone.Overflow, plan.OverflowSeed)
		if err != nil {
			return nil, nil, err
		}
		clone.Pairs = plan.Pairs
		return bnode.NewLeaf(clone), nil, nil
	}

	if plan.Split {
		rightOverflow := clone.Overflow
		leftOverflow, err := t.buildOverflowChain(plan.OverflowSeed)
		if err != nil {
			return nil, nil, err
		}
		left := &bnode.Leaf{Pairs: plan.Pairs, Overflow: leftOverflow}
		right := &bnode.Leaf{Pairs: plan.RightPairs, Overflow: rightOverflow}
		t.stats.SplitCount++
		rightNode := bnode.NewLeaf(right)
		return bnode.NewLeaf(left), &splitResult{node: rightNode, minKey: rightNode.MinKey()}, nil
	}

	return bnode.NewLeaf(clone), nil, nil
}

// buildOverflowChain builds a fresh forward chain from values, splitting
// across as many overflow nodes as maxBlockSize requires — mirroring
// bsize.PlanOverflowSplit's full-block piece size. The chain preserves
// values' order: values[0] is the first thing a reader sees walking the
// chain head to tail, so callers must pass values oldest-write-first.
func (t *Tree) buildOverflowChain(values [][]byte) (bnode.Overflow, error) {
	if len(values) == 0 {
		return bnode.Overflow{}, nil
	}
	plan := bsize.PlanOverflowSplit(values, t.st.MaxBlockSize())
	if !plan.Split {
		node := &bnode.OverflowNode{Values: values}
		return bnode.Overflow{Count: uint32(len(values)), Node: bnode.NewOverflow(node)}, nil
	}
	rest, err := t.buildOverflowChain(plan.Right)
	if err != nil {
		return bnode.Overflow{}, err
	}
	node := &bnode.OverflowNode{Values: plan.Left, Next: rest}
	return bnode.Overflow{Count: uint32(len(plan.Left)) + rest.Count, Node: bnode.NewOverflow(node)}, nil
}

// appendOverflowChain appends values (oldest-write-first) to the tail of
// head, copy-on-write cloning every node from head down to the one it
// extends. Anything already in head was written before values, so it
// stays ahead of them on iteration — the opposite of prepending a fresh
// chain in front of head, which would show the newest writes first.
func (t *Tree) appendOverflowChain(head bnode.Overflow, values [][]byte) (bnode.Overflow, error) {
	if len(values) == 0 {
		return head, nil
	}
	if head.Empty() {
		return t.buildOverflowChain(values)
	}
	node, originID, err := t.resolveOverflow(head)
	if err != nil {
		return head, err
	}
	clone := node.Clone().Overflow
	t.stats.CloneCount++
	t.markObsolete(originID)

	newCount := head.Count + uint32(len(values))

	if !clone.Next.Empty() {
		nextOv, err := t.appendOverflowChain(clone.Next, values)
		if err != nil {
			return head, err
		}
		clone.Next = nextOv
		return bnode.Overflow{Count: newCount, Node: bnode.NewOverflow(clone)}, nil
	}

	merged := append(append([][]byte(nil), clone.Values...), values...)
	tailChain, err := t.buildOverflowChain(merged)
	if err != nil {
		return head, err
	}
	return bnode.Overflow{Count: newCount, Node: tailChain.Node}, nil
}

// removeFirstFromOverflow walks the chain looking for the first value
// equal to target, copy-on-write cloning every node from the head down
// to (and including) the one it removes from.
func (t *Tree) removeFirstFromOverflow(ov bnode.Overflow, target []byte) (bnode.Overflow, bool, error) {
	if ov.Empty() {
		return ov, false, nil
	}
	node, originID, err := t.resolveOverflow(ov)
	if err != nil {
		return ov, false, err
	}
	clone := node.Clone().Overflow
	t.stats.CloneCount++

	for i, v := range clone.Values {
		if bytes.Equal(v, target) {
			t.markObsolete(originID)
			clone.Values = append(clone.Values[:i:i], clone.Values[i+1:]...)
			return bnode.Overflow{Count: ov.Count - 1, Node: bnode.NewOverflow(clone)}, true, nil
		}
	}

	nextOv, found, err := t.removeFirstFromOverflow(clone.Next, target)
	if err != nil || !found {
		return ov, found, err
	}
	t.markObsolete(originID)
	clone.Next = nextOv
	return bnode.Overflow{Count: ov.Count - 1, Node: bnode.NewOverflow(clone)}, true, nil
}

func insertSorted(pairs []bnode.Pair, key, value []byte, cmp CompareFunc) []bnode.Pair {
	i := 0
	for i < len(pairs) && cmp(pairs[i].Key, key) <= 0 {
		i++
	}
	out := make([]bnode.Pair, 0, len(pairs)+1)
	out = append(out, pairs[:i]...)
	out = append(out, bnode.Pair{Key: key, Value: value})
	out = append(out, pairs[i:]...)
	return out
}

func removeAllForKey(pairs []bnode.Pair, key []byte, cmp CompareFunc) []bnode.Pair {
	out := pairs[:0:0]
	for _, p := range pairs {
		if cmp(p.Key, key) != 0 {
			out = append(out, p)
		}
	}
	return out
}

func removeFirstMatch(pairs []bnode.Pair, key, value []byte, cmp CompareFunc) ([]bnode.Pair, bool) {
	for i, p := range pairs {
		if cmp(p.Key, key) == 0 && bytes.Equal(p.Value, value) {
			out := make([]bnode.Pair, 0, len(pairs)-1)
			out = append(out, pairs[:i]...)
			out = append(out, pairs[i+1:]...)
			return out, true
		}
	}
	return pairs, false
}
