package querytree

import "cowtree/pkg/bnode"

// fork is one frame of an iterator's root-to-leaf path: the internal
// node at this level and which branch it is currently positioned on.
type fork struct {
	node   *bnode.Node
	branch int
}

// Iterator walks items in sorted key order across leaf pairs and, at
// each leaf's terminal key, its overflow chain. It never crosses a
// branch boundary without ascending and redescending through its
// fork stack, matching the teacher cursor's shape.
type Iterator struct {
	t     *Tree
	forks []fork

	leaf    *bnode.Node
	leafIdx int

	ovf  *bnode.Node // non-nil iff positioned inside an overflow node
	ovIx int

	rank  uint32
	valid bool
}

// Valid reports whether the iterator is positioned on an item.
func (it *Iterator) Valid() bool { return it.valid }

// Rank returns the current item's zero-based global position.
func (it *Iterator) Rank() uint32 { return it.rank }

// Key returns the current item's key.
func (it *Iterator) Key() []byte {
	if it.ovf != nil {
		return it.leaf.Leaf.TerminalKey()
	}
	return it.leaf.Leaf.Pairs[it.leafIdx].Key
}

// Value returns the current item's value.
func (it *Iterator) Value() []byte {
	if it.ovf != nil {
		return it.ovf.Overflow.Values[it.ovIx]
	}
	return it.leaf.Leaf.Pairs[it.leafIdx].Value
}

// Close releases the iterator's references. Safe to call multiple
// times; there is nothing to release beyond in-memory node pointers,
// but it mirrors the teacher cursor's lifecycle for symmetry.
func (it *Iterator) Close() {
	it.forks = nil
	it.leaf = nil
	it.ovf = nil
	it.valid = false
}

// Find positions an iterator at the first occurrence of key, or at the
// next greater key if key is absent; it is invalid iff the tree holds
// no key >= key.
func (t *Tree) Find(key []byte) (*Iterator, error) {
	root, err := t.root()
	if err != nil {
		return nil, err
	}
	it := &Iterator{t: t}
	if root == nil {
		return it, nil
	}

	node := root
	for node.Kind == bnode.KindInternal {
		idx := bnode.FindBranch(node.Internal.Branches, key, t.fns.KeyCompare)
		for i := 0; i < idx; i++ {
			it.rank += node.Internal.Branches[i].ItemCount
		}
		it.forks = append(it.forks, fork{node: node, branch: idx})
		child, err := t.resolveBranch(&node.Internal.Branches[idx])
		if err != nil {
			return nil, err
		}
		node = child
	}
	it.leaf = node

	cmp := t.fns.KeyCompare
	pos := 0
	for pos < len(node.Leaf.Pairs) && cmp(node.Leaf.Pairs[pos].Key, key) < 0 {
		pos++
	}
	it.leafIdx = pos
	it.rank += uint32(pos)
	it.valid = true

	if pos == len(node.Leaf.Pairs) {
		// key sorts past every direct pair in this leaf. Its overflow
		// chain (if any) shares the terminal key, which is itself <
		// key, so there is nothing in this leaf to land on at all —
		// move straight to the next branch without counting this
		// (entirely skipped) leaf's items as newly "advanced past".
		// Its direct pairs are already in rank; add its chain too.
		it.rank += node.Leaf.Overflow.Count
		if err := it.ascendAndDescend(false); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// Seek positions an iterator at the item with the given zero-based
// global rank, using each internal branch's itemCount to descend in
// O(log N) without visiting every item in between.
func (t *Tree) Seek(rank uint32) (*Iterator, error) {
	root, err := t.root()
	if err != nil {
		return nil, err
	}
	it := &Iterator{t: t}
	if root == nil || rank >= root.ItemCount() {
		return it, nil
	}

	node := root
	remaining := rank
	base := uint32(0)
	for node.Kind == bnode.KindInternal {
		idx := 0
		acc := uint32(0)
		for i, b := range node.Internal.Branches {
			if remaining < acc+b.ItemCount {
				idx = i
				break
			}
			acc += b.ItemCount
			idx = i
		}
		remaining -= acc
		base += acc
		it.forks = append(it.forks, fork{node: node, branch: idx})
		child, err := t.resolveBranch(&node.Internal.Branches[idx])
		if err != nil {
			return nil, err
		}
		node = child
	}
	it.leaf = node
	it.rank = base

	if remaining < uint32(len(node.Leaf.Pairs)) {
		it.leafIdx = int(remaining)
		it.rank += remaining
		it.valid = true
		return it, nil
	}
	remaining -= uint32(len(node.Leaf.Pairs))
	it.leafIdx = len(node.Leaf.Pairs)
	it.rank += uint32(len(node.Leaf.Pairs))

	ov := node.Leaf.Overflow
	for ov.ID != bnode.NoID {
		ovNode, err := t.load(ov.ID)
		if err != nil {
			return nil, err
		}
		if remaining < uint32(len(ovNode.Overflow.Values)) {
			it.ovf = ovNode
			it.ovIx = int(remaining)
			it.rank += remaining
			it.valid = true
			return it, nil
		}
		remaining -= uint32(len(ovNode.Overflow.Values))
		it.rank += uint32(len(ovNode.Overflow.Values))
		ov = ovNode.Overflow.Next
	}

	// rank fell past the end of the tree.
	it.valid = false
	return it, nil
}

// Next advances the iterator by one item.
func (it *Iterator) Next() error {
	if !it.valid {
		return nil
	}
	return it.advance()
}

// Skip attempts a local advance by n items; if that would cross a
// node boundary it falls back to a full Seek(Rank()+n), matching
// spec.md's skip contract.
func (it *Iterator) Skip(n uint32) error {
	if n == 0 {
		return nil
	}
	if it.ovf == nil && it.leafIdx+int(n) < len(it.leaf.Leaf.Pairs) {
		it.leafIdx += int(n)
		it.rank += n
		return nil
	}
	if it.ovf != nil && it.ovIx+int(n) < len(it.ovf.Overflow.Values) {
		it.ovIx += int(n)
		it.rank += n
		return nil
	}
	seeked, err := it.t.Seek(it.rank + n)
	if err != nil {
		return err
	}
	*it = *seeked
	return nil
}

// advance steps to the next item: further into the current leaf's
// direct pairs, then into (or along) its overflow chain, then back up
// the fork stack to the next sibling branch.
func (it *Iterator) advance() error {
	if it.ovf == nil {
		it.leafIdx++
		if it.leafIdx < len(it.leaf.Leaf.Pairs) {
			it.rank++
			return nil
		}
		if !it.leaf.Leaf.Overflow.Empty() {
			node, err := it.t.load(it.leaf.Leaf.Overflow.ID)
			if err != nil {
				return err
			}
			it.ovf = node
			it.ovIx = 0
			it.rank++
			return nil
		}
	} else {
		it.ovIx++
		if it.ovIx < len(it.ovf.Overflow.Values) {
			it.rank++
			return nil
		}
		if it.ovf.Overflow.Next.ID != bnode.NoID {
			node, err := it.t.load(it.ovf.Overflow.Next.ID)
			if err != nil {
				return err
			}
			it.ovf = node
			it.ovIx = 0
			it.rank++
			return nil
		}
	}
	return it.ascendAndDescend(true)
}

// ascendAndDescend pops exhausted forks until it finds an ancestor
// with a remaining sibling branch, then descends that branch's
// leftmost path down to its first leaf (or overflow) position.
// increment is false only when called from Find's initial landing,
// where the skipped leaf contributed no match and its items were
// already folded into the starting rank rather than being "advanced
// past" one at a time.
func (it *Iterator) ascendAndDescend(increment bool) error {
	it.ovf = nil
	for len(it.forks) > 0 {
		top := &it.forks[len(it.forks)-1]
		top.branch++
		if top.branch < top.node.Internal.BranchCount() {
			child, err := it.t.resolveBranch(&top.node.Internal.Branches[top.branch])
			if err != nil {
				return err
			}
			if increment {
				it.rank++
			}
			return it.descendLeftmost(child)
		}
		it.forks = it.forks[:len(it.forks)-1]
	}
	it.valid = false
	return nil
}

// descendLeftmost walks node's leftmost path down to its first item,
// pushing a fork for every internal level crossed.
func (it *Iterator) descendLeftmost(node *bnode.Node) error {
	for node.Kind == bnode.KindInternal {
		it.forks = append(it.forks, fork{node: node, branch: 0})
		child, err := it.t.resolveBranch(&node.Internal.Branches[0])
		if err != nil {
			return err
		}
		node = child
	}
	it.leaf = node
	it.leafIdx = 0
	it.valid = true
	return nil
}
