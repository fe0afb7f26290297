package bsize

import "cowtree/pkg/bnode"

// LeafSize returns the wire size of a leaf holding pairs, not counting
// anything in its overflow chain (only the 12-byte tail pointer to it).
func LeafSize(pairs []bnode.Pair) uint32 {
	size := uint32(wireHeaderAndTail)
	for _, p := range pairs {
		size += pairBytes(p.Key, p.Value)
	}
	return size
}

// LeafPlan describes what to do with an over-budget leaf.
//
// Split is false and Reseed is false: the leaf fits, do nothing.
//
// Split is false and Reseed is true: the leaf's trailing run of
// same-key pairs can't be split across two leaves (every value in an
// overflow chain must share the owning leaf's terminal key). The leaf
// is truncated to Pairs and the values of the truncated tail
// (OverflowSeed) become (or extend) its own overflow chain.
//
// Split is true: the leaf divides into two. Pairs (plus OverflowSeed,
// if non-empty) stays as the left leaf; RightPairs becomes the right
// leaf. The plan seeds no overflow values for the right leaf; what
// happens to the original leaf's chain is up to the caller.
type LeafPlan struct {
	Split        bool
	Reseed       bool
	Pairs        []bnode.Pair
	OverflowSeed [][]byte
	RightPairs   []bnode.Pair
}

// PlanLeafSplit decides whether pairs needs to split (or reseed its
// overflow tail) to fit under maxBlockSize.
func PlanLeafSplit(pairs []bnode.Pair, maxBlockSize uint32) LeafPlan {
	size := LeafSize(pairs)
	if maxBlockSize == 0 || size <= maxBlockSize || len(pairs) == 0 {
		return LeafPlan{}
	}

	pieceSize := ceilDiv2(maxBlockSize)
	splitSize := uint32(wireHeaderAndTail)

	startOfThisKey := 0
	hereIdx := len(pairs) - 1
	for i, p := range pairs {
		if !sameKey(pairs[startOfThisKey].Key, p.Key) {
			startOfThisKey = i
		}
		splitSize += pairBytes(p.Key, p.Value)
		if splitSize > pieceSize {
			hereIdx = i
			break
		}
	}

	// Move the split index forward past any run of pairs sharing
	// hereIdx's key — a leaf boundary can never fall inside a same-key
	// run, since the right leaf's first key must differ from the
	// left's last.
	splitStart := hereIdx
	for splitStart < len(pairs) && sameKey(pairs[splitStart].Key, pairs[hereIdx].Key) {
		splitStart++
	}

	// The overflow chain, if one is seeded, starts right after the run
	// of pairs sharing the key at startOfThisKey.
	overflowStart := startOfThisKey + 1

	if splitStart >= len(pairs) {
		return LeafPlan{
			Reseed:       true,
			Pairs:        pairs[:overflowStart],
			OverflowSeed: valuesOf(pairs[overflowStart:]),
		}
	}

	return LeafPlan{
		Split:        true,
		Pairs:        pairs[:overflowStart],
		OverflowSeed: valuesOf(pairs[overflowStart:splitStart]),
		RightPairs:   pairs[splitStart:],
	}
}

func valuesOf(pairs []bnode.Pair) [][]byte {
	if len(pairs) == 0 {
		return nil
	}
	values := make([][]byte, len(pairs))
	for i, p := range pairs {
		values[i] = p.Value
	}
	return values
}
