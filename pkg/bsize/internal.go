package bsize

import "cowtree/pkg/bnode"

// internalBaseSize is the fixed header for an internal node: 1-byte
// flags + 2-byte branch count + 2-byte edit-queue count.
const internalBaseSize = 1 + 2 + 2

// InternalSize returns the wire size of branches, excluding the
// edit queue (tracked separately — see EditQueueSize).
func InternalSize(branches []bnode.Branch) uint32 {
	size := uint32(internalBaseSize)
	for i, b := range branches {
		if i != 0 { // branch 0's minKey is never stored
			size += uint32(len(b.MinKey))
		}
		size += 8 + 4 // nodeID + itemCount
	}
	return size
}

// EditQueueSize returns the wire size of a pending-edit queue.
func EditQueueSize(edits []bnode.PendingEdit) uint32 {
	var size uint32
	for _, e := range edits {
		size += 1 + uint32(len(e.Key))
		if e.Kind.HasValue() {
			size += uint32(len(e.Value))
		}
	}
	return size
}

// InternalPlan describes how to split an over-budget internal node.
// SplitIndex, when Split is true, is the branch index where the right
// half begins; the promoted split key for the parent is
// Branches[SplitIndex].MinKey.
type InternalPlan struct {
	Split      bool
	SplitIndex int

	// ShouldApplyEditQueue reports whether the pending-edit queue has
	// grown past maxEditQueueSize and should be flushed down to
	// children before anything else happens to this node.
	ShouldApplyEditQueue bool
}

// PlanInternalSplit decides whether branches needs to split to fit
// under maxBlockSize, and whether the edit queue (accounted separately,
// outside the split budget) has grown enough to need flushing down.
func PlanInternalSplit(branches []bnode.Branch, edits []bnode.PendingEdit, maxBlockSize, maxEditQueueSize uint32) InternalPlan {
	editQueueSize := EditQueueSize(edits)
	plan := InternalPlan{ShouldApplyEditQueue: editQueueSize > maxEditQueueSize}

	effectiveBlockSize := int64(maxBlockSize) - int64(maxEditQueueSize)
	size := InternalSize(branches)

	if effectiveBlockSize <= 0 || uint32(effectiveBlockSize) >= size || len(branches) < 2 {
		return plan
	}

	pieceSize := ceilDiv2(size)
	splitSize := uint32(internalBaseSize)

	for i := 0; i < len(branches); i++ {
		if i == 0 {
			splitSize += 8 + 4 // branch 0's minKey is never stored
		} else {
			splitSize += uint32(len(branches[i].MinKey)) + 8 + 4
		}
		if splitSize > pieceSize && i+1 < len(branches) {
			plan.Split = true
			plan.SplitIndex = i + 1
			return plan
		}
	}

	return plan
}
