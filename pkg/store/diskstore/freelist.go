package diskstore

import (
	"encoding/binary"

	"cowtree/pkg/bnode"
)

// freelistTrunk is a linked-list node of reusable block ids, adapted
// from the teacher's pager.FreelistTrunkPage but keyed by the 8-byte
// NodeId this module uses instead of a 4-byte page number.
//
// Trunk layout within a slot's payload:
//
//	offset 0:  8-byte id of next trunk (0 if last)
//	offset 8:  4-byte count of leaf ids in this trunk
//	offset 12: count * 8-byte leaf ids
type freelistTrunk struct {
	NextTrunk bnode.NodeId
	LeafIDs   []bnode.NodeId
}

// maxLeavesPerTrunk returns how many leaf ids fit in a trunk payload of
// the given size.
func maxLeavesPerTrunk(payloadSize int) int {
	if payloadSize < 12 {
		return 0
	}
	return (payloadSize - 12) / 8
}

func encodeTrunk(t *freelistTrunk, out []byte) {
	binary.BigEndian.PutUint64(out[0:8], uint64(t.NextTrunk))
	binary.BigEndian.PutUint32(out[8:12], uint32(len(t.LeafIDs)))
	for i, id := range t.LeafIDs {
		off := 12 + i*8
		binary.BigEndian.PutUint64(out[off:off+8], uint64(id))
	}
}

func decodeTrunk(data []byte) *freelistTrunk {
	next := bnode.NodeId(binary.BigEndian.Uint64(data[0:8]))
	count := binary.BigEndian.Uint32(data[8:12])
	leaves := make([]bnode.NodeId, count)
	for i := uint32(0); i < count; i++ {
		off := 12 + int(i)*8
		leaves[i] = bnode.NodeId(binary.BigEndian.Uint64(data[off : off+8]))
	}
	return &freelistTrunk{NextTrunk: next, LeafIDs: leaves}
}

func (t *freelistTrunk) isFull(payloadSize int) bool {
	return len(t.LeafIDs) >= maxLeavesPerTrunk(payloadSize)
}

func (t *freelistTrunk) addLeaf(id bnode.NodeId) {
	t.LeafIDs = append(t.LeafIDs, id)
}

func (t *freelistTrunk) popLeaf() (bnode.NodeId, bool) {
	if len(t.LeafIDs) == 0 {
		return 0, false
	}
	last := t.LeafIDs[len(t.LeafIDs)-1]
	t.LeafIDs = t.LeafIDs[:len(t.LeafIDs)-1]
	return last, true
}
