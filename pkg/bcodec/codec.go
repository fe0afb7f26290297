// Package bcodec serializes and parses the three on-disk node shapes.
// Keys and values are self-describing: the codec never stores their
// lengths itself, instead calling caller-supplied size functions that
// inspect the raw bytes at an offset and report how many bytes belong
// to that item — mirroring libbruce's tree_functions.keySize/valueSize
// sizeinators (original_source/src/libbruce/src/serializing.cpp).
package bcodec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"cowtree/pkg/bnode"
)

// SizeFunc reports the length in bytes of the item starting at buf[0].
// It must not read past the item's own bytes.
type SizeFunc func(buf []byte) uint32

// Funcs bundles the size functions the codec needs to walk a buffer of
// self-describing keys or values.
type Funcs struct {
	KeySize   SizeFunc
	ValueSize SizeFunc
}

// ErrTruncated is returned when a parse runs past the end of the input
// while reading a field that should have been there.
var ErrTruncated = errors.New("bcodec: truncated block")

// ErrTrailingBytes is returned when a parse consumes less than the
// entire input, indicating a length mismatch between what was written
// and what the size functions now report.
var ErrTrailingBytes = errors.New("bcodec: trailing bytes after node")

// ErrUnknownKind is returned when the leading flags byte doesn't match
// any known node kind.
var ErrUnknownKind = errors.New("bcodec: unknown node kind")

const (
	flagsSize     = 1
	keyCountSize  = 2 // uint16
	itemCountSize = 4 // uint32
	nodeIDSize    = 8 // uint64
	editTypeSize  = 1 // uint8
)

// headerSize is the (flags, keyCount) prefix common to every node kind.
const headerSize = flagsSize + keyCountSize

// Parse decodes data into a Node, dispatching on the leading flags byte.
func Parse(data []byte, fns Funcs) (*bnode.Node, error) {
	if len(data) < flagsSize {
		return nil, ErrTruncated
	}
	switch bnode.Kind(data[0]) {
	case bnode.KindLeaf:
		return parseLeaf(data, fns)
	case bnode.KindInternal:
		return parseInternal(data, fns)
	case bnode.KindOverflow:
		return parseOverflow(data, fns)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, data[0])
	}
}

func keyCount(data []byte) (uint16, error) {
	if len(data) < headerSize {
		return 0, ErrTruncated
	}
	return binary.LittleEndian.Uint16(data[flagsSize:headerSize]), nil
}

func parseLeaf(data []byte, fns Funcs) (*bnode.Node, error) {
	count, err := keyCount(data)
	if err != nil {
		return nil, err
	}
	offset := headerSize

	pairs := make([]bnode.Pair, count)
	for i := range pairs {
		if offset >= len(data) {
			return nil, ErrTruncated
		}
		size := int(fns.KeySize(data[offset:]))
		if size <= 0 || offset+size > len(data) {
			return nil, ErrTruncated
		}
		pairs[i].Key = data[offset : offset+size]
		offset += size
	}
	for i := range pairs {
		if offset >= len(data) {
			return nil, ErrTruncated
		}
		size := int(fns.ValueSize(data[offset:]))
		if size < 0 || offset+size > len(data) {
			return nil, ErrTruncated
		}
		pairs[i].Value = data[offset : offset+size]
		offset += size
	}

	if offset+itemCountSize+nodeIDSize > len(data) {
		return nil, ErrTruncated
	}
	overflowCount := binary.LittleEndian.Uint32(data[offset : offset+itemCountSize])
	offset += itemCountSize
	overflowID := bnode.NodeId(binary.LittleEndian.Uint64(data[offset : offset+nodeIDSize]))
	offset += nodeIDSize

	if offset != len(data) {
		return nil, ErrTrailingBytes
	}

	return bnode.NewLeaf(&bnode.Leaf{
		Pairs:    pairs,
		Overflow: bnode.Overflow{Count: overflowCount, ID: overflowID},
	}), nil
}

func parseOverflow(data []byte, fns Funcs) (*bnode.Node, error) {
	count, err := keyCount(data)
	if err != nil {
		return nil, err
	}
	offset := headerSize

	values := make([][]byte, count)
	for i := range values {
		if offset >= len(data) {
			return nil, ErrTruncated
		}
		size := int(fns.ValueSize(data[offset:]))
		if size < 0 || offset+size > len(data) {
			return nil, ErrTruncated
		}
		values[i] = data[offset : offset+size]
		offset += size
	}

	if offset+itemCountSize+nodeIDSize > len(data) {
		return nil, ErrTruncated
	}
	nextCount := binary.LittleEndian.Uint32(data[offset : offset+itemCountSize])
	offset += itemCountSize
	nextID := bnode.NodeId(binary.LittleEndian.Uint64(data[offset : offset+nodeIDSize]))
	offset += nodeIDSize

	if offset != len(data) {
		return nil, ErrTrailingBytes
	}

	return bnode.NewOverflow(&bnode.OverflowNode{
		Values: values,
		Next:   bnode.Overflow{Count: nextCount, ID: nextID},
	}), nil
}

func parseInternal(data []byte, fns Funcs) (*bnode.Node, error) {
	branchCount, err := keyCount(data)
	if err != nil {
		return nil, err
	}
	offset := headerSize

	if offset+keyCountSize > len(data) {
		return nil, ErrTruncated
	}
	editCount := binary.LittleEndian.Uint16(data[offset : offset+keyCountSize])
	offset += keyCountSize

	branches := make([]bnode.Branch, branchCount)
	// Branch 0's minKey is never stored; it represents -infinity.
	for i := 1; i < int(branchCount); i++ {
		if offset >= len(data) {
			return nil, ErrTruncated
		}
		size := int(fns.KeySize(data[offset:]))
		if size <= 0 || offset+size > len(data) {
			return nil, ErrTruncated
		}
		branches[i].MinKey = data[offset : offset+size]
		offset += size
	}

	for i := range branches {
		if offset+nodeIDSize > len(data) {
			return nil, ErrTruncated
		}
		branches[i].ChildID = bnode.NodeId(binary.LittleEndian.Uint64(data[offset : offset+nodeIDSize]))
		offset += nodeIDSize
	}

	for i := range branches {
		if offset+itemCountSize > len(data) {
			return nil, ErrTruncated
		}
		branches[i].ItemCount = binary.LittleEndian.Uint32(data[offset : offset+itemCountSize])
		offset += itemCountSize
	}

	editKinds := make([]bnode.EditKind, editCount)
	for i := range editKinds {
		if offset >= len(data) {
			return nil, ErrTruncated
		}
		editKinds[i] = bnode.EditKind(data[offset])
		offset += editTypeSize
	}

	edits := make([]bnode.PendingEdit, editCount)
	for i := range edits {
		if offset >= len(data) {
			return nil, ErrTruncated
		}
		size := int(fns.KeySize(data[offset:]))
		if size <= 0 || offset+size > len(data) {
			return nil, ErrTruncated
		}
		edits[i] = bnode.PendingEdit{Kind: editKinds[i], Key: data[offset : offset+size]}
		offset += size
	}
	for i := range edits {
		if !edits[i].Kind.HasValue() {
			continue
		}
		if offset >= len(data) {
			return nil, ErrTruncated
		}
		size := int(fns.ValueSize(data[offset:]))
		if size < 0 || offset+size > len(data) {
			return nil, ErrTruncated
		}
		edits[i].Value = data[offset : offset+size]
		offset += size
	}

	if offset != len(data) {
		return nil, ErrTrailingBytes
	}

	return bnode.NewInternal(&bnode.Internal{Branches: branches, Edits: edits}), nil
}

// Serialize encodes n into its on-disk byte representation.
func Serialize(n *bnode.Node) []byte {
	switch n.Kind {
	case bnode.KindLeaf:
		return serializeLeaf(n.Leaf)
	case bnode.KindInternal:
		return serializeInternal(n.Internal)
	case bnode.KindOverflow:
		return serializeOverflow(n.Overflow)
	default:
		panic("bcodec: unknown node kind")
	}
}

func serializeLeaf(l *bnode.Leaf) []byte {
	size := headerSize + itemCountSize + nodeIDSize
	for _, p := range l.Pairs {
		size += len(p.Key) + len(p.Value)
	}
	buf := make([]byte, size)
	offset := 0

	buf[offset] = byte(bnode.KindLeaf)
	offset += flagsSize
	binary.LittleEndian.PutUint16(buf[offset:], uint16(len(l.Pairs)))
	offset += keyCountSize

	for _, p := range l.Pairs {
		offset += copy(buf[offset:], p.Key)
	}
	for _, p := range l.Pairs {
		offset += copy(buf[offset:], p.Value)
	}

	binary.LittleEndian.PutUint32(buf[offset:], l.Overflow.Count)
	offset += itemCountSize
	binary.LittleEndian.PutUint64(buf[offset:], uint64(l.Overflow.ID))
	offset += nodeIDSize

	return buf
}

func serializeOverflow(o *bnode.OverflowNode) []byte {
	size := headerSize + itemCountSize + nodeIDSize
	for _, v := range o.Values {
		size += len(v)
	}
	buf := make([]byte, size)
	offset := 0

	buf[offset] = byte(bnode.KindOverflow)
	offset += flagsSize
	binary.LittleEndian.PutUint16(buf[offset:], uint16(len(o.Values)))
	offset += keyCountSize

	for _, v := range o.Values {
		offset += copy(buf[offset:], v)
	}

	binary.LittleEndian.PutUint32(buf[offset:], o.Next.Count)
	offset += itemCountSize
	binary.LittleEndian.PutUint64(buf[offset:], uint64(o.Next.ID))
	offset += nodeIDSize

	return buf
}

func serializeInternal(n *bnode.Internal) []byte {
	size := headerSize + keyCountSize
	for i, b := range n.Branches {
		if i != 0 {
			size += len(b.MinKey)
		}
		size += nodeIDSize + itemCountSize
	}
	for _, e := range n.Edits {
		size += editTypeSize + len(e.Key)
		if e.Kind.HasValue() {
			size += len(e.Value)
		}
	}

	buf := make([]byte, size)
	offset := 0

	buf[offset] = byte(bnode.KindInternal)
	offset += flagsSize
	binary.LittleEndian.PutUint16(buf[offset:], uint16(len(n.Branches)))
	offset += keyCountSize
	binary.LittleEndian.PutUint16(buf[offset:], uint16(len(n.Edits)))
	offset += keyCountSize

	for i, b := range n.Branches {
		if i == 0 {
			continue
		}
		offset += copy(buf[offset:], b.MinKey)
	}
	for _, b := range n.Branches {
		binary.LittleEndian.PutUint64(buf[offset:], uint64(b.ChildID))
		offset += nodeIDSize
	}
	for _, b := range n.Branches {
		binary.LittleEndian.PutUint32(buf[offset:], b.ItemCount)
		offset += itemCountSize
	}

	for _, e := range n.Edits {
		buf[offset] = byte(e.Kind)
		offset += editTypeSize
	}
	for _, e := range n.Edits {
		offset += copy(buf[offset:], e.Key)
	}
	for _, e := range n.Edits {
		if e.Kind.HasValue() {
			offset += copy(buf[offset:], e.Value)
		}
	}

	return buf
}
