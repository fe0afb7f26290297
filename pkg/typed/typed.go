// Package typed is the generic façade over the untyped core: it
// marshals caller key/value types to and from byte slices and routes
// every call through pkg/edittree (writes) and pkg/querytree (reads),
// per spec.md §6's "parameterized over key type K and value type V via
// four caller-supplied functions" contract.
//
// Grounded on the teacher's typed record layer
// (tur/pkg/record/record.go's Marshal/Unmarshal-against-a-schema
// split), generalized from the teacher's fixed SQL column types to an
// arbitrary caller-supplied (K, V) pair via Go generics.
package typed

import (
	"cowtree/pkg/bcodec"
	"cowtree/pkg/bnode"
	"cowtree/pkg/edittree"
	"cowtree/pkg/mutation"
	"cowtree/pkg/querytree"
	"cowtree/pkg/store"
)

// Funcs bundles the caller-supplied functions spec.md §6 asks for: a
// byte-level key comparator (what the core actually traverses by) plus
// marshal/unmarshal/size pairs for both K and V.
type Funcs[K any, V any] struct {
	// KeyCompare orders two marshaled keys. Required.
	KeyCompare func(a, b []byte) int

	MarshalKey     func(K) []byte
	UnmarshalKey   func([]byte) K
	KeySize        bcodec.SizeFunc
	MarshalValue   func(V) []byte
	UnmarshalValue func([]byte) V
	ValueSize      bcodec.SizeFunc
}

// Tree is a typed handle on one untyped edit tree. Not safe for
// concurrent use, matching the core's single-cooperative-mutator model.
type Tree[K any, V any] struct {
	st   store.Store
	fns  Funcs[K, V]
	edit *edittree.Tree
}

// Open loads a typed Tree rooted at rootID (bnode.NoID for a brand new
// empty tree).
func Open[K any, V any](st store.Store, rootID bnode.NodeId, fns Funcs[K, V], cfg edittree.Config) (*Tree[K, V], error) {
	cfg.KeyCompare = fns.KeyCompare
	edit, err := edittree.Open(st, rootID, edittree.Funcs{
		KeyCompare: fns.KeyCompare,
		KeySize:    fns.KeySize,
		ValueSize:  fns.ValueSize,
	}, cfg)
	if err != nil {
		return nil, err
	}
	return &Tree[K, V]{st: st, fns: fns, edit: edit}, nil
}

// RootID returns the underlying tree's current root id, meaningful
// after a successful Flush.
func (t *Tree[K, V]) RootID() bnode.NodeId { return t.edit.RootID() }

// Insert adds (key, value), keeping any existing values under key.
func (t *Tree[K, V]) Insert(key K, value V) error {
	return t.edit.Insert(t.fns.MarshalKey(key), t.fns.MarshalValue(value))
}

// Upsert replaces every existing value under key with value.
func (t *Tree[K, V]) Upsert(key K, value V) error {
	return t.edit.Upsert(t.fns.MarshalKey(key), t.fns.MarshalValue(value))
}

// Remove deletes every value stored under key.
func (t *Tree[K, V]) Remove(key K) error {
	return t.edit.Remove(t.fns.MarshalKey(key))
}

// RemoveValue deletes the first (key, value) pair found for key.
func (t *Tree[K, V]) RemoveValue(key K, value V) error {
	return t.edit.RemoveValue(t.fns.MarshalKey(key), t.fns.MarshalValue(value))
}

// Flush persists every dirtied node in one batch. See edittree.Flush.
func (t *Tree[K, V]) Flush() (mutation.Report, error) {
	return t.edit.Flush()
}

func (t *Tree[K, V]) queryFuncs() querytree.Funcs {
	return querytree.Funcs{KeyCompare: t.fns.KeyCompare, KeySize: t.fns.KeySize, ValueSize: t.fns.ValueSize}
}

// reader returns a querytree.Tree over this handle's current state —
// the in-memory root whenever the mutator holds one (flushed or not),
// and the stored root id only when it holds none — so reads always see
// the handle's own pending writes.
func (t *Tree[K, V]) reader() *querytree.Tree {
	if root := t.edit.CurrentRoot(); root != nil {
		return querytree.OpenLive(t.st, root, t.queryFuncs())
	}
	return querytree.Open(t.st, t.edit.RootID(), t.queryFuncs())
}

// Get returns the value of the first matching pair for key, or
// ok=false if key is absent.
func (t *Tree[K, V]) Get(key K) (value V, ok bool, err error) {
	raw, found, err := t.reader().Get(t.fns.MarshalKey(key))
	if err != nil || !found {
		return value, false, err
	}
	return t.fns.UnmarshalValue(raw), true, nil
}

// Find positions a typed iterator at the first occurrence of key, or
// at the next greater key if key is absent.
func (t *Tree[K, V]) Find(key K) (*Iterator[K, V], error) {
	it, err := t.reader().Find(t.fns.MarshalKey(key))
	if err != nil {
		return nil, err
	}
	return &Iterator[K, V]{it: it, fns: t.fns}, nil
}

// Seek positions a typed iterator at the given zero-based global rank.
func (t *Tree[K, V]) Seek(rank uint32) (*Iterator[K, V], error) {
	it, err := t.reader().Seek(rank)
	if err != nil {
		return nil, err
	}
	return &Iterator[K, V]{it: it, fns: t.fns}, nil
}

// First positions a typed iterator at the tree's smallest item.
func (t *Tree[K, V]) First() (*Iterator[K, V], error) {
	it, err := t.reader().First()
	if err != nil {
		return nil, err
	}
	return &Iterator[K, V]{it: it, fns: t.fns}, nil
}

// Iterator is the typed counterpart of querytree.Iterator, unmarshaling
// keys/values on demand.
type Iterator[K any, V any] struct {
	it  *querytree.Iterator
	fns Funcs[K, V]
}

func (it *Iterator[K, V]) Valid() bool   { return it.it.Valid() }
func (it *Iterator[K, V]) Rank() uint32  { return it.it.Rank() }
func (it *Iterator[K, V]) Key() K        { return it.fns.UnmarshalKey(it.it.Key()) }
func (it *Iterator[K, V]) Value() V      { return it.fns.UnmarshalValue(it.it.Value()) }
func (it *Iterator[K, V]) Next() error   { return it.it.Next() }
func (it *Iterator[K, V]) Skip(n uint32) error {
	return it.it.Skip(n)
}
func (it *Iterator[K, V]) Close() { it.it.Close() }
