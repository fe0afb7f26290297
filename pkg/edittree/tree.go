// Package edittree is the mutator: it applies insert/upsert/remove
// edits to an in-memory copy-on-write node graph rooted at a tree's
// current root, splitting nodes that outgrow the store's block size,
// and hands the dirtied graph to Flush to be persisted in one batch.
//
// Grounded on the original mutable_tree's documented insert strategy
// (original_source/src/libbruce/src/operations.h) generalized with a
// pending-edit queue on internal nodes (internal_node.h's editQueue,
// also present in the wire format — serializing.cpp), and on the
// teacher's clone-on-write node handling (tur/pkg/cowbtree/cowbtree.go).
package edittree

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"cowtree/pkg/bcodec"
	"cowtree/pkg/blog"
	"cowtree/pkg/bnode"
	"cowtree/pkg/store"
)

// CompareFunc orders two keys (or two values), returning <0, 0, >0 the
// way bytes.Compare does.
type CompareFunc func(a, b []byte) int

// Config configures a Tree, mirroring the teacher's pager.Options shape.
type Config struct {
	// KeyCompare orders keys. Required.
	KeyCompare CompareFunc

	// MaxEditQueueSize bounds how many bytes of pending edits an
	// internal node may carry before they're pushed down to children.
	// Zero disables queuing: every edit is pushed straight to its leaf.
	MaxEditQueueSize uint32

	// Logger receives structural diagnostics (root splits, flush
	// completion). Defaults to a discard logger.
	Logger logr.Logger
}

func (c Config) logger() logr.Logger {
	if c.Logger.GetSink() == nil {
		return blog.Discard()
	}
	return c.Logger
}

// ErrFrozen guards the flush-once lifecycle: a Tree can be mutated
// freely before its first Flush, and is read-only after.
// ErrKeyRequired and ErrValueRequired reject empty keys and values.
var (
	ErrFrozen        = errors.New("edittree: tree is frozen after flush")
	ErrKeyRequired   = errors.New("edittree: key must not be empty")
	ErrValueRequired = errors.New("edittree: value must not be empty for insert/upsert")
)

// ErrInvariantViolation reports a structural impossibility detected
// while mutating the tree (corrupt node graph, a split that produced
// no keys, etc). This is this module's replacement for the original
// C++ implementation's assert() — a library should report a failure to
// its caller, not crash the process that embeds it.
type ErrInvariantViolation struct {
	Message string
}

func (e *ErrInvariantViolation) Error() string {
	return fmt.Sprintf("edittree: invariant violation: %s", e.Message)
}

func invariantViolation(format string, args ...interface{}) error {
	return &ErrInvariantViolation{Message: fmt.Sprintf(format, args...)}
}

// Stats is an observability snapshot, not part of any correctness
// invariant — adapted from the teacher's CowBTreeStats.
type Stats struct {
	SplitCount   uint64
	CloneCount   uint64
	FlushCount   uint64
	QueueDrains  uint64
	PendingEdits int
}

// Tree is a single mutator handle over one tree: load it at a root id
// (or nil for a brand new empty tree), apply edits, then Flush once.
// Not safe for concurrent use — spec.md's single cooperative mutator
// model (see CONCURRENCY & RESOURCE MODEL).
type Tree struct {
	st  store.Store
	fns Funcs
	cfg Config
	log logr.Logger

	rootID bnode.NodeId // 0 means empty tree / not yet flushed once
	root   *bnode.Node  // non-nil once the tree has any content, dirty or not

	// clean tracks whether root (and everything under it) is exactly
	// what's already on disk at rootID — if true, the tree is
	// identical to what a fresh Open would load, and Flush is a no-op.
	clean bool

	// obsolete accumulates the ids of clean on-disk nodes superseded by
	// a copy-on-write clone since the last flush.
	obsolete []bnode.NodeId

	frozen bool
	stats  Stats
}

// Funcs bundles the comparators/sizers a Tree needs: key ordering plus
// the bcodec size functions used to (de)serialize nodes.
type Funcs struct {
	KeyCompare CompareFunc
	KeySize    func([]byte) uint32
	ValueSize  func([]byte) uint32
}

// Open loads a Tree rooted at rootID (0 for a brand new empty tree).
func Open(st store.Store, rootID bnode.NodeId, fns Funcs, cfg Config) (*Tree, error) {
	t := &Tree{
		st:     st,
		fns:    fns,
		cfg:    cfg,
		log:    cfg.logger(),
		rootID: rootID,
		clean:  true,
	}
	if rootID != bnode.NoID {
		node, err := t.load(rootID)
		if err != nil {
			return nil, err
		}
		t.root = node
	}
	return t, nil
}

// RootID returns the tree's current root id. Only meaningful after a
// successful Flush (or for a tree that was never mutated).
func (t *Tree) RootID() bnode.NodeId {
	return t.rootID
}

// CurrentRoot returns the tree's in-memory root node (nil for an empty
// tree), including any edits applied since the last Flush. Lets a
// read path traverse live, uncommitted state — e.g. pkg/typed's
// façade reading its own pending writes — without requiring a Flush
// first.
func (t *Tree) CurrentRoot() *bnode.Node {
	return t.root
}

// Stats returns an observability snapshot.
func (t *Tree) Stats() Stats {
	s := t.stats
	if t.root != nil && t.root.Kind == bnode.KindInternal {
		s.PendingEdits = len(t.root.Internal.Edits)
	}
	return s
}

func (t *Tree) load(id bnode.NodeId) (*bnode.Node, error) {
	data, err := t.st.Get(id)
	if err != nil {
		return nil, err
	}
	return bcodec.Parse(data, bcodec.Funcs{KeySize: t.fns.KeySize, ValueSize: t.fns.ValueSize})
}

func (t *Tree) checkMutable() error {
	if t.frozen {
		return ErrFrozen
	}
	return nil
}

func (t *Tree) markObsolete(id bnode.NodeId) {
	if id != bnode.NoID {
		t.obsolete = append(t.obsolete, id)
	}
}
