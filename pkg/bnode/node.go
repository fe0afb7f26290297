// Package bnode implements the in-memory node model: leaf, internal, and
// overflow nodes, plus the pending-edit records carried on internal
// nodes. Nodes are a tagged variant rather than an interface hierarchy —
// callers switch on Kind and access the matching field, mirroring how
// the on-disk format itself is one of exactly three shapes (spec.md §3).
package bnode

// NodeId identifies a block. Zero means "no child" / "no overflow".
type NodeId uint64

// NoID is the reserved "absent" node identifier.
const NoID NodeId = 0

// Kind tags which variant a Node holds.
type Kind uint8

const (
	KindLeaf Kind = iota
	KindInternal
	KindOverflow
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindInternal:
		return "internal"
	case KindOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// EditKind tags one pending-edit record queued on an internal node.
type EditKind uint8

const (
	EditInsert EditKind = iota
	EditUpsert
	EditRemoveKey
	EditRemoveKV
)

func (e EditKind) String() string {
	switch e {
	case EditInsert:
		return "insert"
	case EditUpsert:
		return "upsert"
	case EditRemoveKey:
		return "remove-key"
	case EditRemoveKV:
		return "remove-kv"
	default:
		return "unknown-edit"
	}
}

// HasValue reports whether this edit kind carries a value on the wire.
// RemoveKey is the sole kind that omits its value (spec.md §4.3).
func (e EditKind) HasValue() bool {
	return e != EditRemoveKey
}

// Pair is one (key, value) entry in a leaf.
type Pair struct {
	Key   []byte
	Value []byte
}

// Overflow is the tail pointer shared by a leaf and by every overflow
// node: the running count of values reachable through the chain, and the
// id of the first (or next) node in it. The zero value means "no chain".
type Overflow struct {
	Count uint32
	ID    NodeId

	// Node is the owned, dirtied chain head. Only set while mutating;
	// nil means the chain (if any) is unloaded and ID is authoritative.
	Node *Node
}

// Empty reports whether this overflow pointer references nothing.
func (o Overflow) Empty() bool {
	return o.Count == 0 && o.ID == NoID && o.Node == nil
}

// Leaf holds an ordered run of (key, value) pairs plus an optional
// overflow tail for surplus values sharing the leaf's terminal key.
type Leaf struct {
	Pairs    []Pair
	Overflow Overflow
}

// PairCount returns the number of (key, value) pairs stored directly in
// the leaf (excluding anything in the overflow chain).
func (l *Leaf) PairCount() int { return len(l.Pairs) }

// MinKey returns the leaf's first key, or nil if empty.
func (l *Leaf) MinKey() []byte {
	if len(l.Pairs) == 0 {
		return nil
	}
	return l.Pairs[0].Key
}

// TerminalKey returns the leaf's last key, or nil if empty. Every value
// in the overflow chain (if any) shares this key.
func (l *Leaf) TerminalKey() []byte {
	if len(l.Pairs) == 0 {
		return nil
	}
	return l.Pairs[len(l.Pairs)-1].Key
}

// ItemCount returns the number of live items reachable from this leaf:
// its direct pairs plus every value in its overflow chain.
func (l *Leaf) ItemCount() uint32 {
	return uint32(len(l.Pairs)) + l.Overflow.Count
}

// OverflowNode holds a run of values all sharing a leaf's terminal key,
// plus a pointer to the next overflow node in the chain.
type OverflowNode struct {
	Values [][]byte
	Next   Overflow
}

// ValueCount returns the number of values stored directly in this node
// (excluding the rest of the chain).
func (o *OverflowNode) ValueCount() int { return len(o.Values) }

// PendingEdit is one deferred insert/upsert/remove queued on an
// internal node, to be pushed down to children lazily.
type PendingEdit struct {
	Kind  EditKind
	Key   []byte
	Value []byte
}

// Branch is one outgoing edge of an internal node: (minKey, child,
// itemCount). Branch 0's MinKey is always empty, by convention
// representing -infinity.
//
// Child is the tagged variant: nil means "unloaded or clean", in which
// case ChildID is authoritative; non-nil means "dirtied", in which case
// ChildID is meaningless until flush assigns a fresh id.
type Branch struct {
	MinKey    []byte
	ChildID   NodeId
	Child     *Node
	ItemCount uint32
}

// Dirty reports whether this branch carries an owned (mutated) child.
func (b *Branch) Dirty() bool { return b.Child != nil }

// Internal holds a sequence of branches plus a pending-edit queue.
type Internal struct {
	Branches []Branch
	Edits    []PendingEdit
}

// BranchCount returns the number of outgoing branches.
func (n *Internal) BranchCount() int { return len(n.Branches) }

// MinKey returns the minKey of the first branch — always empty by
// convention, but exposed for symmetry with Leaf.MinKey.
func (n *Internal) MinKey() []byte {
	if len(n.Branches) == 0 {
		return nil
	}
	return n.Branches[0].MinKey
}

// FindBranch returns the last branch whose MinKey is <= key (branch 0's
// MinKey is -infinity by convention), i.e. the branch that owns key's
// range. Grounded on FindShallowestInternalKey
// (original_source/src/libbruce/src/internal_node.h): "branch[ret].key
// <= key <= branch[ret+1].key" — the branch needing the least further
// splitting, shared by the mutator (routing an edit) and the query
// path (descending toward a leaf).
func FindBranch(branches []Branch, key []byte, cmp func(a, b []byte) int) int {
	for i := len(branches) - 1; i > 0; i-- {
		if cmp(branches[i].MinKey, key) <= 0 {
			return i
		}
	}
	return 0
}

// ItemCount returns the sum of every branch's item count.
func (n *Internal) ItemCount() uint32 {
	var total uint32
	for i := range n.Branches {
		total += n.Branches[i].ItemCount
	}
	return total
}

// Node is the tagged variant over the three on-disk node kinds. Exactly
// one of Leaf, Internal, Overflow is non-nil, matching Kind.
type Node struct {
	Kind     Kind
	Leaf     *Leaf
	Internal *Internal
	Overflow *OverflowNode
}

// NewLeaf wraps l as a Node.
func NewLeaf(l *Leaf) *Node { return &Node{Kind: KindLeaf, Leaf: l} }

// NewInternal wraps n as a Node.
func NewInternal(n *Internal) *Node { return &Node{Kind: KindInternal, Internal: n} }

// NewOverflow wraps o as a Node.
func NewOverflow(o *OverflowNode) *Node { return &Node{Kind: KindOverflow, Overflow: o} }

// ItemCount returns the number of live items reachable from this node.
// Overflow nodes don't have a standalone item count (their values are
// counted through the owning leaf/overflow's tail pointer), so this
// panics if called on one — callers should never need to.
func (n *Node) ItemCount() uint32 {
	switch n.Kind {
	case KindLeaf:
		return n.Leaf.ItemCount()
	case KindInternal:
		return n.Internal.ItemCount()
	default:
		panic("bnode: ItemCount is undefined for overflow nodes")
	}
}

// MinKey returns the smallest key reachable under this node.
func (n *Node) MinKey() []byte {
	switch n.Kind {
	case KindLeaf:
		return n.Leaf.MinKey()
	case KindInternal:
		return n.Internal.MinKey()
	default:
		return nil
	}
}

// Clone performs a shallow copy of the node's own slices (branch/pair/edit
// lists) without deep-copying key/value bytes — the mutator's
// copy-on-write discipline clones a node the first time it touches it,
// then mutates the clone in place.
func (n *Node) Clone() *Node {
	switch n.Kind {
	case KindLeaf:
		pairs := make([]Pair, len(n.Leaf.Pairs))
		copy(pairs, n.Leaf.Pairs)
		return NewLeaf(&Leaf{Pairs: pairs, Overflow: n.Leaf.Overflow})
	case KindInternal:
		branches := make([]Branch, len(n.Internal.Branches))
		copy(branches, n.Internal.Branches)
		edits := make([]PendingEdit, len(n.Internal.Edits))
		copy(edits, n.Internal.Edits)
		return NewInternal(&Internal{Branches: branches, Edits: edits})
	case KindOverflow:
		values := make([][]byte, len(n.Overflow.Values))
		copy(values, n.Overflow.Values)
		return NewOverflow(&OverflowNode{Values: values, Next: n.Overflow.Next})
	default:
		panic("bnode: unknown kind in Clone")
	}
}
