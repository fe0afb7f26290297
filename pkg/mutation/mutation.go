// Package mutation defines the result type a flush produces: the new
// root, what changed, and whether it worked.
package mutation

import "cowtree/pkg/bnode"

// Report is returned by a flush. CreatedIDs and ObsoleteIDs describe
// exactly which blocks a caller must make visible and may eventually
// reclaim — the copy-on-write discipline never mutates a block in
// place, so every dirtied node surfaces here as a fresh id.
type Report struct {
	// NewRootID is the id of the root after this flush. Equal to the
	// tree's previous root id if nothing was dirtied.
	NewRootID bnode.NodeId

	// CreatedIDs lists every id newly written by this flush, in the
	// order they were allocated.
	CreatedIDs []bnode.NodeId

	// ObsoleteIDs lists the ids of on-disk nodes the mutator loaded and
	// then replaced or dropped. An overflow chain that Upsert or Remove
	// discards without loading it is not listed. A caller doing manual
	// reclamation may DeleteAll these once no reader still needs the
	// prior root.
	ObsoleteIDs []bnode.NodeId

	// Success is false if the flush could not complete (e.g. the
	// underlying store rejected a write); NewRootID is then the old
	// root and Created/ObsoleteIDs are empty.
	Success bool

	// ErrorMessage carries the underlying failure when Success is
	// false, for callers that log but don't want to thread a Go error
	// through serialized report data.
	ErrorMessage string
}

// OK builds a successful Report.
func OK(newRoot bnode.NodeId, created, obsolete []bnode.NodeId) Report {
	return Report{
		NewRootID:   newRoot,
		CreatedIDs:  created,
		ObsoleteIDs: obsolete,
		Success:     true,
	}
}

// Failed builds a Report describing a failed flush that left oldRoot in place.
func Failed(oldRoot bnode.NodeId, err error) Report {
	return Report{
		NewRootID:    oldRoot,
		Success:      false,
		ErrorMessage: err.Error(),
	}
}
