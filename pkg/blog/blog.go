// Package blog is the thin structured-logging seam the rest of this
// module logs through: a github.com/go-logr/logr.Logger, defaulting to
// a discard logger so the core never forces a caller to wire one up,
// with github.com/go-logr/stdr available as a one-line stdlib-backed
// default when they want output.
package blog

import (
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// Verbosity levels used throughout the tree and store packages.
const (
	// V1 covers structural events: splits, flush batches, store opens.
	V1 = 1
	// V2 covers per-operation detail: individual inserts, cache hits.
	V2 = 2
)

// Discard is the default logger used when a Config doesn't supply one.
func Discard() logr.Logger {
	return logr.Discard()
}

// NewStdLogger returns a logr.Logger backed by the standard library's
// log package, writing to os.Stderr with the given name as a prefix —
// the default a caller reaches for when they want to see what the tree
// is doing without wiring up a full logging stack.
func NewStdLogger(name string) logr.Logger {
	std := log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	return stdr.New(std).WithName(name)
}
