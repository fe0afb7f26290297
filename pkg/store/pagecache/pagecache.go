// Package pagecache provides an optional in-memory cache of serialized
// block bytes keyed by block id, tracking a byte budget and surfacing
// eviction candidates by access frequency. It is separate from
// store.Store: a Cache holds no store and does not implement the
// interface, so the caller fills it and consults it around its own
// store calls.
package pagecache

import (
	"sort"
	"sync"
	"time"

	"cowtree/pkg/bnode"
)

// DefaultByteLimit is used when New is given a non-positive limit.
const DefaultByteLimit = int64(64 * 1024 * 1024)

// DefaultPressureThreshold is the usage fraction at which OnPressure fires.
const DefaultPressureThreshold = 0.8

// Priority buckets a cached block's access frequency for eviction
// ordering: cold blocks are evicted before warm, warm before hot.
type Priority int

const (
	PriorityCold Priority = iota
	PriorityWarm
	PriorityHot
)

type entry struct {
	data        []byte
	accessCount int64
	lastAccess  time.Time
	priority    Priority
}

// PressureCallback is invoked (in its own goroutine) the moment usage
// crosses the pressure threshold.
type PressureCallback func(usage, limit int64)

// Cache tracks cached block bytes against a byte budget and ranks
// entries for eviction, adapted from the teacher's component-tracked
// MemoryBudget down to the single "pages" component this module needs.
type Cache struct {
	mu                sync.RWMutex
	limit             int64
	pressureThreshold float64
	usage             int64
	entries           map[bnode.NodeId]*entry
	onPressure        PressureCallback
	wasUnderPressure  bool
}

// New returns an empty Cache with the given byte budget.
func New(limit int64) *Cache {
	if limit <= 0 {
		limit = DefaultByteLimit
	}
	return &Cache{
		limit:             limit,
		pressureThreshold: DefaultPressureThreshold,
		entries:           make(map[bnode.NodeId]*entry),
	}
}

// SetPressureThreshold clamps threshold to [0,1] and sets it.
func (c *Cache) SetPressureThreshold(threshold float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	c.pressureThreshold = threshold
}

// OnPressure registers callback to fire on the transition into pressure.
func (c *Cache) OnPressure(callback PressureCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPressure = callback
}

// Put stores data for id, starting it at PriorityCold.
func (c *Cache) Put(id bnode.NodeId, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[id]; ok {
		c.usage -= int64(len(old.data))
	}
	c.entries[id] = &entry{
		data:       data,
		lastAccess: time.Now(),
		priority:   PriorityCold,
	}
	c.usage += int64(len(data))
	c.checkPressure()
}

// Get returns the cached bytes for id, recording an access that may
// upgrade its eviction priority.
func (c *Cache) Get(id bnode.NodeId) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	e.accessCount++
	e.lastAccess = time.Now()
	switch {
	case e.accessCount >= 10:
		e.priority = PriorityHot
	case e.accessCount >= 3 && e.priority < PriorityWarm:
		e.priority = PriorityWarm
	}
	return e.data, true
}

// Remove evicts id, if present.
func (c *Cache) Remove(id bnode.NodeId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		c.usage -= int64(len(e.data))
		delete(c.entries, id)
	}
}

// EvictionCandidates returns ids to remove to free at least bytesNeeded,
// ordered cold-and-oldest first. The caller decides whether to actually
// remove them (e.g. after flushing dirty blocks back to the store).
func (c *Cache) EvictionCandidates(bytesNeeded int64) []bnode.NodeId {
	c.mu.RLock()
	defer c.mu.RUnlock()

	type ranked struct {
		id bnode.NodeId
		e  *entry
	}
	all := make([]ranked, 0, len(c.entries))
	for id, e := range c.entries {
		all = append(all, ranked{id, e})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].e.priority != all[j].e.priority {
			return all[i].e.priority < all[j].e.priority
		}
		return all[i].e.lastAccess.Before(all[j].e.lastAccess)
	})

	var out []bnode.NodeId
	var freed int64
	for _, r := range all {
		if freed >= bytesNeeded {
			break
		}
		out = append(out, r.id)
		freed += int64(len(r.e.data))
	}
	return out
}

// Usage returns the total bytes currently cached.
func (c *Cache) Usage() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.usage
}

// IsUnderPressure reports whether usage has crossed the threshold.
func (c *Cache) IsUnderPressure() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isUnderPressureLocked()
}

func (c *Cache) isUnderPressureLocked() bool {
	return float64(c.usage) >= float64(c.limit)*c.pressureThreshold
}

func (c *Cache) checkPressure() {
	underPressure := c.isUnderPressureLocked()
	if underPressure && !c.wasUnderPressure && c.onPressure != nil {
		callback := c.onPressure
		usage, limit := c.usage, c.limit
		c.wasUnderPressure = true
		go callback(usage, limit)
	} else if !underPressure {
		c.wasUnderPressure = false
	}
}

// Stats is a point-in-time snapshot of cache usage.
type Stats struct {
	Limit           int64
	Usage           int64
	EntryCount      int
	IsUnderPressure bool
}

// Stats returns a snapshot of the cache's current state.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Limit:           c.limit,
		Usage:           c.usage,
		EntryCount:      len(c.entries),
		IsUnderPressure: c.isUnderPressureLocked(),
	}
}
