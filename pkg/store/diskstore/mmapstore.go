package diskstore

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/go-logr/logr"

	"cowtree/pkg/blog"
	"cowtree/pkg/bnode"
	"cowtree/pkg/store"
)

// Single-file layout, adapted from the teacher's pkg/pager/pager.go and
// pkg/dbfile/header.go:
//
//	[0, headerSize)                       fixed header
//	[headerSize, headerSize+slotSize)     slot for id 1
//	[headerSize+slotSize, +2*slotSize)    slot for id 2
//	...
//
// Each slot holds a 4-byte big-endian length prefix followed by
// maxBlockSize bytes of payload (a live block's bytes, or, when the
// slot is free, a freelistTrunk).
const (
	magic      = "cowtreestorev1\x00\x00"
	headerSize = 64
	lenPrefix  = 4
)

var errBadMagic = errors.New("diskstore: not a cowtree store file (bad magic)")

// MmapStore is a single growable memory-mapped file backing
// store.Store, the production disk layout for this module (grounded on
// tur/pkg/pager).
type MmapStore struct {
	mu     sync.Mutex
	mf     *mmapFile
	path   string
	closed bool

	maxBlockSize uint32
	slotSize     int64
	nextID       bnode.NodeId
	freelistHead bnode.NodeId

	log logr.Logger
}

// OpenMmapStore opens (creating if necessary) a single-file store at
// path with the given block size ceiling. An optional logr.Logger
// records structural events (open, grow, batch writes) at blog.V1;
// omitting it (or passing the zero value) uses blog.Discard().
func OpenMmapStore(path string, maxBlockSize uint32, logger ...logr.Logger) (*MmapStore, error) {
	log := blog.Discard()
	if len(logger) > 0 {
		log = logger[0]
	}

	slotSize := int64(lenPrefix) + int64(maxBlockSize)
	mf, err := openMmapFile(path, headerSize+slotSize) // at least room for one slot
	if err != nil {
		return nil, err
	}

	s := &MmapStore{
		mf:           mf,
		path:         path,
		maxBlockSize: maxBlockSize,
		slotSize:     slotSize,
		log:          log,
	}

	created := isZero(mf.Slice(0, len(magic)))
	if created {
		s.initHeader()
	} else if err := s.loadHeader(); err != nil {
		mf.Close()
		return nil, err
	}

	s.log.V(blog.V1).Info("store opened", "path", path, "maxBlockSize", maxBlockSize, "created", created, "nextID", s.nextID)
	return s, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func (s *MmapStore) initHeader() {
	s.nextID = 1
	s.freelistHead = 0
	s.writeHeader()
}

func (s *MmapStore) loadHeader() error {
	h := s.mf.Slice(0, headerSize)
	if string(h[:len(magic)]) != magic {
		return errBadMagic
	}
	storedMax := binary.BigEndian.Uint32(h[20:24])
	if storedMax != s.maxBlockSize {
		return errors.New("diskstore: maxBlockSize mismatch with existing store file")
	}
	s.nextID = bnode.NodeId(binary.BigEndian.Uint64(h[24:32]))
	s.freelistHead = bnode.NodeId(binary.BigEndian.Uint64(h[32:40]))
	return nil
}

func (s *MmapStore) writeHeader() {
	h := s.mf.Slice(0, headerSize)
	copy(h, magic)
	binary.BigEndian.PutUint32(h[16:20], uint32(s.slotSize))
	binary.BigEndian.PutUint32(h[20:24], s.maxBlockSize)
	binary.BigEndian.PutUint64(h[24:32], uint64(s.nextID))
	binary.BigEndian.PutUint64(h[32:40], uint64(s.freelistHead))
}

func (s *MmapStore) slotOffset(id bnode.NodeId) int64 {
	return headerSize + (int64(id)-1)*s.slotSize
}

func (s *MmapStore) ensureCapacity(id bnode.NodeId) error {
	needed := s.slotOffset(id) + s.slotSize
	if needed <= s.mf.Size() {
		return nil
	}
	// Grow geometrically to amortize remaps, matching the teacher's
	// pager growth style.
	newSize := s.mf.Size() * 2
	if newSize < needed {
		newSize = needed
	}
	s.log.V(blog.V1).Info("store grown", "path", s.path, "oldSize", s.mf.Size(), "newSize", newSize)
	return s.mf.Grow(newSize)
}

func (s *MmapStore) AllocateIDs(n int) ([]bnode.NodeId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	ids := make([]bnode.NodeId, 0, n)
	for len(ids) < n {
		if id, ok := s.popFreelist(); ok {
			ids = append(ids, id)
			continue
		}
		ids = append(ids, s.nextID)
		s.nextID++
	}
	for _, id := range ids {
		if err := s.ensureCapacity(id); err != nil {
			return nil, err
		}
	}
	s.writeHeader()
	s.log.V(blog.V2).Info("ids allocated", "count", len(ids), "nextID", s.nextID)
	return ids, nil
}

func (s *MmapStore) popFreelist() (bnode.NodeId, bool) {
	if s.freelistHead == 0 {
		return 0, false
	}
	trunk := decodeTrunk(s.mf.Slice(int(s.slotOffset(s.freelistHead))+lenPrefix, int(s.maxBlockSize)))
	id, ok := trunk.popLeaf()
	if !ok {
		// Empty trunk: the trunk slot itself becomes the returned id,
		// and we move the head down the chain.
		reused := s.freelistHead
		s.freelistHead = trunk.NextTrunk
		return reused, true
	}
	s.writeTrunk(s.freelistHead, trunk)
	return id, true
}

func (s *MmapStore) writeTrunk(at bnode.NodeId, trunk *freelistTrunk) {
	payload := s.mf.Slice(int(s.slotOffset(at))+lenPrefix, int(s.maxBlockSize))
	encodeTrunk(trunk, payload)
	// A free slot keeps a zero length prefix, so Get reports it as absent.
	lenBuf := s.mf.Slice(int(s.slotOffset(at)), lenPrefix)
	binary.BigEndian.PutUint32(lenBuf, 0)
}

func (s *MmapStore) Get(id bnode.NodeId) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	if s.slotOffset(id)+s.slotSize > s.mf.Size() {
		return nil, store.ErrBlockNotFound
	}
	lenBuf := s.mf.Slice(int(s.slotOffset(id)), lenPrefix)
	n := binary.BigEndian.Uint32(lenBuf)
	if n == 0 {
		return nil, store.ErrBlockNotFound
	}
	payload := s.mf.Slice(int(s.slotOffset(id))+lenPrefix, int(n))
	out := make([]byte, n)
	copy(out, payload)
	return out, nil
}

func (s *MmapStore) PutAll(blocks []store.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	for _, b := range blocks {
		if uint32(len(b.Bytes)) > s.maxBlockSize {
			return store.ErrBlockTooLarge
		}
	}
	for _, b := range blocks {
		if err := s.ensureCapacity(b.ID); err != nil {
			return err
		}
		lenBuf := s.mf.Slice(int(s.slotOffset(b.ID)), lenPrefix)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(b.Bytes)))
		payload := s.mf.Slice(int(s.slotOffset(b.ID))+lenPrefix, len(b.Bytes))
		copy(payload, b.Bytes)
	}
	s.log.V(blog.V1).Info("batch written", "blocks", len(blocks))
	return s.mf.Sync()
}

func (s *MmapStore) DeleteAll(ids []bnode.NodeId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	for _, id := range ids {
		s.freeOne(id)
	}
	s.writeHeader()
	return nil
}

func (s *MmapStore) freeOne(id bnode.NodeId) {
	// Zero the length prefix so a stale Get can't return freed data.
	lenBuf := s.mf.Slice(int(s.slotOffset(id)), lenPrefix)
	binary.BigEndian.PutUint32(lenBuf, 0)

	if s.freelistHead == 0 {
		trunk := &freelistTrunk{}
		s.writeTrunk(id, trunk)
		s.freelistHead = id
		return
	}

	trunk := decodeTrunk(s.mf.Slice(int(s.slotOffset(s.freelistHead))+lenPrefix, int(s.maxBlockSize)))
	if trunk.isFull(int(s.maxBlockSize)) {
		trunk := &freelistTrunk{NextTrunk: s.freelistHead}
		s.writeTrunk(id, trunk)
		s.freelistHead = id
		return
	}
	trunk.addLeaf(id)
	s.writeTrunk(s.freelistHead, trunk)
}

func (s *MmapStore) MaxBlockSize() uint32 {
	return s.maxBlockSize
}

func (s *MmapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.writeHeader()
	if err := s.mf.Sync(); err != nil {
		s.mf.Close()
		s.closed = true
		return err
	}
	s.closed = true
	s.log.V(blog.V1).Info("store closed", "path", s.path)
	return s.mf.Close()
}
