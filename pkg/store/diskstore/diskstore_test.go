package diskstore

import (
	"path/filepath"
	"testing"

	"cowtree/pkg/bnode"
	"cowtree/pkg/store"
)

// conformance runs the same battery of checks spec.md §6 asks any
// store.Store implementation to satisfy, against an already-open store.
func conformance(t *testing.T, s store.Store) {
	t.Helper()

	ids, err := s.AllocateIDs(2)
	if err != nil {
		t.Fatalf("AllocateIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] == ids[1] {
		t.Fatalf("expected 2 distinct ids, got %v", ids)
	}

	want := []byte("a leaf node's serialized bytes")
	if err := s.PutAll([]store.Block{{ID: ids[0], Bytes: want}}); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	got, err := s.Get(ids[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}

	if _, err := s.Get(ids[1]); err != store.ErrBlockNotFound {
		t.Fatalf("unwritten id: got %v, want ErrBlockNotFound", err)
	}

	if err := s.DeleteAll([]bnode.NodeId{ids[0]}); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if _, err := s.Get(ids[0]); err != store.ErrBlockNotFound {
		t.Fatalf("deleted id: got %v, want ErrBlockNotFound", err)
	}

	oversize := make([]byte, s.MaxBlockSize()+1)
	if err := s.PutAll([]store.Block{{ID: ids[1], Bytes: oversize}}); err != store.ErrBlockTooLarge {
		t.Fatalf("oversize block: got %v, want ErrBlockTooLarge", err)
	}
}

func TestFileStoreConformance(t *testing.T) {
	s, err := OpenFileStore(t.TempDir(), 4096)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	defer s.Close()
	conformance(t, s)
}

func TestMmapStoreConformance(t *testing.T) {
	s, err := OpenMmapStore(filepath.Join(t.TempDir(), "cowtree.db"), 4096)
	if err != nil {
		t.Fatalf("OpenMmapStore: %v", err)
	}
	defer s.Close()
	conformance(t, s)
}

func TestMmapStoreReopenPreservesNextID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cowtree.db")
	s, err := OpenMmapStore(path, 4096)
	if err != nil {
		t.Fatalf("OpenMmapStore: %v", err)
	}
	ids, err := s.AllocateIDs(3)
	if err != nil {
		t.Fatalf("AllocateIDs: %v", err)
	}
	if err := s.PutAll([]store.Block{{ID: ids[2], Bytes: []byte("x")}}); err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenMmapStore(path, 4096)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ids[2])
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "x" {
		t.Fatalf("got %q, want %q", got, "x")
	}

	more, err := reopened.AllocateIDs(1)
	if err != nil {
		t.Fatalf("AllocateIDs after reopen: %v", err)
	}
	if more[0] <= ids[2] {
		t.Fatalf("expected fresh id above %d, got %d", ids[2], more[0])
	}
}

func TestFileStoreReopenRecoversNextID(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir, 4096)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	ids, _ := s.AllocateIDs(5)
	if err := s.PutAll([]store.Block{{ID: ids[4], Bytes: []byte("y")}}); err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	s.Close()

	reopened, err := OpenFileStore(dir, 4096)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	more, err := reopened.AllocateIDs(1)
	if err != nil {
		t.Fatalf("AllocateIDs: %v", err)
	}
	if more[0] <= ids[4] {
		t.Fatalf("expected fresh id above %d, got %d", ids[4], more[0])
	}
}
