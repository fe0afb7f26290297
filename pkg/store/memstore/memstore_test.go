package memstore

import (
	"testing"

	"cowtree/pkg/bnode"
	"cowtree/pkg/store"
)

func TestAllocateIDsAreFreshAndAscending(t *testing.T) {
	s := New(4096)
	ids, err := s.AllocateIDs(3)
	if err != nil {
		t.Fatalf("AllocateIDs: %v", err)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not ascending: %v", ids)
		}
	}
	more, err := s.AllocateIDs(1)
	if err != nil {
		t.Fatalf("AllocateIDs: %v", err)
	}
	if more[0] <= ids[len(ids)-1] {
		t.Fatalf("second batch overlaps first: %v then %v", ids, more)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := New(4096)
	ids, _ := s.AllocateIDs(1)
	want := []byte("hello block")
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
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := New(4096)
	if _, err := s.Get(bnode.NodeId(999)); err != store.ErrBlockNotFound {
		t.Fatalf("got %v, want ErrBlockNotFound", err)
	}
}

func TestPutAllRejectsOversizeBlock(t *testing.T) {
	s := New(8)
	ids, _ := s.AllocateIDs(1)
	err := s.PutAll([]store.Block{{ID: ids[0], Bytes: make([]byte, 9)}})
	if err != store.ErrBlockTooLarge {
		t.Fatalf("got %v, want ErrBlockTooLarge", err)
	}
}

func TestDeleteAllRemovesBlocks(t *testing.T) {
	s := New(4096)
	ids, _ := s.AllocateIDs(2)
	s.PutAll([]store.Block{{ID: ids[0], Bytes: []byte("a")}, {ID: ids[1], Bytes: []byte("b")}})
	if err := s.DeleteAll([]bnode.NodeId{ids[0]}); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if _, err := s.Get(ids[0]); err != store.ErrBlockNotFound {
		t.Fatalf("expected block %d gone, got err %v", ids[0], err)
	}
	if _, err := s.Get(ids[1]); err != nil {
		t.Fatalf("expected block %d to survive, got err %v", ids[1], err)
	}
}

func TestClosedStoreRejectsCalls(t *testing.T) {
	s := New(4096)
	s.Close()
	if _, err := s.AllocateIDs(1); err != store.ErrClosed {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}
