package typed

import (
	"testing"

	"golang.org/x/text/language"

	"cowtree/pkg/bnode"
	"cowtree/pkg/edittree"
	"cowtree/pkg/store/memstore"
)

func uint64Funcs() Funcs[uint64, uint64] {
	return Funcs[uint64, uint64]{
		KeyCompare:     BytesCompare,
		MarshalKey:     MarshalUint64,
		UnmarshalKey:   UnmarshalUint64,
		KeySize:        Fixed8Size,
		MarshalValue:   MarshalUint64,
		UnmarshalValue: UnmarshalUint64,
		ValueSize:      Fixed8Size,
	}
}

func TestTypedInsertGetFlush(t *testing.T) {
	st := memstore.New(1024)
	tr, err := Open[uint64, uint64](st, bnode.NoID, uint64Funcs(), edittree.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := uint64(0); i < 20; i++ {
		if err := tr.Insert(i, i*10); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	// Reads before Flush see the tree's own pending writes.
	if v, ok, err := tr.Get(5); err != nil || !ok || v != 50 {
		t.Fatalf("Get(5) pre-flush: v=%d ok=%v err=%v", v, ok, err)
	}

	if _, err := tr.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	v, ok, err := tr.Get(5)
	if err != nil || !ok || v != 50 {
		t.Fatalf("Get(5) post-flush: v=%d ok=%v err=%v", v, ok, err)
	}

	it, err := tr.Find(10)
	if err != nil {
		t.Fatalf("Find(10): %v", err)
	}
	if !it.Valid() || it.Key() != 10 || it.Value() != 100 {
		t.Fatalf("Find(10): key=%d value=%d valid=%v", it.Key(), it.Value(), it.Valid())
	}
	if it.Rank() != 10 {
		t.Fatalf("expected rank 10, got %d", it.Rank())
	}

	seekIt, err := tr.Seek(0)
	if err != nil {
		t.Fatalf("Seek(0): %v", err)
	}
	if !seekIt.Valid() || seekIt.Key() != 0 {
		t.Fatalf("expected seek(0) to land on key 0, got %d", seekIt.Key())
	}
}

func stringFuncs() Funcs[string, string] {
	return Funcs[string, string]{
		KeyCompare:     BytesCompare,
		MarshalKey:     MarshalVarintString,
		UnmarshalKey:   UnmarshalVarintString,
		KeySize:        VarintBytesSize,
		MarshalValue:   MarshalVarintString,
		UnmarshalValue: UnmarshalVarintString,
		ValueSize:      VarintBytesSize,
	}
}

func TestTypedVarintStrings(t *testing.T) {
	st := memstore.New(1024)
	tr, err := Open[string, string](st, bnode.NoID, stringFuncs(), edittree.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	words := []string{"apple", "banana", "cherry", "date"}
	for _, w := range words {
		if err := tr.Insert(w, w+"-value"); err != nil {
			t.Fatalf("Insert(%q): %v", w, err)
		}
	}
	if _, err := tr.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	v, ok, err := tr.Get("cherry")
	if err != nil || !ok || v != "cherry-value" {
		t.Fatalf("Get(cherry): v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestCollatedStringCompareOrdersLocaleAware(t *testing.T) {
	cmp := CollatedStringCompare(language.English)
	if cmp([]byte("apple"), []byte("banana")) >= 0 {
		t.Fatalf("expected apple < banana")
	}
	if cmp([]byte("a"), []byte("a")) != 0 {
		t.Fatalf("expected equal strings to compare equal")
	}
}
