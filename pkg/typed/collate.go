package typed

import (
	"bytes"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// CollatedStringCompare returns a KeyCompare suitable for a
// typed.Tree[string, V] (or any K marshaled as UTF-8 text): locale-
// aware ordering via golang.org/x/text/collate instead of raw byte
// comparison, so e.g. accented characters sort next to their
// unaccented counterparts under tag rather than after every ASCII
// byte.
func CollatedStringCompare(tag language.Tag) func(a, b []byte) int {
	col := collate.New(tag)
	return func(a, b []byte) int {
		return col.Compare(a, b)
	}
}

// BytesCompare is the raw, locale-agnostic comparator — the default
// anyone not indexing human text should reach for.
func BytesCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}
