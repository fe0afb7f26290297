// Command cowtree is a small inspection/benchmark tool over a
// diskstore-backed tree, in the shape of the teacher's turdb CLI
// (tur/cmd/turdb/main.go) scaled down to this module's operation set:
// no REPL, since there is no SQL language to drive one, just stdlib
// flag-parsed subcommands against a single-file store.
package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"cowtree/pkg/bnode"
	"cowtree/pkg/edittree"
	"cowtree/pkg/store/diskstore"
	"cowtree/pkg/typed"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "put":
		err = runPut(os.Args[2:])
	case "get":
		err = runGet(os.Args[2:])
	case "scan":
		err = runScan(os.Args[2:])
	case "bench":
		err = runBench(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cowtree: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cowtree <put|get|scan|bench> [flags]")
}

const defaultMaxBlockSize = 4096

func rawByteFuncs() typed.Funcs[[]byte, []byte] {
	return typed.Funcs[[]byte, []byte]{
		KeyCompare:     typed.BytesCompare,
		MarshalKey:     typed.MarshalVarintBytes,
		UnmarshalKey:   typed.UnmarshalVarintBytes,
		KeySize:        typed.VarintBytesSize,
		MarshalValue:   typed.MarshalVarintBytes,
		UnmarshalValue: typed.UnmarshalVarintBytes,
		ValueSize:      typed.VarintBytesSize,
	}
}

// openTree opens (creating if needed) the single-file store at path and
// the typed tree rooted at whatever root id a prior run left behind, in
// a small sidecar file next to the store — the store itself only knows
// about block ids, not which one is "the" root (spec.md's core has no
// such concept; a caller always threads the root id through itself).
func openTree(path string) (*diskstore.MmapStore, *typed.Tree[[]byte, []byte], error) {
	st, err := diskstore.OpenMmapStore(path, defaultMaxBlockSize)
	if err != nil {
		return nil, nil, err
	}
	rootID, err := readRootID(path)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	tr, err := typed.Open[[]byte, []byte](st, rootID, rawByteFuncs(), edittree.Config{})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, tr, nil
}

func closeTree(st *diskstore.MmapStore, path string, tr *typed.Tree[[]byte, []byte]) error {
	if err := writeRootID(path, tr.RootID()); err != nil {
		st.Close()
		return err
	}
	return st.Close()
}

func rootSidecarPath(path string) string { return path + ".root" }

func readRootID(path string) (bnode.NodeId, error) {
	b, err := os.ReadFile(rootSidecarPath(path))
	if errors.Is(err, os.ErrNotExist) {
		return bnode.NoID, nil
	}
	if err != nil {
		return bnode.NoID, err
	}
	if len(b) != 8 {
		return bnode.NoID, fmt.Errorf("cowtree: corrupt root pointer file %s", rootSidecarPath(path))
	}
	return bnode.NodeId(binary.BigEndian.Uint64(b)), nil
}

func writeRootID(path string, id bnode.NodeId) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return os.WriteFile(rootSidecarPath(path), b, 0o644)
}

func runPut(args []string) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	db := fs.String("db", "", "path to the store file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if *db == "" || len(rest) != 2 {
		return errors.New("usage: cowtree put --db <file> <key> <value>")
	}

	st, tr, err := openTree(*db)
	if err != nil {
		return err
	}
	if err := tr.Insert([]byte(rest[0]), []byte(rest[1])); err != nil {
		st.Close()
		return err
	}
	if _, err := tr.Flush(); err != nil {
		st.Close()
		return err
	}
	return closeTree(st, *db, tr)
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	db := fs.String("db", "", "path to the store file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if *db == "" || len(rest) != 1 {
		return errors.New("usage: cowtree get --db <file> <key>")
	}

	st, tr, err := openTree(*db)
	if err != nil {
		return err
	}
	defer st.Close()

	value, ok, err := tr.Get([]byte(rest[0]))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key %q not found", rest[0])
	}
	fmt.Println(string(value))
	return nil
}

func runScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	db := fs.String("db", "", "path to the store file")
	limit := fs.Int("limit", 0, "stop after N items (0 = unlimited)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *db == "" {
		return errors.New("usage: cowtree scan --db <file> [--limit N]")
	}

	st, tr, err := openTree(*db)
	if err != nil {
		return err
	}
	defer st.Close()

	it, err := tr.First()
	if err != nil {
		return err
	}
	printed := 0
	for it.Valid() {
		if *limit > 0 && printed >= *limit {
			break
		}
		fmt.Printf("%d\t%s\t%s\n", it.Rank(), it.Key(), it.Value())
		printed++
		if err := it.Next(); err != nil {
			return err
		}
	}
	return nil
}

func runBench(args []string) error {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	db := fs.String("db", "", "path to the store file")
	n := fs.Int("n", 10000, "number of key/value pairs to insert")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *db == "" {
		return errors.New("usage: cowtree bench --db <file> [--n N]")
	}

	st, err := diskstore.OpenMmapStore(*db, defaultMaxBlockSize)
	if err != nil {
		return err
	}
	defer st.Close()

	tr, err := typed.Open[[]byte, []byte](st, bnode.NoID, rawByteFuncs(), edittree.Config{})
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(1))
	key := make([]byte, 16)
	value := make([]byte, 64)

	start := time.Now()
	for i := 0; i < *n; i++ {
		rng.Read(key)
		rng.Read(value)
		if err := tr.Insert(append([]byte(nil), key...), append([]byte(nil), value...)); err != nil {
			return err
		}
	}
	insertElapsed := time.Since(start)

	flushStart := time.Now()
	report, err := tr.Flush()
	if err != nil {
		return err
	}
	flushElapsed := time.Since(flushStart)

	fmt.Printf("inserted %d pairs in %s (%.0f ops/s)\n", *n, insertElapsed, float64(*n)/insertElapsed.Seconds())
	fmt.Printf("flushed in %s: %d pages created, %d obsoleted\n", flushElapsed, len(report.CreatedIDs), len(report.ObsoleteIDs))
	return nil
}
