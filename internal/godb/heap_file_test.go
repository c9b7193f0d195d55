package godb

import (
	"os"
	"testing"
)

func makeHeapFileTestVars(t *testing.T, name string) (*TupleDesc, *HeapFile, *BufferPool) {
	t.Helper()
	path := name + ".dat"
	os.Remove(path)
	t.Cleanup(func() { os.Remove(path) })
	td := &TupleDesc{Fields: []FieldType{
		{Fname: "name", Ftype: StringType},
		{Fname: "age", Ftype: IntType},
	}}
	bp, err := NewBufferPool(3)
	if err != nil {
		t.Fatalf("NewBufferPool: %v", err)
	}
	hf, err := NewHeapFile(path, td, bp)
	if err != nil {
		t.Fatalf("NewHeapFile: %v", err)
	}
	bp.catalog.AddTable(hf, name, "")
	return td, hf, bp
}

// TestHeapFileFreshFileReportsOnePage checks the spec's NumPages invariant
// directly: a brand-new, still-empty backing file reports 1 page, not 0,
// before any tuple has ever been inserted.
func TestHeapFileFreshFileReportsOnePage(t *testing.T) {
	_, hf, _ := makeHeapFileTestVars(t, "heap_fresh")
	if got := hf.NumPages(); got != 1 {
		t.Fatalf("expected a fresh file to report 1 page, got %d", got)
	}
}

func TestHeapFileInsertAndScan(t *testing.T) {
	td, hf, bp := makeHeapFileTestVars(t, "heap_insert")
	tid := NewTID()
	bp.BeginTransaction(tid)

	for i := 0; i < 50; i++ {
		tup := &Tuple{Desc: *td, Fields: []DBValue{StringField{Value: "row"}, IntField{Value: int32(i)}}}
		if _, err := hf.insertTuple(tid, tup); err != nil {
			t.Fatalf("insertTuple %d: %v", i, err)
		}
	}
	bp.TransactionComplete(tid, true)

	tid2 := NewTID()
	bp.BeginTransaction(tid2)
	it, err := hf.Iterator(tid2)
	if err != nil {
		t.Fatalf("Iterator: %v", err)
	}
	if err := it.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	tuples, err := drainAll(it)
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	if len(tuples) != 50 {
		t.Fatalf("expected 50 tuples, got %d", len(tuples))
	}
}

func TestHeapFileDelete(t *testing.T) {
	td, hf, bp := makeHeapFileTestVars(t, "heap_delete")
	tid := NewTID()
	bp.BeginTransaction(tid)

	tup := &Tuple{Desc: *td, Fields: []DBValue{StringField{Value: "row"}, IntField{Value: 1}}}
	pages, err := hf.insertTuple(tid, tup)
	if err != nil {
		t.Fatalf("insertTuple: %v", err)
	}
	bp.installDirtied(tid, pages)

	if tup.Rid == nil {
		t.Fatalf("expected insertTuple to stamp a RecordID")
	}
	if _, err := hf.deleteTuple(tid, tup); err != nil {
		t.Fatalf("deleteTuple: %v", err)
	}
	bp.TransactionComplete(tid, true)

	tid2 := NewTID()
	bp.BeginTransaction(tid2)
	it, _ := hf.Iterator(tid2)
	it.Open()
	tuples, err := drainAll(it)
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	if len(tuples) != 0 {
		t.Fatalf("expected empty table after delete, got %d", len(tuples))
	}
}
