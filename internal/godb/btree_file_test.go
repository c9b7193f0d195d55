package godb

import (
	"os"
	"testing"
)

// makeBTreeTestVars shrinks PageSize so a handful of tuples is enough to
// force real splits and merges, rather than needing thousands of rows.
func makeBTreeTestVars(t *testing.T, name string) (*TupleDesc, *BTreeFile, *BufferPool) {
	t.Helper()
	origSize := PageSize
	PageSize = 640
	t.Cleanup(func() { PageSize = origSize })

	path := name + ".dat"
	os.Remove(path)
	t.Cleanup(func() { os.Remove(path) })

	td := &TupleDesc{Fields: []FieldType{
		{Fname: "key", Ftype: IntType},
		{Fname: "value", Ftype: StringType},
	}}
	bp, err := NewBufferPool(200)
	if err != nil {
		t.Fatalf("NewBufferPool: %v", err)
	}
	bf, err := NewBTreeFile(path, td, 0, bp)
	if err != nil {
		t.Fatalf("NewBTreeFile: %v", err)
	}
	bp.catalog.AddTable(bf, name, "")
	return td, bf, bp
}

func scanBTreeKeys(t *testing.T, bf *BTreeFile, tid TransactionID) []int32 {
	t.Helper()
	it, err := bf.Iterator(tid)
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
	keys := make([]int32, len(tuples))
	for i, tup := range tuples {
		keys[i] = tup.Fields[0].(IntField).Value
	}
	return keys
}

func TestBTreeInsertKeepsInOrder(t *testing.T) {
	td, bf, bp := makeBTreeTestVars(t, "btree_insert")
	tid := NewTID()
	bp.BeginTransaction(tid)

	order := []int32{50, 10, 40, 20, 60, 30, 5, 70, 25, 45, 15, 35, 55, 65, 75}
	for _, k := range order {
		tup := &Tuple{Desc: *td, Fields: []DBValue{IntField{Value: k}, StringField{Value: "v"}}}
		pages, err := bf.insertTuple(tid, tup)
		if err != nil {
			t.Fatalf("insertTuple(%d): %v", k, err)
		}
		bp.installDirtied(tid, pages)
	}
	bp.TransactionComplete(tid, true)

	if bf.NumPages() <= 2 {
		t.Fatalf("expected the insert sequence to force at least one split, numPages=%d", bf.NumPages())
	}

	tid2 := NewTID()
	bp.BeginTransaction(tid2)
	keys := scanBTreeKeys(t, bf, tid2)
	if len(keys) != len(order) {
		t.Fatalf("expected %d keys, got %d", len(order), len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys out of order at %d: %d then %d", i, keys[i-1], keys[i])
		}
	}
}

func TestBTreeIndexIteratorEquality(t *testing.T) {
	td, bf, bp := makeBTreeTestVars(t, "btree_index_eq")
	tid := NewTID()
	bp.BeginTransaction(tid)

	for k := int32(0); k < 20; k++ {
		tup := &Tuple{Desc: *td, Fields: []DBValue{IntField{Value: k}, StringField{Value: "v"}}}
		pages, err := bf.insertTuple(tid, tup)
		if err != nil {
			t.Fatalf("insertTuple(%d): %v", k, err)
		}
		bp.installDirtied(tid, pages)
	}
	bp.TransactionComplete(tid, true)

	tid2 := NewTID()
	bp.BeginTransaction(tid2)
	it, err := bf.IndexIterator(tid2, OpEq, IntField{Value: 13})
	if err != nil {
		t.Fatalf("IndexIterator: %v", err)
	}
	if err := it.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	tuples, err := drainAll(it)
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	if len(tuples) != 1 || tuples[0].Fields[0].(IntField).Value != 13 {
		t.Fatalf("expected exactly key 13, got %+v", tuples)
	}
}

// assertMinOccupancy walks every resident internal/leaf page below the root
// and fails the test if any non-root page holds fewer than ceil(capacity/2)
// entries, directly checking the invariant spec.md names for B+ tree delete:
// no intermediate state may leave a non-root page below minimum occupancy.
func assertMinOccupancy(t *testing.T, bf *BTreeFile, tid TransactionID) {
	t.Helper()

	rootPg, err := bf.bufPool.GetPage(tid, NewTreePageID(bf.id, 0, RootPtrPage), ReadOnly)
	if err != nil {
		t.Fatalf("assertMinOccupancy: read root ptr page: %v", err)
	}
	rp := rootPg.(*rootPtrPage)

	var walk func(pid PageID, isRoot bool)
	walk = func(pid PageID, isRoot bool) {
		pg, err := bf.bufPool.GetPage(tid, pid, ReadOnly)
		if err != nil {
			t.Fatalf("assertMinOccupancy: read page %+v: %v", pid, err)
		}
		switch p := pg.(type) {
		case *internalPage:
			ceilHalf := (p.numSlots + 1) / 2
			if !isRoot && len(p.entries) < ceilHalf {
				t.Fatalf("internal page %d below minimum occupancy: %d entries, want >= %d (numSlots=%d)",
					pid.PageNo, len(p.entries), ceilHalf, p.numSlots)
			}
			for _, e := range p.entries {
				walk(NewTreePageID(bf.id, e.leftChild, p.childCategory), false)
			}
			if len(p.entries) > 0 {
				last := p.entries[len(p.entries)-1]
				walk(NewTreePageID(bf.id, last.rightChild, p.childCategory), false)
			}
		case *leafPage:
			ceilHalf := (p.numSlots + 1) / 2
			if !isRoot && len(p.tuples) < ceilHalf {
				t.Fatalf("leaf page %d below minimum occupancy: %d tuples, want >= %d (numSlots=%d)",
					pid.PageNo, len(p.tuples), ceilHalf, p.numSlots)
			}
		default:
			t.Fatalf("assertMinOccupancy: unexpected page type %T at %+v", pg, pid)
		}
	}

	walk(NewTreePageID(bf.id, rp.rootPageNo, rp.rootCategory), true)
}

func TestBTreeDeleteTriggersMergeAndStaysOrdered(t *testing.T) {
	td, bf, bp := makeBTreeTestVars(t, "btree_delete")
	tid := NewTID()
	bp.BeginTransaction(tid)

	var inserted []*Tuple
	for k := int32(0); k < 30; k++ {
		tup := &Tuple{Desc: *td, Fields: []DBValue{IntField{Value: k}, StringField{Value: "v"}}}
		pages, err := bf.insertTuple(tid, tup)
		if err != nil {
			t.Fatalf("insertTuple(%d): %v", k, err)
		}
		bp.installDirtied(tid, pages)
		inserted = append(inserted, tup)
	}
	bp.TransactionComplete(tid, true)

	tid2 := NewTID()
	bp.BeginTransaction(tid2)
	// Delete most of the keys, which should force leaf/internal merges as
	// occupancy drops well below half.
	for i := 0; i < 25; i++ {
		pages, err := bf.deleteTuple(tid2, inserted[i])
		if err != nil {
			t.Fatalf("deleteTuple(%d): %v", i, err)
		}
		bp.installDirtied(tid2, pages)
		assertMinOccupancy(t, bf, tid2)
	}
	bp.TransactionComplete(tid2, true)

	tid3 := NewTID()
	bp.BeginTransaction(tid3)
	keys := scanBTreeKeys(t, bf, tid3)
	if len(keys) != 5 {
		t.Fatalf("expected 5 remaining keys, got %d: %v", len(keys), keys)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys out of order after merge at %d: %d then %d", i, keys[i-1], keys[i])
		}
	}
}
