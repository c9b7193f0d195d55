package godb

import (
	"bytes"
	"testing"
)

// TestHeapPageRoundTrip checks the spec's named testable property —
// decode(encode(page)) == page — for heapPage: a partially-filled page's
// bitmap and tuple bytes must survive pageData/initFromBuffer unchanged.
func TestHeapPageRoundTrip(t *testing.T) {
	_, hf, _ := makeHeapFileTestVars(t, "heap_page_roundtrip")
	desc := hf.Descriptor()

	page, err := newHeapPage(desc, 0, hf)
	if err != nil {
		t.Fatalf("newHeapPage: %v", err)
	}
	for i := 0; i < 3; i++ {
		tup := &Tuple{Desc: *desc, Fields: []DBValue{StringField{Value: "row"}, IntField{Value: int32(i)}}}
		if _, err := page.insertTuple(tup); err != nil {
			t.Fatalf("insertTuple: %v", err)
		}
	}

	data, err := page.pageData()
	if err != nil {
		t.Fatalf("pageData: %v", err)
	}
	if len(data) != PageSize {
		t.Fatalf("expected %d bytes, got %d", PageSize, len(data))
	}

	decoded, err := newHeapPage(desc, 0, hf)
	if err != nil {
		t.Fatalf("newHeapPage: %v", err)
	}
	if err := decoded.initFromBuffer(bytes.NewBuffer(data)); err != nil {
		t.Fatalf("initFromBuffer: %v", err)
	}

	if decoded.getNumEmptySlots() != page.getNumEmptySlots() {
		t.Fatalf("empty slot count mismatch: got %d, want %d", decoded.getNumEmptySlots(), page.getNumEmptySlots())
	}
	for i, want := range page.tuples {
		got := decoded.tuples[i]
		if (want == nil) != (got == nil) {
			t.Fatalf("slot %d: presence mismatch", i)
		}
		if want != nil && !want.equals(got) {
			t.Fatalf("slot %d: tuple mismatch, want %+v got %+v", i, want, got)
		}
	}
}

// TestRootPtrPageRoundTrip exercises rootPtrPage's tiny fixed-width format.
func TestRootPtrPageRoundTrip(t *testing.T) {
	_, bf, _ := makeBTreeTestVars(t, "rootptr_roundtrip")

	page := newRootPtrPage(bf)
	page.rootPageNo = 7
	page.rootCategory = LeafPage
	page.headerPageNo = 3

	data, err := page.pageData()
	if err != nil {
		t.Fatalf("pageData: %v", err)
	}
	if len(data) != RootPtrPageSize {
		t.Fatalf("expected %d bytes, got %d", RootPtrPageSize, len(data))
	}

	decoded := newRootPtrPage(bf)
	if err := decoded.initFromBuffer(bytes.NewBuffer(data)); err != nil {
		t.Fatalf("initFromBuffer: %v", err)
	}
	if decoded.rootPageNo != page.rootPageNo || decoded.rootCategory != page.rootCategory || decoded.headerPageNo != page.headerPageNo {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, page)
	}
}

// TestHeaderPageRoundTrip checks the free-page bitmap chain link survives
// encode/decode, including a scattered set of allocated bits.
func TestHeaderPageRoundTrip(t *testing.T) {
	_, bf, _ := makeBTreeTestVars(t, "header_roundtrip")

	page := newHeaderPage(1, bf)
	page.prevPageNo = 0
	page.nextPageNo = 5
	for _, i := range []int{0, 1, 3, 8, 17} {
		setBit(page.bitmap, i, true)
	}

	data, err := page.pageData()
	if err != nil {
		t.Fatalf("pageData: %v", err)
	}
	if len(data) != PageSize {
		t.Fatalf("expected %d bytes, got %d", PageSize, len(data))
	}

	decoded := newHeaderPage(1, bf)
	if err := decoded.initFromBuffer(bytes.NewBuffer(data)); err != nil {
		t.Fatalf("initFromBuffer: %v", err)
	}
	if decoded.prevPageNo != page.prevPageNo || decoded.nextPageNo != page.nextPageNo {
		t.Fatalf("link mismatch: got (%d,%d), want (%d,%d)", decoded.prevPageNo, decoded.nextPageNo, page.prevPageNo, page.nextPageNo)
	}
	if !bytes.Equal(decoded.bitmap, page.bitmap) {
		t.Fatalf("bitmap mismatch: got %v, want %v", decoded.bitmap, page.bitmap)
	}
}

// TestInternalPageRoundTrip checks keys and child pointers survive
// encode/decode for a partially-filled internal page.
func TestInternalPageRoundTrip(t *testing.T) {
	_, bf, _ := makeBTreeTestVars(t, "internal_roundtrip")

	page := newInternalPage(IntType, 1, bf)
	page.parentPageNo = 0
	page.parentCategory = RootPtrPage
	page.childCategory = LeafPage
	page.entries = []*btreeEntry{
		{leftChild: 2, rightChild: 3, key: IntField{Value: 10}},
		{leftChild: 3, rightChild: 4, key: IntField{Value: 20}},
	}

	data, err := page.pageData()
	if err != nil {
		t.Fatalf("pageData: %v", err)
	}
	if len(data) != PageSize {
		t.Fatalf("expected %d bytes, got %d", PageSize, len(data))
	}

	decoded := newInternalPage(IntType, 1, bf)
	if err := decoded.initFromBuffer(bytes.NewBuffer(data)); err != nil {
		t.Fatalf("initFromBuffer: %v", err)
	}
	if decoded.parentPageNo != page.parentPageNo || decoded.parentCategory != page.parentCategory || decoded.childCategory != page.childCategory {
		t.Fatalf("header mismatch: got %+v, want %+v", decoded, page)
	}
	if len(decoded.entries) != len(page.entries) {
		t.Fatalf("expected %d entries, got %d", len(page.entries), len(decoded.entries))
	}
	for i, want := range page.entries {
		got := decoded.entries[i]
		if got.leftChild != want.leftChild || got.rightChild != want.rightChild {
			t.Fatalf("entry %d: child mismatch, want %+v got %+v", i, want, got)
		}
		cmp, err := compareValues(got.key, want.key)
		if err != nil || cmp != OrderedEqual {
			t.Fatalf("entry %d: key mismatch, want %v got %v", i, want.key, got.key)
		}
	}
}

// TestLeafPageRoundTrip checks tuples and sibling/parent links survive
// encode/decode for a partially-filled leaf page.
func TestLeafPageRoundTrip(t *testing.T) {
	td, bf, _ := makeBTreeTestVars(t, "leaf_roundtrip")

	page := newLeafPage(td, 0, 2, bf)
	page.leftPageNo = 1
	page.rightPageNo = 3
	page.parentPageNo = 0
	page.parentCategory = RootPtrPage
	for _, k := range []int32{5, 15, 25} {
		tup := &Tuple{Desc: *td, Fields: []DBValue{IntField{Value: k}, StringField{Value: "v"}}}
		if err := page.insertTuple(tup); err != nil {
			t.Fatalf("insertTuple(%d): %v", k, err)
		}
	}

	data, err := page.pageData()
	if err != nil {
		t.Fatalf("pageData: %v", err)
	}
	if len(data) != PageSize {
		t.Fatalf("expected %d bytes, got %d", PageSize, len(data))
	}

	decoded := newLeafPage(td, 0, 2, bf)
	if err := decoded.initFromBuffer(bytes.NewBuffer(data)); err != nil {
		t.Fatalf("initFromBuffer: %v", err)
	}
	if decoded.leftPageNo != page.leftPageNo || decoded.rightPageNo != page.rightPageNo || decoded.parentPageNo != page.parentPageNo || decoded.parentCategory != page.parentCategory {
		t.Fatalf("link mismatch: got %+v, want %+v", decoded, page)
	}
	if len(decoded.tuples) != len(page.tuples) {
		t.Fatalf("expected %d tuples, got %d", len(page.tuples), len(decoded.tuples))
	}
	for i, want := range page.tuples {
		if !want.equals(decoded.tuples[i]) {
			t.Fatalf("tuple %d mismatch: want %+v got %+v", i, want, decoded.tuples[i])
		}
	}
}
