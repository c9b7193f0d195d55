package godb

import (
	"bytes"
	"sync"
)

// heapPage implements the Page interface for pages of a HeapFile: a bitmap
// header (bit i set iff slot i is occupied) followed by numSlots fixed-width
// tuple slots. slotsPerPage and the header width are derived once from the
// page's TupleDesc, following the slotted-page layout in SPEC_FULL.md §6.
type heapPage struct {
	pid      PageID
	desc     TupleDesc
	numSlots int
	header   []byte
	tuples   []*Tuple
	dirty    bool
	dirtyTid TransactionID
	file     *HeapFile
	mu       sync.Mutex
}

var ErrPageFull = GoDBError{PageFullError, "page is full"}

func slotsPerHeapPage(desc *TupleDesc) int {
	tupleBits := desc.bytesPerTuple() * 8
	return (PageSize * 8) / (tupleBits + 1)
}

// newHeapPage constructs a fresh, empty heap page.
func newHeapPage(desc *TupleDesc, pageNo int, f *HeapFile) (*heapPage, error) {
	numSlots := slotsPerHeapPage(desc)
	return &heapPage{
		pid:      NewHeapPageID(f.ID(), pageNo),
		desc:     *desc.copy(),
		numSlots: numSlots,
		header:   make([]byte, bitmapBytes(numSlots)),
		tuples:   make([]*Tuple, numSlots),
		file:     f,
	}, nil
}

func (h *heapPage) getNumEmptySlots() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.numSlots - popcount(h.header, h.numSlots)
}

func (h *heapPage) getNumSlots() int {
	return h.numSlots
}

// insertTuple finds the lowest-numbered empty slot, stamps t's bytes into
// it, sets the bitmap bit, and stamps t.Rid.
func (h *heapPage) insertTuple(t *Tuple) (RecordID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !t.Desc.equals(&h.desc) {
		return RecordID{}, newGoDBError(TypeMismatchError, "tuple descriptor does not match page descriptor")
	}
	for i := 0; i < h.numSlots; i++ {
		if !getBit(h.header, i) {
			h.tuples[i] = t
			setBit(h.header, i, true)
			rid := RecordID{PageID: h.pid, SlotNo: i}
			t.Rid = &rid
			return rid, nil
		}
	}
	return RecordID{}, ErrPageFull
}

// deleteTuple clears the slot named by rid. rid must refer to this page and
// to a currently occupied slot.
func (h *heapPage) deleteTuple(rid RecordID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rid.PageID != h.pid {
		return newGoDBError(TupleNotFoundError, "rid does not refer to this page")
	}
	if rid.SlotNo < 0 || rid.SlotNo >= h.numSlots {
		return newGoDBError(TupleNotFoundError, "slot %d does not exist", rid.SlotNo)
	}
	if !getBit(h.header, rid.SlotNo) {
		return newGoDBError(TupleNotFoundError, "slot %d is already empty", rid.SlotNo)
	}
	setBit(h.header, rid.SlotNo, false)
	h.tuples[rid.SlotNo] = nil
	return nil
}

func (h *heapPage) PageID() PageID {
	return h.pid
}

func (h *heapPage) IsDirty() (TransactionID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirtyTid, h.dirty
}

func (h *heapPage) MarkDirty(dirty bool, tid TransactionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dirty = dirty
	h.dirtyTid = tid
}

func (h *heapPage) File() DBFile {
	return h.file
}

// pageData serializes the header bitmap followed by every occupied slot's
// tuple bytes, padded with zeros up to PageSize. Unused slots are written as
// bytesPerTuple zero bytes so every slot keeps its fixed offset.
func (h *heapPage) pageData() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := new(bytes.Buffer)
	if _, err := b.Write(h.header); err != nil {
		return nil, err
	}
	for i := 0; i < h.numSlots; i++ {
		if !getBit(h.header, i) {
			b.Write(make([]byte, h.desc.bytesPerTuple()))
			continue
		}
		if err := h.tuples[i].writeTo(b); err != nil {
			return nil, err
		}
	}
	if b.Len() > PageSize {
		return nil, newGoDBError(MalformedDataError, "heap page serialized to %d bytes, want <= %d", b.Len(), PageSize)
	}
	b.Write(make([]byte, PageSize-b.Len()))
	return b.Bytes(), nil
}

// initFromBuffer parses header and slot bytes out of buf, which must be
// exactly PageSize bytes starting at the header.
func (h *heapPage) initFromBuffer(buf *bytes.Buffer) error {
	h.header = make([]byte, bitmapBytes(h.numSlots))
	if _, err := buf.Read(h.header); err != nil {
		return err
	}
	h.tuples = make([]*Tuple, h.numSlots)
	for i := 0; i < h.numSlots; i++ {
		if !getBit(h.header, i) {
			buf.Next(h.desc.bytesPerTuple())
			continue
		}
		t, err := readTupleFrom(buf, &h.desc)
		if err != nil {
			return err
		}
		rid := RecordID{PageID: h.pid, SlotNo: i}
		t.Rid = &rid
		h.tuples[i] = t
	}
	h.dirty = false
	return nil
}

// tupleIter returns a closure yielding the page's occupied slots in slot
// order, then nil. It is wrapped by funcIterator where a public iterator is
// needed; HeapFile.Iterator calls it page by page.
func (h *heapPage) tupleIter() func() (*Tuple, error) {
	i := 0
	return func() (*Tuple, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i < h.numSlots {
			slot := i
			i++
			if getBit(h.header, slot) {
				return h.tuples[slot], nil
			}
		}
		return nil, nil
	}
}
