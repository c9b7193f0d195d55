package godb

import (
	"bytes"
	"encoding/binary"
)

// RootPtrPageSize is the fixed, sub-PAGE_SIZE footprint of the singleton
// root-ptr page: a page-no, a category byte, and another page-no.
const RootPtrPageSize = 4 + 1 + 4

func writeKeyField(b *bytes.Buffer, v DBValue) error {
	switch f := v.(type) {
	case IntField:
		return writeIntField(b, f)
	case StringField:
		return writeStringField(b, f)
	default:
		return newGoDBError(TypeMismatchError, "unsupported key field type %T", v)
	}
}

func readKeyField(b *bytes.Buffer, ftype DBType) (DBValue, error) {
	switch ftype {
	case StringType:
		return readStringField(b)
	default:
		return readIntField(b)
	}
}

func keyFieldWidth(ftype DBType) int {
	return FieldType{Ftype: ftype}.byteWidth()
}

// rootPtrPage is the singleton entry point of a B+ tree file: which page is
// currently the root (and its category), and the head of the free-page
// header chain. page-no 0 in either slot means "none".
type rootPtrPage struct {
	pid          PageID
	rootPageNo   int
	rootCategory pageCategory
	headerPageNo int
	dirty        bool
	dirtyTid     TransactionID
	file         *BTreeFile
}

func newRootPtrPage(f *BTreeFile) *rootPtrPage {
	return &rootPtrPage{pid: NewTreePageID(f.ID(), 0, RootPtrPage), file: f}
}

func (p *rootPtrPage) PageID() PageID                       { return p.pid }
func (p *rootPtrPage) IsDirty() (TransactionID, bool)       { return p.dirtyTid, p.dirty }
func (p *rootPtrPage) MarkDirty(dirty bool, tid TransactionID) { p.dirty, p.dirtyTid = dirty, tid }
func (p *rootPtrPage) File() DBFile                         { return p.file }

func (p *rootPtrPage) pageData() ([]byte, error) {
	b := new(bytes.Buffer)
	if err := binary.Write(b, binary.BigEndian, int32(p.rootPageNo)); err != nil {
		return nil, err
	}
	if err := b.WriteByte(byte(p.rootCategory)); err != nil {
		return nil, err
	}
	if err := binary.Write(b, binary.BigEndian, int32(p.headerPageNo)); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (p *rootPtrPage) initFromBuffer(buf *bytes.Buffer) error {
	var root int32
	if err := binary.Read(buf, binary.BigEndian, &root); err != nil {
		return err
	}
	cat, err := buf.ReadByte()
	if err != nil {
		return err
	}
	var header int32
	if err := binary.Read(buf, binary.BigEndian, &header); err != nil {
		return err
	}
	p.rootPageNo = int(root)
	p.rootCategory = pageCategory(cat)
	p.headerPageNo = int(header)
	p.dirty = false
	return nil
}

// headerPage is one link in the free-page bitmap chain: bit i of the k-th
// header page (counting from 0) set means page k*numSlots+i+1 is currently
// allocated to the tree. Chained via prev/next so the chain can grow to cover arbitrarily
// many data pages.
type headerPage struct {
	pid          PageID
	prevPageNo   int
	nextPageNo   int
	bitmap       []byte
	numSlots     int
	dirty        bool
	dirtyTid     TransactionID
	file         *BTreeFile
}

func headerPageNumSlots() int {
	return (PageSize - 8) * 8
}

func newHeaderPage(pageNo int, f *BTreeFile) *headerPage {
	n := headerPageNumSlots()
	return &headerPage{
		pid:      NewTreePageID(f.ID(), pageNo, HeaderPage),
		numSlots: n,
		bitmap:   make([]byte, bitmapBytes(n)),
		file:     f,
	}
}

func (p *headerPage) PageID() PageID                          { return p.pid }
func (p *headerPage) IsDirty() (TransactionID, bool)          { return p.dirtyTid, p.dirty }
func (p *headerPage) MarkDirty(dirty bool, tid TransactionID) { p.dirty, p.dirtyTid = dirty, tid }
func (p *headerPage) File() DBFile                             { return p.file }

func (p *headerPage) pageData() ([]byte, error) {
	b := new(bytes.Buffer)
	if err := binary.Write(b, binary.BigEndian, int32(p.prevPageNo)); err != nil {
		return nil, err
	}
	if err := binary.Write(b, binary.BigEndian, int32(p.nextPageNo)); err != nil {
		return nil, err
	}
	b.Write(p.bitmap)
	b.Write(make([]byte, PageSize-b.Len()))
	return b.Bytes(), nil
}

func (p *headerPage) initFromBuffer(buf *bytes.Buffer) error {
	var prev, next int32
	if err := binary.Read(buf, binary.BigEndian, &prev); err != nil {
		return err
	}
	if err := binary.Read(buf, binary.BigEndian, &next); err != nil {
		return err
	}
	p.prevPageNo, p.nextPageNo = int(prev), int(next)
	p.numSlots = headerPageNumSlots()
	p.bitmap = make([]byte, bitmapBytes(p.numSlots))
	if _, err := buf.Read(p.bitmap); err != nil {
		return err
	}
	p.dirty = false
	return nil
}

func (p *headerPage) getEmptySlot() int {
	for i := 0; i < p.numSlots; i++ {
		if !getBit(p.bitmap, i) {
			return i
		}
	}
	return -1
}

// btreeEntry is one logical (key, left-child, right-child) triple of an
// internal page. Adjacent entries share a child: entries[i].rightChild ==
// entries[i+1].leftChild whenever both exist.
type btreeEntry struct {
	leftChild  int
	rightChild int
	key        DBValue
}

// internalPage holds up to numSlots keys and numSlots+1 child page numbers,
// all of the same childCategory (LeafPage or InternalPage — every child of
// one internal page is at the same tree level).
type internalPage struct {
	pid            PageID
	keyType        DBType
	parentPageNo   int
	parentCategory pageCategory
	childCategory  pageCategory
	numSlots       int
	entries        []*btreeEntry
	dirty          bool
	dirtyTid       TransactionID
	file           *BTreeFile
}

// internalPageNumSlots computes m such that a bitmap of m bits, m keys of
// keyWidth bytes, and m+1 four-byte child pointers (plus the fixed 6-byte
// parent/category header) fit in PageSize, by the same single-floor-division
// idiom heapPage uses for its own slot count.
func internalPageNumSlots(keyWidth int) int {
	const fixedOverhead = 4 + 1 + 1 + 4 // parentPageNo + parentCategory + childCategory + one extra child
	bitsBudget := (PageSize - fixedOverhead) * 8
	perEntryBits := (keyWidth+4)*8 + 1
	return bitsBudget / perEntryBits
}

func newInternalPage(keyType DBType, pageNo int, f *BTreeFile) *internalPage {
	return &internalPage{
		pid:           NewTreePageID(f.ID(), pageNo, InternalPage),
		keyType:       keyType,
		numSlots:      internalPageNumSlots(keyFieldWidth(keyType)),
		childCategory: LeafPage,
		file:          f,
	}
}

func (p *internalPage) PageID() PageID                          { return p.pid }
func (p *internalPage) IsDirty() (TransactionID, bool)          { return p.dirtyTid, p.dirty }
func (p *internalPage) MarkDirty(dirty bool, tid TransactionID) { p.dirty, p.dirtyTid = dirty, tid }
func (p *internalPage) File() DBFile                             { return p.file }

func (p *internalPage) empty() bool   { return len(p.entries) == 0 }
func (p *internalPage) full() bool    { return len(p.entries) >= p.numSlots }
func (p *internalPage) numEntries() int { return len(p.entries) }

func (p *internalPage) pageData() ([]byte, error) {
	b := new(bytes.Buffer)
	if err := binary.Write(b, binary.BigEndian, int32(p.parentPageNo)); err != nil {
		return nil, err
	}
	if err := b.WriteByte(byte(p.parentCategory)); err != nil {
		return nil, err
	}
	if err := b.WriteByte(byte(p.childCategory)); err != nil {
		return nil, err
	}
	header := make([]byte, bitmapBytes(p.numSlots))
	for i := range p.entries {
		setBit(header, i, true)
	}
	b.Write(header)

	for i := 0; i < p.numSlots; i++ {
		if i < len(p.entries) {
			if err := writeKeyField(b, p.entries[i].key); err != nil {
				return nil, err
			}
		} else {
			b.Write(make([]byte, keyFieldWidth(p.keyType)))
		}
	}
	for i := 0; i <= p.numSlots; i++ {
		var child int32
		if i < len(p.entries) {
			child = int32(p.entries[i].leftChild)
		} else if i == len(p.entries) && i > 0 {
			child = int32(p.entries[i-1].rightChild)
		}
		if err := binary.Write(b, binary.BigEndian, child); err != nil {
			return nil, err
		}
	}
	if b.Len() > PageSize {
		return nil, newGoDBError(MalformedDataError, "internal page serialized to %d bytes, want <= %d", b.Len(), PageSize)
	}
	b.Write(make([]byte, PageSize-b.Len()))
	return b.Bytes(), nil
}

func (p *internalPage) initFromBuffer(buf *bytes.Buffer) error {
	var parent int32
	if err := binary.Read(buf, binary.BigEndian, &parent); err != nil {
		return err
	}
	parentCat, err := buf.ReadByte()
	if err != nil {
		return err
	}
	childCat, err := buf.ReadByte()
	if err != nil {
		return err
	}
	p.parentPageNo = int(parent)
	p.parentCategory = pageCategory(parentCat)
	p.childCategory = pageCategory(childCat)

	header := make([]byte, bitmapBytes(p.numSlots))
	if _, err := buf.Read(header); err != nil {
		return err
	}
	count := popcount(header, p.numSlots)

	keys := make([]DBValue, p.numSlots)
	for i := 0; i < p.numSlots; i++ {
		k, err := readKeyField(buf, p.keyType)
		if err != nil {
			return err
		}
		keys[i] = k
	}
	children := make([]int32, p.numSlots+1)
	if err := binary.Read(buf, binary.BigEndian, &children); err != nil {
		return err
	}

	p.entries = make([]*btreeEntry, 0, count)
	for i := 0; i < count; i++ {
		p.entries = append(p.entries, &btreeEntry{
			leftChild:  int(children[i]),
			rightChild: int(children[i+1]),
			key:        keys[i],
		})
	}
	p.dirty = false
	return nil
}

// leafPage holds up to numSlots tuples, kept dense and sorted by key field,
// plus left/right sibling links and a parent pointer.
type leafPage struct {
	pid            PageID
	desc           TupleDesc
	keyField       int
	numSlots       int
	tuples         []*Tuple
	leftPageNo     int
	rightPageNo    int
	parentPageNo   int
	parentCategory pageCategory
	dirty          bool
	dirtyTid       TransactionID
	file           *BTreeFile
}

func leafPageNumSlots(desc *TupleDesc) int {
	const trailer = 4 + 4 + 4 + 1 // left + right + parentPageNo + parentCategory
	tupleBits := desc.bytesPerTuple() * 8
	bitsBudget := (PageSize - trailer) * 8
	return bitsBudget / (tupleBits + 1)
}

func newLeafPage(desc *TupleDesc, keyField, pageNo int, f *BTreeFile) *leafPage {
	return &leafPage{
		pid:      NewTreePageID(f.ID(), pageNo, LeafPage),
		desc:     *desc.copy(),
		keyField: keyField,
		numSlots: leafPageNumSlots(desc),
		file:     f,
	}
}

func (p *leafPage) PageID() PageID                          { return p.pid }
func (p *leafPage) IsDirty() (TransactionID, bool)          { return p.dirtyTid, p.dirty }
func (p *leafPage) MarkDirty(dirty bool, tid TransactionID) { p.dirty, p.dirtyTid = dirty, tid }
func (p *leafPage) File() DBFile                             { return p.file }

func (p *leafPage) full() bool  { return len(p.tuples) >= p.numSlots }
func (p *leafPage) empty() bool { return len(p.tuples) == 0 }

// keyOf extracts t's key field value.
func (p *leafPage) keyOf(t *Tuple) DBValue { return t.Fields[p.keyField] }

// insertTuple finds t's sorted position by key and splices it in. Caller
// must have already ensured the page is not full.
func (p *leafPage) insertTuple(t *Tuple) error {
	if !t.Desc.equals(&p.desc) {
		return newGoDBError(TypeMismatchError, "tuple descriptor does not match leaf page descriptor")
	}
	if p.full() {
		return ErrPageFull
	}
	pos := len(p.tuples)
	for i, existing := range p.tuples {
		cmp, err := compareValues(p.keyOf(t), p.keyOf(existing))
		if err != nil {
			return err
		}
		if cmp == OrderedLessThan {
			pos = i
			break
		}
	}
	p.tuples = append(p.tuples, nil)
	copy(p.tuples[pos+1:], p.tuples[pos:])
	p.tuples[pos] = t
	rid := RecordID{PageID: p.pid, SlotNo: pos}
	t.Rid = &rid
	return nil
}

// deleteTuple removes the tuple equal to t from the page.
func (p *leafPage) deleteTuple(t *Tuple) error {
	for i, existing := range p.tuples {
		if existing.equals(t) {
			p.tuples = append(p.tuples[:i], p.tuples[i+1:]...)
			return nil
		}
	}
	return newGoDBError(TupleNotFoundError, "tuple not found in leaf page")
}

func (p *leafPage) pageData() ([]byte, error) {
	b := new(bytes.Buffer)
	header := make([]byte, bitmapBytes(p.numSlots))
	for i := range p.tuples {
		setBit(header, i, true)
	}
	b.Write(header)
	for i := 0; i < p.numSlots; i++ {
		if i < len(p.tuples) {
			if err := p.tuples[i].writeTo(b); err != nil {
				return nil, err
			}
		} else {
			b.Write(make([]byte, p.desc.bytesPerTuple()))
		}
	}
	if err := binary.Write(b, binary.BigEndian, int32(p.leftPageNo)); err != nil {
		return nil, err
	}
	if err := binary.Write(b, binary.BigEndian, int32(p.rightPageNo)); err != nil {
		return nil, err
	}
	if err := binary.Write(b, binary.BigEndian, int32(p.parentPageNo)); err != nil {
		return nil, err
	}
	if err := b.WriteByte(byte(p.parentCategory)); err != nil {
		return nil, err
	}
	if b.Len() > PageSize {
		return nil, newGoDBError(MalformedDataError, "leaf page serialized to %d bytes, want <= %d", b.Len(), PageSize)
	}
	b.Write(make([]byte, PageSize-b.Len()))
	return b.Bytes(), nil
}

func (p *leafPage) initFromBuffer(buf *bytes.Buffer) error {
	header := make([]byte, bitmapBytes(p.numSlots))
	if _, err := buf.Read(header); err != nil {
		return err
	}
	count := popcount(header, p.numSlots)
	p.tuples = make([]*Tuple, 0, count)
	for i := 0; i < p.numSlots; i++ {
		if !getBit(header, i) {
			buf.Next(p.desc.bytesPerTuple())
			continue
		}
		t, err := readTupleFrom(buf, &p.desc)
		if err != nil {
			return err
		}
		rid := RecordID{PageID: p.pid, SlotNo: len(p.tuples)}
		t.Rid = &rid
		p.tuples = append(p.tuples, t)
	}
	var left, right, parent int32
	if err := binary.Read(buf, binary.BigEndian, &left); err != nil {
		return err
	}
	if err := binary.Read(buf, binary.BigEndian, &right); err != nil {
		return err
	}
	if err := binary.Read(buf, binary.BigEndian, &parent); err != nil {
		return err
	}
	parentCat, err := buf.ReadByte()
	if err != nil {
		return err
	}
	p.leftPageNo, p.rightPageNo = int(left), int(right)
	p.parentPageNo, p.parentCategory = int(parent), pageCategory(parentCat)
	p.dirty = false
	return nil
}
