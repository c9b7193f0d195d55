package godb

import (
	"bytes"
	"os"
	"sync"
)

// BTreeFile is a single-key-field sorted index over a table: byte 0 of the
// backing file is the root-ptr page, then header/internal/leaf pages of
// PageSize each, indexed from page-no 1. Every page access goes through the
// buffer pool, exactly as HeapFile does.
type BTreeFile struct {
	id          int
	td          *TupleDesc
	keyField    int
	backingFile string
	bufPool     *BufferPool
	numPages    int
	mu          sync.Mutex
}

// NewBTreeFile opens (creating if necessary) fromFile as the backing store
// of a B+ tree index keyed on td.Fields[keyField]. A brand-new file is
// bootstrapped with an empty root-ptr page recording no root and no header
// chain.
func NewBTreeFile(fromFile string, td *TupleDesc, keyField int, bufPool *BufferPool) (*BTreeFile, error) {
	file, err := os.OpenFile(fromFile, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	fi, err := file.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size < RootPtrPageSize {
		if _, err := file.WriteAt(make([]byte, RootPtrPageSize), 0); err != nil {
			return nil, err
		}
		size = RootPtrPageSize
	}
	numPages := int((size - RootPtrPageSize) / int64(PageSize))
	return &BTreeFile{
		id:          tableIDFromPath(fromFile),
		td:          td,
		keyField:    keyField,
		backingFile: fromFile,
		bufPool:     bufPool,
		numPages:    numPages,
	}, nil
}

func (f *BTreeFile) ID() int                  { return f.id }
func (f *BTreeFile) Descriptor() *TupleDesc   { return f.td }
func (f *BTreeFile) KeyField() int            { return f.keyField }
func (f *BTreeFile) keyType() DBType          { return f.td.Fields[f.keyField].Ftype }

func (f *BTreeFile) NumPages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.numPages
}

func (f *BTreeFile) pageOffset(pid PageID) (int64, int) {
	if pid.Category == RootPtrPage {
		return 0, RootPtrPageSize
	}
	return int64(RootPtrPageSize) + int64(pid.PageNo-1)*int64(PageSize), PageSize
}

// readPage reads and decodes the page named by pid, dispatching on its
// category to pick the right codec.
func (f *BTreeFile) readPage(pid PageID) (Page, error) {
	file, err := os.OpenFile(f.backingFile, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	offset, length := f.pageOffset(pid)
	fi, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if offset+int64(length) > fi.Size() {
		return nil, newGoDBError(IllegalPageError, "page %+v is beyond end of file %s", pid, f.backingFile)
	}
	buf := make([]byte, length)
	if _, err := file.ReadAt(buf, offset); err != nil {
		return nil, err
	}

	switch pid.Category {
	case RootPtrPage:
		p := newRootPtrPage(f)
		if err := p.initFromBuffer(bytes.NewBuffer(buf)); err != nil {
			return nil, err
		}
		return p, nil
	case HeaderPage:
		p := newHeaderPage(pid.PageNo, f)
		if err := p.initFromBuffer(bytes.NewBuffer(buf)); err != nil {
			return nil, err
		}
		return p, nil
	case InternalPage:
		p := newInternalPage(f.keyType(), pid.PageNo, f)
		if err := p.initFromBuffer(bytes.NewBuffer(buf)); err != nil {
			return nil, err
		}
		return p, nil
	case LeafPage:
		p := newLeafPage(f.td, f.keyField, pid.PageNo, f)
		if err := p.initFromBuffer(bytes.NewBuffer(buf)); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, newGoDBError(IllegalPageError, "unknown b+ tree page category %v", pid.Category)
	}
}

// writePage forces p's current bytes back to its slot in the backing file.
func (f *BTreeFile) writePage(p Page) error {
	data, err := p.pageData()
	if err != nil {
		return err
	}
	file, err := os.OpenFile(f.backingFile, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()
	offset, _ := f.pageOffset(p.PageID())
	_, err = file.WriteAt(data, offset)
	return err
}

// growAndZero ensures the backing file is at least long enough to hold
// pageNo, and zeroes that page's bytes — so a page freshly handed out by
// getEmptyPage decodes as a structurally valid, empty leaf/internal/header
// page regardless of whatever was on disk the last time that slot was used.
func (f *BTreeFile) growAndZero(pageNo int) error {
	f.mu.Lock()
	if pageNo > f.numPages {
		f.numPages = pageNo
	}
	f.mu.Unlock()
	file, err := os.OpenFile(f.backingFile, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()
	offset := int64(RootPtrPageSize) + int64(pageNo-1)*int64(PageSize)
	_, err = file.WriteAt(make([]byte, PageSize), offset)
	return err
}

func (f *BTreeFile) truncateLastPage() error {
	f.mu.Lock()
	f.numPages--
	n := f.numPages
	f.mu.Unlock()
	return os.Truncate(f.backingFile, int64(RootPtrPageSize)+int64(n)*int64(PageSize))
}

// getEmptyPage scans the header-page chain for a free bit, flips it, and
// returns the page number it names, zeroing that page's bytes on disk. If no
// chain exists, or the existing chain is fully allocated, a new header page
// is appended first.
func (f *BTreeFile) getEmptyPage(tid TransactionID) (int, []Page, error) {
	numSlots := headerPageNumSlots()
	rootPid := NewTreePageID(f.id, 0, RootPtrPage)
	rootPg, err := f.bufPool.GetPage(tid, rootPid, ReadWrite)
	if err != nil {
		return 0, nil, err
	}
	rp := rootPg.(*rootPtrPage)

	var dirtied []Page
	headerPageNo := rp.headerPageNo
	chainPos := 0
	var lastHp *headerPage
	var lastHpPageNo int

	for headerPageNo != 0 {
		pg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, headerPageNo, HeaderPage), ReadWrite)
		if err != nil {
			return 0, nil, err
		}
		hp := pg.(*headerPage)
		for i := 0; i < hp.numSlots; i++ {
			if !getBit(hp.bitmap, i) {
				setBit(hp.bitmap, i, true)
				hp.MarkDirty(true, tid)
				pageNo := chainPos*hp.numSlots + i + 1
				if err := f.growAndZero(pageNo); err != nil {
					return 0, nil, err
				}
				return pageNo, append(dirtied, hp), nil
			}
		}
		lastHp, lastHpPageNo = hp, headerPageNo
		headerPageNo = hp.nextPageNo
		chainPos++
	}

	newHeaderPageNo := chainPos*numSlots + 1
	if err := f.growAndZero(newHeaderPageNo); err != nil {
		return 0, nil, err
	}
	newHp := newHeaderPage(newHeaderPageNo, f)
	setBit(newHp.bitmap, 0, true) // the header page occupies its own first slot
	if lastHp != nil {
		lastHp.nextPageNo = newHeaderPageNo
		lastHp.MarkDirty(true, tid)
		newHp.prevPageNo = lastHpPageNo
		dirtied = append(dirtied, lastHp)
	} else {
		rp.headerPageNo = newHeaderPageNo
		rp.MarkDirty(true, tid)
		dirtied = append(dirtied, rp)
	}
	if err := f.writePage(newHp); err != nil {
		return 0, nil, err
	}
	pg, err := f.bufPool.GetPage(tid, newHp.pid, ReadWrite)
	if err != nil {
		return 0, nil, err
	}
	cached := pg.(*headerPage)
	dirtied = append(dirtied, cached)

	for i := 1; i < cached.numSlots; i++ {
		if !getBit(cached.bitmap, i) {
			setBit(cached.bitmap, i, true)
			cached.MarkDirty(true, tid)
			pageNo := chainPos*numSlots + i + 1
			if err := f.growAndZero(pageNo); err != nil {
				return 0, nil, err
			}
			return pageNo, dirtied, nil
		}
	}
	return 0, nil, newGoDBError(NoEvictablePageError, "could not allocate a free page in a freshly created header page")
}

// setEmptyPage releases pageNo back to the free list: it clears the bit in
// whichever header page in the chain covers it, and also truncates the file
// when pageNo is the last page.
func (f *BTreeFile) setEmptyPage(tid TransactionID, pageNo int) ([]Page, error) {
	numSlots := headerPageNumSlots()
	targetChainPos := (pageNo - 1) / numSlots
	localBit := (pageNo - 1) % numSlots

	rootPg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, 0, RootPtrPage), ReadOnly)
	if err != nil {
		return nil, err
	}
	rp := rootPg.(*rootPtrPage)

	headerPageNo := rp.headerPageNo
	pos := 0
	for headerPageNo != 0 {
		if pos == targetChainPos {
			pg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, headerPageNo, HeaderPage), ReadWrite)
			if err != nil {
				return nil, err
			}
			hp := pg.(*headerPage)
			setBit(hp.bitmap, localBit, false)
			hp.MarkDirty(true, tid)

			f.mu.Lock()
			isLast := pageNo == f.numPages
			f.mu.Unlock()
			if isLast {
				if err := f.truncateLastPage(); err != nil {
					return nil, err
				}
			}
			return []Page{hp}, nil
		}
		pg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, headerPageNo, HeaderPage), ReadOnly)
		if err != nil {
			return nil, err
		}
		headerPageNo = pg.(*headerPage).nextPageNo
		pos++
	}
	return nil, newGoDBError(IllegalPageError, "no header page covers page %d", pageNo)
}

// findLeafPage descends from pid to the leaf that would hold key, acquiring
// READ_ONLY on every internal page and perm on the leaf. key == nil always
// takes the leftmost path, for full scans.
func (f *BTreeFile) findLeafPage(tid TransactionID, pid PageID, key DBValue, perm Permission) (*leafPage, error) {
	for {
		if pid.Category == LeafPage {
			pg, err := f.bufPool.GetPage(tid, pid, perm)
			if err != nil {
				return nil, err
			}
			return pg.(*leafPage), nil
		}
		pg, err := f.bufPool.GetPage(tid, pid, ReadOnly)
		if err != nil {
			return nil, err
		}
		ip := pg.(*internalPage)
		if len(ip.entries) == 0 {
			return nil, newGoDBError(IllegalPageError, "internal page %+v has no entries", pid)
		}
		var child int
		if key == nil {
			child = ip.entries[0].leftChild
		} else {
			child = ip.entries[len(ip.entries)-1].rightChild
			for _, e := range ip.entries {
				cmp, err := compareValues(e.key, key)
				if err != nil {
					return nil, err
				}
				if cmp != OrderedLessThan {
					child = e.leftChild
					break
				}
			}
		}
		pid = NewTreePageID(f.id, child, ip.childCategory)
	}
}

// insertEntryIntoInternal splices a new (key, left, right) entry into page,
// replacing whatever entry boundary previously pointed at targetChildPageNo
// (the child that was just split into left/right).
func (f *BTreeFile) insertEntryIntoInternal(page *internalPage, key DBValue, left, right, targetChildPageNo int) {
	pos := -1
	for i, e := range page.entries {
		if e.leftChild == targetChildPageNo {
			pos = i
			break
		}
	}
	if pos == -1 {
		if len(page.entries) > 0 && page.entries[len(page.entries)-1].rightChild == targetChildPageNo {
			pos = len(page.entries)
		} else {
			pos = 0
		}
	}
	entry := &btreeEntry{leftChild: left, rightChild: right, key: key}
	entries := make([]*btreeEntry, 0, len(page.entries)+1)
	entries = append(entries, page.entries[:pos]...)
	entries = append(entries, entry)
	entries = append(entries, page.entries[pos:]...)
	if pos > 0 {
		entries[pos-1].rightChild = left
	}
	page.entries = entries
}

// removeEntryFromInternal deletes the entry at sepIdx (which separated a
// merged left/right pair) and repoints whatever bordered it at
// mergedPageNo, the surviving (left) page of the merge.
func (f *BTreeFile) removeEntryFromInternal(page *internalPage, sepIdx, mergedPageNo int) {
	entries := append(append([]*btreeEntry{}, page.entries[:sepIdx]...), page.entries[sepIdx+1:]...)
	if sepIdx > 0 {
		entries[sepIdx-1].rightChild = mergedPageNo
	}
	if sepIdx < len(entries) {
		entries[sepIdx].leftChild = mergedPageNo
	}
	page.entries = entries
}

// updateParentPointers rewrites the parent pointer of every direct child of
// internal to point at internal, skipping any child whose pointer is
// already correct.
func (f *BTreeFile) updateParentPointers(tid TransactionID, internalPg *internalPage) ([]Page, error) {
	seen := make(map[int]bool)
	var dirtied []Page
	visit := func(childPageNo int) error {
		if childPageNo == 0 || seen[childPageNo] {
			return nil
		}
		seen[childPageNo] = true
		pg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, childPageNo, internalPg.childCategory), ReadWrite)
		if err != nil {
			return err
		}
		switch c := pg.(type) {
		case *leafPage:
			if c.parentPageNo != internalPg.pid.PageNo || c.parentCategory != InternalPage {
				c.parentPageNo = internalPg.pid.PageNo
				c.parentCategory = InternalPage
				c.MarkDirty(true, tid)
				dirtied = append(dirtied, c)
			}
		case *internalPage:
			if c.parentPageNo != internalPg.pid.PageNo || c.parentCategory != InternalPage {
				c.parentPageNo = internalPg.pid.PageNo
				c.parentCategory = InternalPage
				c.MarkDirty(true, tid)
				dirtied = append(dirtied, c)
			}
		}
		return nil
	}
	for _, e := range internalPg.entries {
		if err := visit(e.leftChild); err != nil {
			return nil, err
		}
	}
	if len(internalPg.entries) > 0 {
		if err := visit(internalPg.entries[len(internalPg.entries)-1].rightChild); err != nil {
			return nil, err
		}
	}
	return dirtied, nil
}

// prepareParentForInsert returns an internal page with room for one more
// entry to describe a child currently parented by (childParentPageNo,
// childParentCategory), recursively splitting the existing parent if it is
// full, or creating a brand-new root parent if the child is currently the
// root. key is the separator key the caller is about to insert, used to
// choose a side if the parent itself had to split.
func (f *BTreeFile) prepareParentForInsert(tid TransactionID, childParentPageNo int, childParentCategory, childCategory pageCategory, key DBValue) (*internalPage, []Page, error) {
	if childParentCategory == RootPtrPage {
		newPageNo, dirtied, err := f.getEmptyPage(tid)
		if err != nil {
			return nil, nil, err
		}
		pg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, newPageNo, InternalPage), ReadWrite)
		if err != nil {
			return nil, nil, err
		}
		parent := pg.(*internalPage)
		parent.childCategory = childCategory
		parent.parentPageNo = 0
		parent.parentCategory = RootPtrPage
		parent.MarkDirty(true, tid)

		rootPg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, 0, RootPtrPage), ReadWrite)
		if err != nil {
			return nil, nil, err
		}
		rp := rootPg.(*rootPtrPage)
		rp.rootPageNo = newPageNo
		rp.rootCategory = InternalPage
		rp.MarkDirty(true, tid)
		dirtied = append(dirtied, parent, rp)
		return parent, dirtied, nil
	}

	pg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, childParentPageNo, InternalPage), ReadWrite)
	if err != nil {
		return nil, nil, err
	}
	parent := pg.(*internalPage)
	if !parent.full() {
		return parent, nil, nil
	}
	newLeft, pushKey, dirtied, err := f.splitInternalPage(tid, parent)
	if err != nil {
		return nil, nil, err
	}
	cmp, err := compareValues(key, pushKey)
	if err != nil {
		return nil, nil, err
	}
	if cmp != OrderedGreaterThan {
		return newLeft, dirtied, nil
	}
	return parent, dirtied, nil
}

// splitInternalPage splits a full internal page in two: the lower half of
// entries move to a freshly allocated left page, the middle entry's key is
// promoted to the parent, and the upper half remains on page (now the right
// half). Returns the new left page and the promoted key.
func (f *BTreeFile) splitInternalPage(tid TransactionID, page *internalPage) (*internalPage, DBValue, []Page, error) {
	mid := len(page.entries) / 2
	pushKey := page.entries[mid].key

	newPageNo, dirtied, err := f.getEmptyPage(tid)
	if err != nil {
		return nil, nil, nil, err
	}
	pg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, newPageNo, InternalPage), ReadWrite)
	if err != nil {
		return nil, nil, nil, err
	}
	newLeft := pg.(*internalPage)
	newLeft.childCategory = page.childCategory
	newLeft.entries = append([]*btreeEntry{}, page.entries[:mid]...)
	page.entries = append([]*btreeEntry{}, page.entries[mid+1:]...)

	parent, parentDirtied, err := f.prepareParentForInsert(tid, page.parentPageNo, page.parentCategory, InternalPage, pushKey)
	if err != nil {
		return nil, nil, nil, err
	}
	dirtied = append(dirtied, parentDirtied...)

	newLeft.parentPageNo = parent.pid.PageNo
	newLeft.parentCategory = InternalPage
	page.parentPageNo = parent.pid.PageNo
	page.parentCategory = InternalPage

	f.insertEntryIntoInternal(parent, pushKey, newLeft.pid.PageNo, page.pid.PageNo, page.pid.PageNo)
	parent.MarkDirty(true, tid)

	leftChildrenDirtied, err := f.updateParentPointers(tid, newLeft)
	if err != nil {
		return nil, nil, nil, err
	}
	rightChildrenDirtied, err := f.updateParentPointers(tid, page)
	if err != nil {
		return nil, nil, nil, err
	}
	newLeft.MarkDirty(true, tid)
	page.MarkDirty(true, tid)
	dirtied = append(dirtied, leftChildrenDirtied...)
	dirtied = append(dirtied, rightChildrenDirtied...)
	dirtied = append(dirtied, newLeft, page, parent)
	return newLeft, pushKey, dirtied, nil
}

// splitLeafPageForInsert splits a full leaf and returns whichever half
// newTuple belongs in, along with every page the split dirtied.
func (f *BTreeFile) splitLeafPageForInsert(tid TransactionID, leaf *leafPage, newTuple *Tuple) (*leafPage, []Page, error) {
	mid := len(leaf.tuples) / 2

	newPageNo, dirtied, err := f.getEmptyPage(tid)
	if err != nil {
		return nil, nil, err
	}
	pg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, newPageNo, LeafPage), ReadWrite)
	if err != nil {
		return nil, nil, err
	}
	left := pg.(*leafPage)
	left.tuples = append([]*Tuple{}, leaf.tuples[:mid]...)
	for i, t := range left.tuples {
		rid := RecordID{PageID: left.pid, SlotNo: i}
		t.Rid = &rid
	}
	pushKey := left.tuples[mid-1].Fields[leaf.keyField]

	leaf.tuples = append([]*Tuple{}, leaf.tuples[mid:]...)
	for i, t := range leaf.tuples {
		rid := RecordID{PageID: leaf.pid, SlotNo: i}
		t.Rid = &rid
	}

	oldLeft := leaf.leftPageNo
	left.leftPageNo = oldLeft
	left.rightPageNo = leaf.pid.PageNo
	leaf.leftPageNo = left.pid.PageNo
	if oldLeft != 0 {
		opg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, oldLeft, LeafPage), ReadWrite)
		if err != nil {
			return nil, nil, err
		}
		old := opg.(*leafPage)
		old.rightPageNo = left.pid.PageNo
		old.MarkDirty(true, tid)
		dirtied = append(dirtied, old)
	}

	parent, parentDirtied, err := f.prepareParentForInsert(tid, leaf.parentPageNo, leaf.parentCategory, LeafPage, pushKey)
	if err != nil {
		return nil, nil, err
	}
	dirtied = append(dirtied, parentDirtied...)

	left.parentPageNo = parent.pid.PageNo
	left.parentCategory = InternalPage
	leaf.parentPageNo = parent.pid.PageNo
	leaf.parentCategory = InternalPage

	f.insertEntryIntoInternal(parent, pushKey, left.pid.PageNo, leaf.pid.PageNo, leaf.pid.PageNo)
	parent.MarkDirty(true, tid)
	left.MarkDirty(true, tid)
	leaf.MarkDirty(true, tid)
	dirtied = append(dirtied, parent, left, leaf)

	cmp, err := compareValues(newTuple.Fields[leaf.keyField], pushKey)
	if err != nil {
		return nil, nil, err
	}
	if cmp != OrderedGreaterThan {
		return left, dirtied, nil
	}
	return leaf, dirtied, nil
}

// insertTuple finds t's target leaf (bootstrapping a root if the tree is
// empty), splitting it first if full, and inserts in sorted position.
func (f *BTreeFile) insertTuple(tid TransactionID, t *Tuple) ([]Page, error) {
	if !t.Desc.equals(f.td) {
		return nil, newGoDBError(TypeMismatchError, "tuple descriptor does not match tree descriptor")
	}
	rootPid := NewTreePageID(f.id, 0, RootPtrPage)
	rootPg, err := f.bufPool.GetPage(tid, rootPid, ReadOnly)
	if err != nil {
		return nil, err
	}
	rp := rootPg.(*rootPtrPage)
	var dirtied []Page

	if rp.rootPageNo == 0 {
		rootPg, err = f.bufPool.GetPage(tid, rootPid, ReadWrite)
		if err != nil {
			return nil, err
		}
		rp = rootPg.(*rootPtrPage)
		if rp.rootPageNo == 0 {
			newPageNo, hdrDirtied, err := f.getEmptyPage(tid)
			if err != nil {
				return nil, err
			}
			dirtied = append(dirtied, hdrDirtied...)
			pg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, newPageNo, LeafPage), ReadWrite)
			if err != nil {
				return nil, err
			}
			root := pg.(*leafPage)
			root.parentPageNo = 0
			root.parentCategory = RootPtrPage
			root.MarkDirty(true, tid)
			rp.rootPageNo = newPageNo
			rp.rootCategory = LeafPage
			rp.MarkDirty(true, tid)
			dirtied = append(dirtied, rp, root)
		}
	}

	rootPid2 := NewTreePageID(f.id, rp.rootPageNo, rp.rootCategory)
	leaf, err := f.findLeafPage(tid, rootPid2, t.Fields[f.keyField], ReadWrite)
	if err != nil {
		return nil, err
	}

	if leaf.full() {
		target, splitDirtied, err := f.splitLeafPageForInsert(tid, leaf, t)
		if err != nil {
			return nil, err
		}
		dirtied = append(dirtied, splitDirtied...)
		leaf = target
	}
	if err := leaf.insertTuple(t); err != nil {
		return nil, err
	}
	leaf.MarkDirty(true, tid)
	dirtied = append(dirtied, leaf)
	return dirtied, nil
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// siblingFor locates the same-parent sibling of childPageNo within parent,
// preferring the left sibling. Returns the separating entry's index in
// parent.entries (sepIdx) so callers can rewrite or remove it.
func siblingFor(parent *internalPage, childPageNo int) (siblingPageNo int, isLeftSibling bool, sepIdx int) {
	pos := -1
	for i, e := range parent.entries {
		if e.leftChild == childPageNo {
			pos = i
			break
		}
	}
	if pos == -1 {
		// child is the rightmost: its left sibling is the last entry's leftChild.
		last := len(parent.entries) - 1
		return parent.entries[last].leftChild, true, last
	}
	if pos > 0 {
		return parent.entries[pos-1].leftChild, true, pos - 1
	}
	return parent.entries[pos].rightChild, false, pos
}

// handleMinOccupancyLeafPage repairs a leaf that dropped below minimum
// occupancy, by merging with or redistributing from a same-parent sibling.
func (f *BTreeFile) handleMinOccupancyLeafPage(tid TransactionID, leaf *leafPage) ([]Page, error) {
	ppg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, leaf.parentPageNo, InternalPage), ReadWrite)
	if err != nil {
		return nil, err
	}
	parent := ppg.(*internalPage)
	sibPageNo, isLeftSibling, sepIdx := siblingFor(parent, leaf.pid.PageNo)
	spg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, sibPageNo, LeafPage), ReadWrite)
	if err != nil {
		return nil, err
	}
	sibling := spg.(*leafPage)

	var dirtied []Page
	ceilHalf := (leaf.numSlots + 1) / 2
	siblingEmpty := sibling.numSlots - len(sibling.tuples)

	if siblingEmpty >= ceilHalf {
		var left, right *leafPage
		if isLeftSibling {
			left, right = sibling, leaf
		} else {
			left, right = leaf, sibling
		}
		left.tuples = append(left.tuples, right.tuples...)
		for i, t := range left.tuples {
			rid := RecordID{PageID: left.pid, SlotNo: i}
			t.Rid = &rid
		}
		left.rightPageNo = right.rightPageNo
		if right.rightPageNo != 0 {
			rr, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, right.rightPageNo, LeafPage), ReadWrite)
			if err != nil {
				return nil, err
			}
			rightRight := rr.(*leafPage)
			rightRight.leftPageNo = left.pid.PageNo
			rightRight.MarkDirty(true, tid)
			dirtied = append(dirtied, rightRight)
		}
		left.MarkDirty(true, tid)
		dirtied = append(dirtied, left)

		f.removeEntryFromInternal(parent, sepIdx, left.pid.PageNo)
		freed, err := f.setEmptyPage(tid, right.pid.PageNo)
		if err != nil {
			return nil, err
		}
		dirtied = append(dirtied, freed...)
		f.bufPool.DiscardPage(right.pid)
		parent.MarkDirty(true, tid)
		dirtied = append(dirtied, parent)

		if len(parent.entries) == 0 && parent.parentCategory == RootPtrPage {
			rootPg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, 0, RootPtrPage), ReadWrite)
			if err != nil {
				return nil, err
			}
			rp := rootPg.(*rootPtrPage)
			rp.rootPageNo = left.pid.PageNo
			rp.rootCategory = LeafPage
			rp.MarkDirty(true, tid)
			left.parentPageNo = 0
			left.parentCategory = RootPtrPage
			dirtied = append(dirtied, rp, left)
			freed2, err := f.setEmptyPage(tid, parent.pid.PageNo)
			if err != nil {
				return nil, err
			}
			dirtied = append(dirtied, freed2...)
			f.bufPool.DiscardPage(parent.pid)
		} else if parent.parentCategory != RootPtrPage {
			pCeilHalf := (parent.numSlots + 1) / 2
			pEmpty := parent.numSlots - len(parent.entries)
			if pEmpty > pCeilHalf {
				repaired, err := f.handleMinOccupancyInternalPage(tid, parent)
				if err != nil {
					return nil, err
				}
				dirtied = append(dirtied, repaired...)
			}
		}
		return dirtied, nil
	}

	// redistribute
	var left, right *leafPage
	if isLeftSibling {
		left, right = sibling, leaf
	} else {
		left, right = leaf, sibling
	}
	for absDiff(len(left.tuples), len(right.tuples)) > 1 {
		if len(left.tuples) > len(right.tuples) {
			t := left.tuples[len(left.tuples)-1]
			left.tuples = left.tuples[:len(left.tuples)-1]
			right.tuples = append([]*Tuple{t}, right.tuples...)
		} else {
			t := right.tuples[0]
			right.tuples = right.tuples[1:]
			left.tuples = append(left.tuples, t)
		}
	}
	for i, t := range left.tuples {
		rid := RecordID{PageID: left.pid, SlotNo: i}
		t.Rid = &rid
	}
	for i, t := range right.tuples {
		rid := RecordID{PageID: right.pid, SlotNo: i}
		t.Rid = &rid
	}
	left.MarkDirty(true, tid)
	right.MarkDirty(true, tid)
	parent.entries[sepIdx].key = left.tuples[len(left.tuples)-1].Fields[leaf.keyField]
	parent.MarkDirty(true, tid)
	dirtied = append(dirtied, left, right, parent)
	return dirtied, nil
}

// handleMinOccupancyInternalPage is handleMinOccupancyLeafPage's analogue
// for internal pages: merge pulls the parent's separator down between the
// two halves' entries; redistribute rotates one entry through the parent at
// a time.
func (f *BTreeFile) handleMinOccupancyInternalPage(tid TransactionID, page *internalPage) ([]Page, error) {
	ppg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, page.parentPageNo, InternalPage), ReadWrite)
	if err != nil {
		return nil, err
	}
	parent := ppg.(*internalPage)
	sibPageNo, isLeftSibling, sepIdx := siblingFor(parent, page.pid.PageNo)
	spg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, sibPageNo, InternalPage), ReadWrite)
	if err != nil {
		return nil, err
	}
	sibling := spg.(*internalPage)

	var dirtied []Page
	ceilHalf := (page.numSlots + 1) / 2
	siblingEmpty := sibling.numSlots - len(sibling.entries)

	if siblingEmpty >= ceilHalf {
		var left, right *internalPage
		if isLeftSibling {
			left, right = sibling, page
		} else {
			left, right = page, sibling
		}
		sepKey := parent.entries[sepIdx].key
		bridge := &btreeEntry{
			leftChild:  left.entries[len(left.entries)-1].rightChild,
			rightChild: right.entries[0].leftChild,
			key:        sepKey,
		}
		merged := append(append([]*btreeEntry{}, left.entries...), bridge)
		merged = append(merged, right.entries...)
		left.entries = merged

		childDirtied, err := f.updateParentPointers(tid, left)
		if err != nil {
			return nil, err
		}
		left.MarkDirty(true, tid)
		dirtied = append(dirtied, childDirtied...)
		dirtied = append(dirtied, left)

		f.removeEntryFromInternal(parent, sepIdx, left.pid.PageNo)
		freed, err := f.setEmptyPage(tid, right.pid.PageNo)
		if err != nil {
			return nil, err
		}
		dirtied = append(dirtied, freed...)
		f.bufPool.DiscardPage(right.pid)
		parent.MarkDirty(true, tid)
		dirtied = append(dirtied, parent)

		if len(parent.entries) == 0 && parent.parentCategory == RootPtrPage {
			rootPg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, 0, RootPtrPage), ReadWrite)
			if err != nil {
				return nil, err
			}
			rp := rootPg.(*rootPtrPage)
			rp.rootPageNo = left.pid.PageNo
			rp.rootCategory = InternalPage
			rp.MarkDirty(true, tid)
			left.parentPageNo = 0
			left.parentCategory = RootPtrPage
			dirtied = append(dirtied, rp, left)
			freed2, err := f.setEmptyPage(tid, parent.pid.PageNo)
			if err != nil {
				return nil, err
			}
			dirtied = append(dirtied, freed2...)
			f.bufPool.DiscardPage(parent.pid)
		} else if parent.parentCategory != RootPtrPage {
			pCeilHalf := (parent.numSlots + 1) / 2
			pEmpty := parent.numSlots - len(parent.entries)
			if pEmpty > pCeilHalf {
				repaired, err := f.handleMinOccupancyInternalPage(tid, parent)
				if err != nil {
					return nil, err
				}
				dirtied = append(dirtied, repaired...)
			}
		}
		return dirtied, nil
	}

	// redistribute, rotating one entry through the parent's separator at a time
	var left, right *internalPage
	if isLeftSibling {
		left, right = sibling, page
	} else {
		left, right = page, sibling
	}
	for absDiff(len(left.entries), len(right.entries)) > 1 {
		if len(left.entries) > len(right.entries) {
			moving := left.entries[len(left.entries)-1]
			left.entries = left.entries[:len(left.entries)-1]
			oldSep := parent.entries[sepIdx].key
			newEntry := &btreeEntry{leftChild: moving.rightChild, rightChild: right.entries[0].leftChild, key: oldSep}
			right.entries = append([]*btreeEntry{newEntry}, right.entries...)
			parent.entries[sepIdx].key = moving.key
		} else {
			moving := right.entries[0]
			right.entries = right.entries[1:]
			oldSep := parent.entries[sepIdx].key
			newEntry := &btreeEntry{leftChild: left.entries[len(left.entries)-1].rightChild, rightChild: moving.leftChild, key: oldSep}
			left.entries = append(left.entries, newEntry)
			parent.entries[sepIdx].key = moving.key
		}
	}
	leftDirtied, err := f.updateParentPointers(tid, left)
	if err != nil {
		return nil, err
	}
	rightDirtied, err := f.updateParentPointers(tid, right)
	if err != nil {
		return nil, err
	}
	left.MarkDirty(true, tid)
	right.MarkDirty(true, tid)
	parent.MarkDirty(true, tid)
	dirtied = append(dirtied, leftDirtied...)
	dirtied = append(dirtied, rightDirtied...)
	dirtied = append(dirtied, left, right, parent)
	return dirtied, nil
}

// deleteTuple locates t's leaf via its key, removes it, and repairs minimum
// occupancy if the deletion dropped the leaf below it.
func (f *BTreeFile) deleteTuple(tid TransactionID, t *Tuple) ([]Page, error) {
	rootPg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, 0, RootPtrPage), ReadOnly)
	if err != nil {
		return nil, err
	}
	rp := rootPg.(*rootPtrPage)
	if rp.rootPageNo == 0 {
		return nil, newGoDBError(TupleNotFoundError, "tree is empty")
	}
	rootPid := NewTreePageID(f.id, rp.rootPageNo, rp.rootCategory)
	leaf, err := f.findLeafPage(tid, rootPid, t.Fields[f.keyField], ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := leaf.deleteTuple(t); err != nil {
		return nil, err
	}
	leaf.MarkDirty(true, tid)
	dirtied := []Page{leaf}

	ceilHalf := (leaf.numSlots + 1) / 2
	emptySlots := leaf.numSlots - len(leaf.tuples)
	if leaf.parentCategory != RootPtrPage && emptySlots > ceilHalf {
		repaired, err := f.handleMinOccupancyLeafPage(tid, leaf)
		if err != nil {
			return nil, err
		}
		dirtied = append(dirtied, repaired...)
	}
	return dirtied, nil
}

// btreeFileIterator walks every leaf left-to-right via the sibling chain,
// starting from the leftmost leaf.
type btreeFileIterator struct {
	f       *BTreeFile
	tid     TransactionID
	curLeaf *leafPage
	idx     int
	started bool
}

func (it *btreeFileIterator) advance() (*Tuple, error) {
	for {
		if !it.started {
			it.started = true
			rootPg, err := it.f.bufPool.GetPage(it.tid, NewTreePageID(it.f.id, 0, RootPtrPage), ReadOnly)
			if err != nil {
				return nil, err
			}
			rp := rootPg.(*rootPtrPage)
			if rp.rootPageNo == 0 {
				return nil, nil
			}
			leaf, err := it.f.findLeafPage(it.tid, NewTreePageID(it.f.id, rp.rootPageNo, rp.rootCategory), nil, ReadOnly)
			if err != nil {
				return nil, err
			}
			it.curLeaf = leaf
			it.idx = 0
		}
		if it.curLeaf == nil {
			return nil, nil
		}
		if it.idx < len(it.curLeaf.tuples) {
			t := it.curLeaf.tuples[it.idx]
			it.idx++
			return t, nil
		}
		if it.curLeaf.rightPageNo == 0 {
			return nil, nil
		}
		pg, err := it.f.bufPool.GetPage(it.tid, NewTreePageID(it.f.id, it.curLeaf.rightPageNo, LeafPage), ReadOnly)
		if err != nil {
			return nil, err
		}
		it.curLeaf = pg.(*leafPage)
		it.idx = 0
	}
}

// Iterator returns a full, in-key-order scan of every tuple in the tree.
func (f *BTreeFile) Iterator(tid TransactionID) (DBFileIterator, error) {
	it := &btreeFileIterator{f: f, tid: tid}
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		it.curLeaf = nil
		it.idx = 0
		it.started = false
		return it.advance, nil
	}), nil
}

// IndexIterator returns a scan restricted to tuples matching (op, key):
// EQUALS/GT/GE descend directly to key's leaf; LT/LE start at the leftmost
// leaf. Either scan exploits sort order to stop early once the predicate
// can no longer hold.
func (f *BTreeFile) IndexIterator(tid TransactionID, op BoolOp, key DBValue) (DBFileIterator, error) {
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		rootPg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, 0, RootPtrPage), ReadOnly)
		if err != nil {
			return nil, err
		}
		rp := rootPg.(*rootPtrPage)
		if rp.rootPageNo == 0 {
			return func() (*Tuple, error) { return nil, nil }, nil
		}
		rootPid := NewTreePageID(f.id, rp.rootPageNo, rp.rootCategory)

		var startKey DBValue
		if op != OpLt && op != OpLe {
			startKey = key
		}
		leaf, err := f.findLeafPage(tid, rootPid, startKey, ReadOnly)
		if err != nil {
			return nil, err
		}
		idx := 0
		done := false
		return func() (*Tuple, error) {
			for {
				if done {
					return nil, nil
				}
				if idx >= len(leaf.tuples) {
					if leaf.rightPageNo == 0 {
						done = true
						return nil, nil
					}
					pg, err := f.bufPool.GetPage(tid, NewTreePageID(f.id, leaf.rightPageNo, LeafPage), ReadOnly)
					if err != nil {
						return nil, err
					}
					leaf = pg.(*leafPage)
					idx = 0
					continue
				}
				t := leaf.tuples[idx]
				idx++
				k := t.Fields[f.keyField]
				cmp, err := compareValues(k, key)
				if err != nil {
					return nil, err
				}
				switch op {
				case OpEq:
					if cmp == OrderedGreaterThan {
						done = true
						return nil, nil
					}
					if cmp == OrderedEqual {
						return t, nil
					}
				case OpGt:
					if cmp == OrderedGreaterThan {
						return t, nil
					}
				case OpGe:
					if cmp != OrderedLessThan {
						return t, nil
					}
				case OpLt:
					if cmp == OrderedLessThan {
						return t, nil
					}
					done = true
					return nil, nil
				case OpLe:
					if cmp != OrderedGreaterThan {
						return t, nil
					}
					done = true
					return nil, nil
				default:
					return nil, newGoDBError(TypeMismatchError, "unsupported index scan operator %v", op)
				}
			}
		}, nil
	}), nil
}
