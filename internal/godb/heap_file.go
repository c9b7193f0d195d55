package godb

import (
	"bufio"
	"bytes"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// HeapFile is an unordered, paged collection of tuples backed by a single
// file on disk: a flat concatenation of PageSize blocks. It owns the bytes
// on disk but never caches a page itself — every read and write goes
// through the BufferPool supplied at construction.
type HeapFile struct {
	id          int
	td          *TupleDesc
	backingFile string
	numPages    int
	bufPool     *BufferPool
	mu          sync.Mutex
}

// tableIDFromPath hashes the canonical (absolute) path of a backing file
// into a stable table id, so the same file always maps to the same id
// across process restarts.
func tableIDFromPath(path string) int {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	h := fnv.New32a()
	h.Write([]byte(abs))
	return int(h.Sum32())
}

// NewHeapFile opens (creating if necessary) fromFile as the backing store
// for a table with the given schema, doing its page I/O through bp. It does
// not register the file with bp's catalog; callers do that with AddTable.
func NewHeapFile(fromFile string, td *TupleDesc, bp *BufferPool) (*HeapFile, error) {
	f, err := os.OpenFile(fromFile, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	numPages := int((fi.Size() + int64(PageSize) - 1) / int64(PageSize))
	hf := &HeapFile{
		id:          tableIDFromPath(fromFile),
		td:          td,
		backingFile: fromFile,
		numPages:    numPages,
		bufPool:     bp,
	}

	// A zero-length file reports numPages == 1, not 0, so insertTuple's
	// scan-for-a-free-slot loop never needs a special case for "no pages
	// yet": page 0 is written out here so it's always there to read.
	if numPages == 0 {
		empty, err := newHeapPage(td, 0, hf)
		if err != nil {
			return nil, err
		}
		if err := hf.writePage(empty); err != nil {
			return nil, err
		}
		hf.numPages = 1
	}
	return hf, nil
}

// ID returns the stable table id derived from the backing file's path.
func (f *HeapFile) ID() int {
	return f.id
}

// BackingFile returns the path of the file backing this table.
func (f *HeapFile) BackingFile() string {
	return f.backingFile
}

// NumPages returns the number of pages currently in the file.
func (f *HeapFile) NumPages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.numPages
}

// Descriptor returns the schema of tuples stored in this file.
func (f *HeapFile) Descriptor() *TupleDesc {
	return f.td
}

// readPage reads the pageNo'th PageSize-byte block from disk and parses it
// into a heapPage. Fails with IllegalPageError if the requested page is
// beyond the current end of file.
func (f *HeapFile) readPage(pid PageID) (Page, error) {
	file, err := os.OpenFile(f.backingFile, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	fi, err := file.Stat()
	if err != nil {
		return nil, err
	}
	offset := int64(pid.PageNo) * int64(PageSize)
	if offset >= fi.Size() {
		return nil, newGoDBError(IllegalPageError, "page %d is beyond end of file %s", pid.PageNo, f.backingFile)
	}

	buf := make([]byte, PageSize)
	if _, err := file.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	pg, err := newHeapPage(f.td, pid.PageNo, f)
	if err != nil {
		return nil, err
	}
	if err := pg.initFromBuffer(bytes.NewBuffer(buf)); err != nil {
		return nil, err
	}
	return pg, nil
}

// writePage forces p's current bytes back to its offset in the backing
// file.
func (f *HeapFile) writePage(p Page) error {
	hp, ok := p.(*heapPage)
	if !ok {
		return newGoDBError(IncompatibleTypesError, "HeapFile.writePage given a non-heap page")
	}
	file, err := os.OpenFile(f.backingFile, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	buf, err := hp.pageData()
	if err != nil {
		return err
	}
	_, err = file.WriteAt(buf, int64(hp.pid.PageNo)*int64(PageSize))
	return err
}

// insertTuple scans pages 0..numPages for a free slot, inserting into the
// first one found; if none has room, it appends a fresh page to disk and
// inserts there. Every page it dirties is acquired READ_WRITE through the
// buffer pool, as the spec requires.
func (f *HeapFile) insertTuple(tid TransactionID, t *Tuple) ([]Page, error) {
	f.mu.Lock()
	numPages := f.numPages
	f.mu.Unlock()

	for p := 0; p < numPages; p++ {
		pg, err := f.bufPool.GetPage(tid, NewHeapPageID(f.id, p), ReadWrite)
		if err != nil {
			return nil, err
		}
		hp := pg.(*heapPage)
		if hp.getNumEmptySlots() == 0 {
			continue
		}
		if _, err := hp.insertTuple(t); err != nil {
			if err == ErrPageFull {
				continue
			}
			return nil, err
		}
		hp.MarkDirty(true, tid)
		return []Page{hp}, nil
	}

	f.mu.Lock()
	newPageNo := f.numPages
	f.numPages++
	f.mu.Unlock()

	empty, err := newHeapPage(f.td, newPageNo, f)
	if err != nil {
		return nil, err
	}
	if err := f.writePage(empty); err != nil {
		return nil, err
	}

	pg, err := f.bufPool.GetPage(tid, NewHeapPageID(f.id, newPageNo), ReadWrite)
	if err != nil {
		return nil, err
	}
	hp := pg.(*heapPage)
	if _, err := hp.insertTuple(t); err != nil {
		return nil, err
	}
	hp.MarkDirty(true, tid)
	return []Page{hp}, nil
}

// deleteTuple resolves t.Rid to a page and slot and deletes it there.
func (f *HeapFile) deleteTuple(tid TransactionID, t *Tuple) ([]Page, error) {
	if t.Rid == nil {
		return nil, newGoDBError(TupleNotFoundError, "tuple has no RecordID, cannot delete")
	}
	rid := *t.Rid
	if rid.PageID.TableID != f.id {
		return nil, newGoDBError(TupleNotFoundError, "tuple belongs to a different table")
	}

	pg, err := f.bufPool.GetPage(tid, rid.PageID, ReadWrite)
	if err != nil {
		return nil, err
	}
	hp, ok := pg.(*heapPage)
	if !ok {
		return nil, newGoDBError(IncompatibleTypesError, "buffer pool returned a non-heap page")
	}
	if err := hp.deleteTuple(rid); err != nil {
		return nil, err
	}
	hp.MarkDirty(true, tid)
	return []Page{hp}, nil
}

// heapFileIterator walks the file page by page, acquiring ReadOnly on each
// via the buffer pool, advancing only once the current page is exhausted.
type heapFileIterator struct {
	f      *HeapFile
	tid    TransactionID
	pageNo int
	pgIter func() (*Tuple, error)
}

func (it *heapFileIterator) advance() (*Tuple, error) {
	for {
		if it.pgIter == nil {
			if it.pageNo >= it.f.NumPages() {
				return nil, nil
			}
			pg, err := it.f.bufPool.GetPage(it.tid, NewHeapPageID(it.f.id, it.pageNo), ReadOnly)
			if err != nil {
				return nil, err
			}
			it.pgIter = pg.(*heapPage).tupleIter()
			it.pageNo++
		}
		t, err := it.pgIter()
		if err != nil {
			return nil, err
		}
		if t == nil {
			it.pgIter = nil
			continue
		}
		return t, nil
	}
}

// Iterator returns a fresh DBFileIterator over every tuple in the file, in
// page/slot order.
func (f *HeapFile) Iterator(tid TransactionID) (DBFileIterator, error) {
	it := &heapFileIterator{f: f, tid: tid}
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		it.pageNo = 0
		it.pgIter = nil
		return it.advance, nil
	}), nil
}

// LoadFromCSV populates the file from a delimited text file. hasHeader
// skips the first line; skipLastField drops a trailing empty column some
// exported datasets carry.
func (f *HeapFile) LoadFromCSV(file *os.File, hasHeader bool, sep string, skipLastField bool) error {
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Split(line, sep)
		if skipLastField && len(fields) > 0 {
			fields = fields[:len(fields)-1]
		}
		lineNo++
		if lineNo == 1 && hasHeader {
			continue
		}
		if len(fields) != len(f.td.Fields) {
			return newGoDBError(MalformedDataError, "line %d has %d fields, want %d", lineNo, len(fields), len(f.td.Fields))
		}

		values := make([]DBValue, len(fields))
		for i, raw := range fields {
			switch f.td.Fields[i].Ftype {
			case IntType:
				v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
				if err != nil {
					return newGoDBError(TypeMismatchError, "line %d: %q is not an int", lineNo, raw)
				}
				values[i] = IntField{Value: int32(v)}
			case StringType:
				s := raw
				if len(s) > StringLength {
					s = s[:StringLength]
				}
				values[i] = StringField{Value: s}
			}
		}

		tid := NewTID()
		if err := f.bufPool.BeginTransaction(tid); err != nil {
			return err
		}
		t := &Tuple{Desc: *f.td, Fields: values}
		if _, err := f.insertTuple(tid, t); err != nil {
			f.bufPool.TransactionComplete(tid, false)
			return err
		}
		f.bufPool.TransactionComplete(tid, true)
	}
	return scanner.Err()
}
