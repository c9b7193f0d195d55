package godb

// DBFileIterator is the uniform pull-model contract every tuple source
// exposes: heap files, B+ tree files and index scans, and every relational
// operator built on top of them. Iterators are single-threaded and
// restartable: Rewind is defined as Close followed by Open, so a fresh call
// to Open always re-acquires whatever buffer-pool locks the source needs.
type DBFileIterator interface {
	Open() error
	HasNext() (bool, error)
	Next() (*Tuple, error)
	Rewind() error
	Close() error
}

// Operator is a node in a query plan: it knows the schema of the rows it
// produces and can be pulled from via the DBFileIterator contract.
type Operator interface {
	Descriptor() *TupleDesc
	Iterator(tid TransactionID) (DBFileIterator, error)
}

// DBFile is what the buffer pool depends on to satisfy a cache miss and to
// flush or apply mutations. HeapFile and BTreeFile both implement it.
type DBFile interface {
	ID() int
	Descriptor() *TupleDesc
	readPage(pid PageID) (Page, error)
	writePage(p Page) error
	insertTuple(tid TransactionID, t *Tuple) ([]Page, error)
	deleteTuple(tid TransactionID, t *Tuple) ([]Page, error)
	Iterator(tid TransactionID) (DBFileIterator, error)
}

// funcIterator adapts the lazy, "return nil when exhausted" next-closures
// that the page- and file-level code builds internally into the stateful
// Open/HasNext/Next/Rewind/Close contract above. open is invoked fresh on
// every Open (and therefore every Rewind), which is exactly where the
// closures being adapted re-acquire their buffer-pool locks — so Rewind's
// "fresh lock acquisition on reopen" rule falls out for free.
type funcIterator struct {
	open   func() (func() (*Tuple, error), error)
	next   func() (*Tuple, error)
	peeked *Tuple
	isOpen bool
}

func newFuncIterator(open func() (func() (*Tuple, error), error)) *funcIterator {
	return &funcIterator{open: open}
}

func (it *funcIterator) Open() error {
	next, err := it.open()
	if err != nil {
		return err
	}
	it.next = next
	it.peeked = nil
	it.isOpen = true
	return nil
}

func (it *funcIterator) HasNext() (bool, error) {
	if !it.isOpen {
		return false, newGoDBError(NotOpenError, "iterator not open")
	}
	if it.peeked != nil {
		return true, nil
	}
	t, err := it.next()
	if err != nil {
		return false, err
	}
	it.peeked = t
	return t != nil, nil
}

func (it *funcIterator) Next() (*Tuple, error) {
	if !it.isOpen {
		return nil, newGoDBError(NotOpenError, "iterator not open")
	}
	if it.peeked == nil {
		t, err := it.next()
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, newGoDBError(NoSuchElementError, "next called with no tuples remaining")
		}
		return t, nil
	}
	t := it.peeked
	it.peeked = nil
	return t, nil
}

func (it *funcIterator) Rewind() error {
	if err := it.Close(); err != nil {
		return err
	}
	return it.Open()
}

func (it *funcIterator) Close() error {
	it.isOpen = false
	it.next = nil
	it.peeked = nil
	return nil
}

// drainAll pulls every remaining tuple from it. Used by blocking operators
// (OrderBy, and EqualityJoin for both inputs) that must materialize their
// child before producing their first result.
func drainAll(it DBFileIterator) ([]*Tuple, error) {
	var out []*Tuple
	for {
		has, err := it.HasNext()
		if err != nil {
			return nil, err
		}
		if !has {
			return out, nil
		}
		t, err := it.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
}
