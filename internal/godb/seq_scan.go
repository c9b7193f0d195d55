package godb

// SeqScan is a full scan of one table's DBFile, stamping every field's
// TableQualifier with alias so a later Join or Project can disambiguate
// same-named columns from two tables.
type SeqScan struct {
	file  DBFile
	alias string
}

// NewSeqScan builds a scan of file, tagging its output fields with alias.
func NewSeqScan(file DBFile, alias string) *SeqScan {
	return &SeqScan{file: file, alias: alias}
}

// Descriptor returns file's schema with every field's TableQualifier set to
// alias.
func (s *SeqScan) Descriptor() *TupleDesc {
	src := s.file.Descriptor()
	fields := make([]FieldType, len(src.Fields))
	for i, f := range src.Fields {
		f.TableQualifier = s.alias
		fields[i] = f
	}
	return &TupleDesc{Fields: fields}
}

// Iterator re-tags each tuple from the underlying file's iterator with this
// scan's output descriptor before yielding it.
func (s *SeqScan) Iterator(tid TransactionID) (DBFileIterator, error) {
	desc := s.Descriptor()
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		it, err := s.file.Iterator(tid)
		if err != nil {
			return nil, err
		}
		if err := it.Open(); err != nil {
			return nil, err
		}
		return func() (*Tuple, error) {
			has, err := it.HasNext()
			if err != nil {
				return nil, err
			}
			if !has {
				return nil, nil
			}
			t, err := it.Next()
			if err != nil {
				return nil, err
			}
			tagged := &Tuple{Desc: *desc, Fields: t.Fields, Rid: t.Rid}
			return tagged, nil
		}, nil
	}), nil
}

// IndexScan restricts a SeqScan-like output to tuples matching (op, key)
// against a BTreeFile's key field, exploiting the tree's sort order instead
// of reading every page.
type IndexScan struct {
	file  *BTreeFile
	alias string
	op    BoolOp
	key   DBValue
}

// NewIndexScan builds a scan of file restricted to its key field satisfying
// (op, key), tagging output fields with alias.
func NewIndexScan(file *BTreeFile, alias string, op BoolOp, key DBValue) *IndexScan {
	return &IndexScan{file: file, alias: alias, op: op, key: key}
}

func (s *IndexScan) Descriptor() *TupleDesc {
	src := s.file.Descriptor()
	fields := make([]FieldType, len(src.Fields))
	for i, f := range src.Fields {
		f.TableQualifier = s.alias
		fields[i] = f
	}
	return &TupleDesc{Fields: fields}
}

func (s *IndexScan) Iterator(tid TransactionID) (DBFileIterator, error) {
	desc := s.Descriptor()
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		it, err := s.file.IndexIterator(tid, s.op, s.key)
		if err != nil {
			return nil, err
		}
		if err := it.Open(); err != nil {
			return nil, err
		}
		return func() (*Tuple, error) {
			has, err := it.HasNext()
			if err != nil {
				return nil, err
			}
			if !has {
				return nil, nil
			}
			t, err := it.Next()
			if err != nil {
				return nil, err
			}
			tagged := &Tuple{Desc: *desc, Fields: t.Fields, Rid: t.Rid}
			return tagged, nil
		}, nil
	}), nil
}
