package godb

// InsertOp drains its child, inserting every tuple it produces into tableID
// through the buffer pool, and yields a single output tuple holding the
// count inserted.
type InsertOp struct {
	bp      *BufferPool
	tableID int
	child   Operator
}

// NewInsertOp builds an InsertOp that inserts every tuple child produces
// into the table identified by tableID, via bp.
func NewInsertOp(bp *BufferPool, tableID int, child Operator) (*InsertOp, error) {
	return &InsertOp{bp: bp, tableID: tableID, child: child}, nil
}

// Descriptor returns a one-field schema naming the number of rows inserted.
func (i *InsertOp) Descriptor() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{Fname: "count", Ftype: IntType}}}
}

func (i *InsertOp) Iterator(tid TransactionID) (DBFileIterator, error) {
	done := false
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		childIter, err := i.child.Iterator(tid)
		if err != nil {
			return nil, err
		}
		if err := childIter.Open(); err != nil {
			return nil, err
		}
		return func() (*Tuple, error) {
			if done {
				return nil, nil
			}
			count := int32(0)
			for {
				has, err := childIter.HasNext()
				if err != nil {
					return nil, err
				}
				if !has {
					break
				}
				t, err := childIter.Next()
				if err != nil {
					return nil, err
				}
				if err := i.bp.InsertTuple(tid, i.tableID, t); err != nil {
					return nil, err
				}
				count++
			}
			done = true
			return &Tuple{Desc: *i.Descriptor(), Fields: []DBValue{IntField{Value: count}}}, nil
		}, nil
	}), nil
}
