package godb

// DeleteOp drains its child, deleting every tuple it produces from tableID
// through the buffer pool, and yields a single output tuple holding the
// count deleted.
type DeleteOp struct {
	bp      *BufferPool
	tableID int
	child   Operator
}

// NewDeleteOp builds a DeleteOp that deletes every tuple child produces from
// the table identified by tableID, via bp.
func NewDeleteOp(bp *BufferPool, tableID int, child Operator) (*DeleteOp, error) {
	return &DeleteOp{bp: bp, tableID: tableID, child: child}, nil
}

// Descriptor returns a one-field schema naming the number of rows deleted.
func (d *DeleteOp) Descriptor() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{Fname: "count", Ftype: IntType}}}
}

func (d *DeleteOp) Iterator(tid TransactionID) (DBFileIterator, error) {
	done := false
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		childIter, err := d.child.Iterator(tid)
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
				if err := d.bp.DeleteTuple(tid, d.tableID, t); err != nil {
					return nil, err
				}
				count++
			}
			done = true
			return &Tuple{Desc: *d.Descriptor(), Fields: []DBValue{IntField{Value: count}}}, nil
		}, nil
	}), nil
}
