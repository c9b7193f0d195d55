package godb

// LimitOp passes through at most the first n tuples of its child, where n is
// the value of limitTups evaluated once against a nil tuple (so a constant
// expression, or a parameter bound before the query runs).
type LimitOp struct {
	child     Operator
	limitTups Expr
}

// NewLimitOp builds a LimitOp over child, stopping after limitTups tuples.
func NewLimitOp(limitTups Expr, child Operator) (*LimitOp, error) {
	return &LimitOp{child: child, limitTups: limitTups}, nil
}

func (l *LimitOp) Descriptor() *TupleDesc {
	return l.child.Descriptor()
}

func (l *LimitOp) Iterator(tid TransactionID) (DBFileIterator, error) {
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		lim, err := l.limitTups.EvalExpr(nil)
		if err != nil {
			return nil, err
		}
		limInt, ok := lim.(IntField)
		if !ok {
			return nil, newGoDBError(TypeMismatchError, "LIMIT expression must be an int")
		}
		childIter, err := l.child.Iterator(tid)
		if err != nil {
			return nil, err
		}
		if err := childIter.Open(); err != nil {
			return nil, err
		}
		count := int32(0)
		return func() (*Tuple, error) {
			if count >= limInt.Value {
				return nil, nil
			}
			has, err := childIter.HasNext()
			if err != nil {
				return nil, err
			}
			if !has {
				return nil, nil
			}
			t, err := childIter.Next()
			if err != nil {
				return nil, err
			}
			count++
			return t, nil
		}, nil
	}), nil
}
