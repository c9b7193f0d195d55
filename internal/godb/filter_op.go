package godb

// Filter yields only the child tuples for which left op right holds, where
// left and right are evaluated against each candidate tuple in turn.
type Filter struct {
	left  Expr
	op    BoolOp
	right Expr
	child Operator
}

// NewFilter builds a Filter over child that keeps only tuples satisfying
// left op right.
func NewFilter(left Expr, op BoolOp, right Expr, child Operator) (*Filter, error) {
	return &Filter{left: left, op: op, right: right, child: child}, nil
}

func (f *Filter) Descriptor() *TupleDesc {
	return f.child.Descriptor()
}

func (f *Filter) Iterator(tid TransactionID) (DBFileIterator, error) {
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		childIter, err := f.child.Iterator(tid)
		if err != nil {
			return nil, err
		}
		if err := childIter.Open(); err != nil {
			return nil, err
		}
		return func() (*Tuple, error) {
			for {
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
				lv, err := f.left.EvalExpr(t)
				if err != nil {
					return nil, err
				}
				rv, err := f.right.EvalExpr(t)
				if err != nil {
					return nil, err
				}
				if lv.EvalPred(rv, f.op) {
					return t, nil
				}
			}
		}, nil
	}), nil
}
