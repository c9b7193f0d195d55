package godb

import "sort"

// EqualityJoin is a blocking sort-merge equijoin: both children are
// materialized, sorted by their join expression, and then merge-scanned so
// that every matching pair is emitted without a nested-loop scan.
type EqualityJoin struct {
	leftField  Expr
	rightField Expr
	left       Operator
	right      Operator
}

// NewJoin builds an equijoin of left and right on leftField = rightField.
func NewJoin(left Operator, leftField Expr, right Operator, rightField Expr) (*EqualityJoin, error) {
	return &EqualityJoin{leftField: leftField, rightField: rightField, left: left, right: right}, nil
}

func (j *EqualityJoin) Descriptor() *TupleDesc {
	return j.left.Descriptor().merge(j.right.Descriptor())
}

func sortByExpr(tuples []*Tuple, expr Expr) error {
	var sortErr error
	sort.SliceStable(tuples, func(i, k int) bool {
		state, err := tuples[i].compareField(tuples[k], expr)
		if err != nil {
			sortErr = err
			return false
		}
		return state == OrderedLessThan
	})
	return sortErr
}

// equalRange returns end, where [start, end) is the run of tuples, starting
// at start, whose expr value equals tuples[start]'s.
func equalRange(tuples []*Tuple, start int, expr Expr) (int, error) {
	end := start + 1
	for end < len(tuples) {
		state, err := tuples[start].compareField(tuples[end], expr)
		if err != nil {
			return end, err
		}
		if state != OrderedEqual {
			break
		}
		end++
	}
	return end, nil
}

func (j *EqualityJoin) Iterator(tid TransactionID) (DBFileIterator, error) {
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		leftIter, err := j.left.Iterator(tid)
		if err != nil {
			return nil, err
		}
		if err := leftIter.Open(); err != nil {
			return nil, err
		}
		leftTuples, err := drainAll(leftIter)
		if err != nil {
			return nil, err
		}
		if err := leftIter.Close(); err != nil {
			return nil, err
		}

		rightIter, err := j.right.Iterator(tid)
		if err != nil {
			return nil, err
		}
		if err := rightIter.Open(); err != nil {
			return nil, err
		}
		rightTuples, err := drainAll(rightIter)
		if err != nil {
			return nil, err
		}
		if err := rightIter.Close(); err != nil {
			return nil, err
		}

		if err := sortByExpr(leftTuples, j.leftField); err != nil {
			return nil, err
		}
		if err := sortByExpr(rightTuples, j.rightField); err != nil {
			return nil, err
		}

		var joined []*Tuple
		li, ri := 0, 0
		for li < len(leftTuples) && ri < len(rightTuples) {
			lv, err := j.leftField.EvalExpr(leftTuples[li])
			if err != nil {
				return nil, err
			}
			rv, err := j.rightField.EvalExpr(rightTuples[ri])
			if err != nil {
				return nil, err
			}
			state, err := compareValues(lv, rv)
			if err != nil {
				return nil, err
			}
			switch state {
			case OrderedLessThan:
				li++
			case OrderedGreaterThan:
				ri++
			default:
				lEnd, err := equalRange(leftTuples, li, j.leftField)
				if err != nil {
					return nil, err
				}
				rEnd, err := equalRange(rightTuples, ri, j.rightField)
				if err != nil {
					return nil, err
				}
				for a := li; a < lEnd; a++ {
					for b := ri; b < rEnd; b++ {
						joined = append(joined, joinTuples(leftTuples[a], rightTuples[b]))
					}
				}
				li, ri = lEnd, rEnd
			}
		}

		idx := 0
		return func() (*Tuple, error) {
			if idx >= len(joined) {
				return nil, nil
			}
			t := joined[idx]
			idx++
			return t, nil
		}, nil
	}), nil
}
