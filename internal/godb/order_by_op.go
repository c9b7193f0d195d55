package godb

import "sort"

// OrderBy is a blocking operator that materializes its child and serves
// tuples back out sorted by orderBy, most significant expression first.
// ascending controls the direction of each expression independently.
type OrderBy struct {
	orderBy   []Expr
	ascending []bool
	child     Operator
}

// NewOrderBy builds an OrderBy over child, sorting by orderBy (one direction
// flag per expression).
func NewOrderBy(orderBy []Expr, ascending []bool, child Operator) (*OrderBy, error) {
	if len(orderBy) != len(ascending) {
		return nil, newGoDBError(MalformedDataError, "order by: %d expressions but %d directions", len(orderBy), len(ascending))
	}
	return &OrderBy{orderBy: orderBy, ascending: ascending, child: child}, nil
}

func (o *OrderBy) Descriptor() *TupleDesc {
	return o.child.Descriptor()
}

// tupleSorter implements sort.Interface over a materialized tuple slice,
// breaking ties by trying each orderBy expression in turn.
type tupleSorter struct {
	tuples    []*Tuple
	orderBy   []Expr
	ascending []bool
	err       error
}

func (s *tupleSorter) Len() int      { return len(s.tuples) }
func (s *tupleSorter) Swap(i, j int) { s.tuples[i], s.tuples[j] = s.tuples[j], s.tuples[i] }

func (s *tupleSorter) Less(i, j int) bool {
	for k, expr := range s.orderBy {
		state, err := s.tuples[i].compareField(s.tuples[j], expr)
		if err != nil {
			s.err = err
			return false
		}
		if state == OrderedEqual {
			continue
		}
		lt := state == OrderedLessThan
		if !s.ascending[k] {
			lt = !lt
		}
		return lt
	}
	return false
}

func (o *OrderBy) Iterator(tid TransactionID) (DBFileIterator, error) {
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		childIter, err := o.child.Iterator(tid)
		if err != nil {
			return nil, err
		}
		if err := childIter.Open(); err != nil {
			return nil, err
		}
		tuples, err := drainAll(childIter)
		if err != nil {
			return nil, err
		}
		if err := childIter.Close(); err != nil {
			return nil, err
		}
		s := &tupleSorter{tuples: tuples, orderBy: o.orderBy, ascending: o.ascending}
		sort.Stable(s)
		if s.err != nil {
			return nil, s.err
		}
		idx := 0
		return func() (*Tuple, error) {
			if idx >= len(s.tuples) {
				return nil, nil
			}
			t := s.tuples[idx]
			idx++
			return t, nil
		}, nil
	}), nil
}
