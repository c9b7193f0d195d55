package godb

import "fmt"

// AggType names which aggregate function an AggState computes.
type AggType int

const (
	CountAggregator AggType = iota
	SumAggregator
	AvgAggregator
	MaxAggregator
	MinAggregator
)

// AggState accumulates one aggregate function over a stream of tuples
// belonging to the same group. Init is called once on the prototype (see
// NewAggState); each distinct group then gets its own state via Copy before
// any tuple is seen.
type AggState interface {
	// Init prepares the state to aggregate expr's values, labelling its
	// output field alias.
	Init(alias string, expr Expr) error
	// Copy returns a fresh, empty state of the same kind, ready for a new
	// group.
	Copy() AggState
	// AddTuple folds t into the running aggregate.
	AddTuple(t *Tuple) error
	// Finalize returns the one-field tuple holding the aggregate's result.
	Finalize() *Tuple
	// GetTupleDesc reports the schema of the tuple Finalize will return.
	GetTupleDesc() *TupleDesc
}

func aggFieldValue(expr Expr, t *Tuple) (DBValue, error) {
	return expr.EvalExpr(t)
}

// CountAggState counts the tuples added to it, regardless of their value.
type CountAggState struct {
	alias string
	expr  Expr
	count int32
}

func (a *CountAggState) Init(alias string, expr Expr) error {
	a.alias, a.expr = alias, expr
	return nil
}

func (a *CountAggState) Copy() AggState {
	return &CountAggState{alias: a.alias, expr: a.expr}
}

func (a *CountAggState) AddTuple(t *Tuple) error {
	a.count++
	return nil
}

func (a *CountAggState) Finalize() *Tuple {
	return &Tuple{Desc: *a.GetTupleDesc(), Fields: []DBValue{IntField{Value: a.count}}}
}

func (a *CountAggState) GetTupleDesc() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{Fname: a.alias, Ftype: IntType}}}
}

// SumAggState sums an integer-valued expression across a group.
type SumAggState struct {
	alias string
	expr  Expr
	sum   int32
}

func (a *SumAggState) Init(alias string, expr Expr) error {
	a.alias, a.expr = alias, expr
	return nil
}

func (a *SumAggState) Copy() AggState {
	return &SumAggState{alias: a.alias, expr: a.expr}
}

func (a *SumAggState) AddTuple(t *Tuple) error {
	v, err := aggFieldValue(a.expr, t)
	if err != nil {
		return err
	}
	iv, ok := v.(IntField)
	if !ok {
		return newGoDBError(TypeMismatchError, "SUM requires an int field")
	}
	a.sum += iv.Value
	return nil
}

func (a *SumAggState) Finalize() *Tuple {
	return &Tuple{Desc: *a.GetTupleDesc(), Fields: []DBValue{IntField{Value: a.sum}}}
}

func (a *SumAggState) GetTupleDesc() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{Fname: a.alias, Ftype: IntType}}}
}

// AvgAggState averages an integer-valued expression across a group,
// truncating the result to an integer.
type AvgAggState struct {
	alias string
	expr  Expr
	sum   int32
	count int32
}

func (a *AvgAggState) Init(alias string, expr Expr) error {
	a.alias, a.expr = alias, expr
	return nil
}

func (a *AvgAggState) Copy() AggState {
	return &AvgAggState{alias: a.alias, expr: a.expr}
}

func (a *AvgAggState) AddTuple(t *Tuple) error {
	v, err := aggFieldValue(a.expr, t)
	if err != nil {
		return err
	}
	iv, ok := v.(IntField)
	if !ok {
		return newGoDBError(TypeMismatchError, "AVG requires an int field")
	}
	a.sum += iv.Value
	a.count++
	return nil
}

func (a *AvgAggState) Finalize() *Tuple {
	var avg int32
	if a.count > 0 {
		avg = a.sum / a.count
	}
	return &Tuple{Desc: *a.GetTupleDesc(), Fields: []DBValue{IntField{Value: avg}}}
}

func (a *AvgAggState) GetTupleDesc() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{Fname: a.alias, Ftype: IntType}}}
}

// MaxAggState tracks the maximum value (int or string) of an expression
// across a group.
type MaxAggState struct {
	alias string
	expr  Expr
	val   DBValue
	ftype DBType
}

func (a *MaxAggState) Init(alias string, expr Expr) error {
	a.alias, a.expr = alias, expr
	a.ftype = expr.GetExprType().Ftype
	return nil
}

func (a *MaxAggState) Copy() AggState {
	return &MaxAggState{alias: a.alias, expr: a.expr, ftype: a.ftype}
}

func (a *MaxAggState) AddTuple(t *Tuple) error {
	v, err := aggFieldValue(a.expr, t)
	if err != nil {
		return err
	}
	if a.val == nil {
		a.val = v
		return nil
	}
	state, err := compareValues(v, a.val)
	if err != nil {
		return err
	}
	if state == OrderedGreaterThan {
		a.val = v
	}
	return nil
}

func (a *MaxAggState) Finalize() *Tuple {
	val := a.val
	if val == nil {
		val = zeroValue(a.ftype)
	}
	return &Tuple{Desc: *a.GetTupleDesc(), Fields: []DBValue{val}}
}

func (a *MaxAggState) GetTupleDesc() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{Fname: a.alias, Ftype: a.ftype}}}
}

// MinAggState tracks the minimum value (int or string) of an expression
// across a group.
type MinAggState struct {
	alias string
	expr  Expr
	val   DBValue
	ftype DBType
}

func (a *MinAggState) Init(alias string, expr Expr) error {
	a.alias, a.expr = alias, expr
	a.ftype = expr.GetExprType().Ftype
	return nil
}

func (a *MinAggState) Copy() AggState {
	return &MinAggState{alias: a.alias, expr: a.expr, ftype: a.ftype}
}

func (a *MinAggState) AddTuple(t *Tuple) error {
	v, err := aggFieldValue(a.expr, t)
	if err != nil {
		return err
	}
	if a.val == nil {
		a.val = v
		return nil
	}
	state, err := compareValues(v, a.val)
	if err != nil {
		return err
	}
	if state == OrderedLessThan {
		a.val = v
	}
	return nil
}

func (a *MinAggState) Finalize() *Tuple {
	val := a.val
	if val == nil {
		val = zeroValue(a.ftype)
	}
	return &Tuple{Desc: *a.GetTupleDesc(), Fields: []DBValue{val}}
}

func (a *MinAggState) GetTupleDesc() *TupleDesc {
	return &TupleDesc{Fields: []FieldType{{Fname: a.alias, Ftype: a.ftype}}}
}

func zeroValue(ftype DBType) DBValue {
	if ftype == StringType {
		return StringField{}
	}
	return IntField{}
}

// NewAggState builds a zero-valued, Init'd AggState of kind t.
func NewAggState(t AggType, alias string, expr Expr) (AggState, error) {
	var s AggState
	switch t {
	case CountAggregator:
		s = &CountAggState{}
	case SumAggregator:
		s = &SumAggState{}
	case AvgAggregator:
		s = &AvgAggState{}
	case MaxAggregator:
		s = &MaxAggState{}
	case MinAggregator:
		s = &MinAggState{}
	default:
		return nil, newGoDBError(MalformedDataError, "unknown aggregate type %d", t)
	}
	if err := s.Init(alias, expr); err != nil {
		return nil, err
	}
	return s, nil
}

// Aggregate buckets its child's tuples by groupByExpr (possibly empty, for
// a single whole-table group) and emits one finalized tuple per distinct
// group, each group's copy of protos run independently.
type Aggregate struct {
	protos      []AggState
	groupByExpr []Expr
	child       Operator
}

// NewGroupByAggregator builds an Aggregate over child, computing protos once
// per distinct combination of groupByExpr.
func NewGroupByAggregator(protos []AggState, groupByExpr []Expr, child Operator) (*Aggregate, error) {
	return &Aggregate{protos: protos, groupByExpr: groupByExpr, child: child}, nil
}

func (a *Aggregate) Descriptor() *TupleDesc {
	fields := make([]FieldType, 0, len(a.groupByExpr)+len(a.protos))
	for _, g := range a.groupByExpr {
		fields = append(fields, g.GetExprType())
	}
	for _, p := range a.protos {
		fields = append(fields, p.GetTupleDesc().Fields...)
	}
	return &TupleDesc{Fields: fields}
}

type aggGroup struct {
	keyFields []DBValue
	states    []AggState
}

func (a *Aggregate) groupKey(vals []DBValue) string {
	return fmt.Sprint(vals)
}

func (a *Aggregate) Iterator(tid TransactionID) (DBFileIterator, error) {
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		childIter, err := a.child.Iterator(tid)
		if err != nil {
			return nil, err
		}
		if err := childIter.Open(); err != nil {
			return nil, err
		}

		groups := make(map[string]*aggGroup)
		var order []string
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
			keyVals := make([]DBValue, len(a.groupByExpr))
			for i, g := range a.groupByExpr {
				v, err := g.EvalExpr(t)
				if err != nil {
					return nil, err
				}
				keyVals[i] = v
			}
			key := a.groupKey(keyVals)
			grp, ok := groups[key]
			if !ok {
				states := make([]AggState, len(a.protos))
				for i, p := range a.protos {
					states[i] = p.Copy()
				}
				grp = &aggGroup{keyFields: keyVals, states: states}
				groups[key] = grp
				order = append(order, key)
			}
			for _, s := range grp.states {
				if err := s.AddTuple(t); err != nil {
					return nil, err
				}
			}
		}
		if err := childIter.Close(); err != nil {
			return nil, err
		}

		if len(order) == 0 && len(a.groupByExpr) == 0 {
			states := make([]AggState, len(a.protos))
			for i, p := range a.protos {
				states[i] = p.Copy()
			}
			groups[""] = &aggGroup{states: states}
			order = append(order, "")
		}

		idx := 0
		return func() (*Tuple, error) {
			if idx >= len(order) {
				return nil, nil
			}
			grp := groups[order[idx]]
			idx++
			fields := make([]DBValue, 0, len(grp.keyFields)+len(a.protos))
			fields = append(fields, grp.keyFields...)
			for _, s := range grp.states {
				final := s.Finalize()
				fields = append(fields, final.Fields...)
			}
			return &Tuple{Desc: *a.Descriptor(), Fields: fields}, nil
		}, nil
	}), nil
}
