package godb

// Expr is anything that can be evaluated against a tuple to produce a field
// value: a bare column reference, a constant, or (in a fuller system) an
// arithmetic expression. Operators are written against Expr rather than bare
// field names so that, e.g., ORDER BY can sort on an arbitrary projection.
type Expr interface {
	// EvalExpr evaluates the expression against t, which may be nil for
	// expressions that do not reference a tuple (e.g. a constant LIMIT).
	EvalExpr(t *Tuple) (DBValue, error)
	// GetExprType reports the FieldType this expression would produce,
	// which callers use to build descriptors without evaluating a tuple.
	GetExprType() FieldType
}

// FieldExpr extracts one named field from whatever tuple it is evaluated
// against.
type FieldExpr struct {
	selector FieldType
}

// NewFieldExpr builds an expression that reads the field named by selector
// out of a tuple.
func NewFieldExpr(selector FieldType) *FieldExpr {
	return &FieldExpr{selector: selector}
}

func (e *FieldExpr) EvalExpr(t *Tuple) (DBValue, error) {
	idx, err := findFieldInTd(e.selector, &t.Desc)
	if err != nil {
		return nil, err
	}
	return t.Fields[idx], nil
}

func (e *FieldExpr) GetExprType() FieldType {
	return e.selector
}

// ConstExpr evaluates to the same value regardless of the tuple supplied.
type ConstExpr struct {
	val   DBValue
	ftype DBType
}

// NewConstExpr builds an expression that always evaluates to val.
func NewConstExpr(val DBValue, ftype DBType) *ConstExpr {
	return &ConstExpr{val: val, ftype: ftype}
}

func (e *ConstExpr) EvalExpr(t *Tuple) (DBValue, error) {
	return e.val, nil
}

func (e *ConstExpr) GetExprType() FieldType {
	return FieldType{Fname: "", Ftype: e.ftype}
}
