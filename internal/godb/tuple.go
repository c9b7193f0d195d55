package godb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// FieldType names one column of a TupleDesc: its name, the table it came
// from (stamped by SeqScan/IndexScan and preferred by findFieldInTd to
// disambiguate same-named fields, e.g. across a join),
// and its scalar type.
type FieldType struct {
	Fname          string
	TableQualifier string
	Ftype          DBType
}

// byteWidth returns the fixed on-disk width of a field of this type, per the
// wire format in SPEC_FULL.md §6: 4 bytes for an int, a 4-byte length prefix
// plus StringLength padded bytes for a string.
func (f FieldType) byteWidth() int {
	switch f.Ftype {
	case StringType:
		return 4 + StringLength
	default:
		return 4
	}
}

// TupleDesc is the schema of a table: an ordered list of fields. Two
// TupleDescs are equal iff their type sequences match; field names are not
// considered.
type TupleDesc struct {
	Fields []FieldType
}

// equals reports whether d1 and d2 describe the same sequence of types.
func (d1 *TupleDesc) equals(d2 *TupleDesc) bool {
	if len(d1.Fields) != len(d2.Fields) {
		return false
	}
	for i := range d1.Fields {
		if d1.Fields[i].Ftype != d2.Fields[i].Ftype {
			return false
		}
	}
	return true
}

// bytesPerTuple is the total fixed width, in bytes, of a tuple with this
// descriptor.
func (d *TupleDesc) bytesPerTuple() int {
	n := 0
	for _, f := range d.Fields {
		n += f.byteWidth()
	}
	return n
}

// copy returns a deep copy of the descriptor; the underlying Fields slice is
// never shared with the original.
func (d *TupleDesc) copy() *TupleDesc {
	fields := make([]FieldType, len(d.Fields))
	copy(fields, d.Fields)
	return &TupleDesc{Fields: fields}
}

// merge returns a new TupleDesc whose fields are d's fields followed by
// other's fields. Used to build the output schema of a join.
func (d *TupleDesc) merge(other *TupleDesc) *TupleDesc {
	fields := make([]FieldType, 0, len(d.Fields)+len(other.Fields))
	fields = append(fields, d.Fields...)
	fields = append(fields, other.Fields...)
	return &TupleDesc{Fields: fields}
}

// findFieldInTd locates the best match for field within desc, preferring a
// TableQualifier match when field specifies one.
func findFieldInTd(field FieldType, desc *TupleDesc) (int, error) {
	best := -1
	for i, f := range desc.Fields {
		if f.Fname != field.Fname {
			continue
		}
		if field.TableQualifier == "" {
			if best != -1 {
				return -1, newGoDBError(AmbiguousNameError, "field name %s is ambiguous", f.Fname)
			}
			best = i
			continue
		}
		if f.TableQualifier == field.TableQualifier {
			return i, nil
		}
		if best == -1 {
			best = i
		}
	}
	if best == -1 {
		return -1, newGoDBError(TupleNotFoundError, "field %s.%s not found", field.TableQualifier, field.Fname)
	}
	return best, nil
}

// DBValue is the interface every field value (IntField, StringField)
// implements: comparability via the boolean operators a Filter predicate or
// join condition might apply.
type DBValue interface {
	EvalPred(v DBValue, op BoolOp) bool
}

// IntField holds a signed 32-bit integer value.
type IntField struct {
	Value int32
}

// EvalPred compares f against v using op. A type mismatch is treated as
// "never satisfied" rather than a panic, since predicates are evaluated deep
// inside hot iteration loops.
func (f IntField) EvalPred(v DBValue, op BoolOp) bool {
	other, ok := v.(IntField)
	if !ok {
		return false
	}
	return evalIntPred(f.Value, other.Value, op)
}

func evalIntPred(a, b int32, op BoolOp) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNeq:
		return a != b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	default:
		return false
	}
}

// StringField holds a string value truncated/zero-padded to StringLength
// bytes on disk, but held at full (pre-truncation) precision in memory.
type StringField struct {
	Value string
}

// EvalPred compares f against v using op. OpLike does a substring match,
// mirroring SQL's simplified LIKE without wildcard expansion.
func (f StringField) EvalPred(v DBValue, op BoolOp) bool {
	other, ok := v.(StringField)
	if !ok {
		return false
	}
	switch op {
	case OpEq:
		return f.Value == other.Value
	case OpNeq:
		return f.Value != other.Value
	case OpGt:
		return f.Value > other.Value
	case OpGe:
		return f.Value >= other.Value
	case OpLt:
		return f.Value < other.Value
	case OpLe:
		return f.Value <= other.Value
	case OpLike:
		return strings.Contains(f.Value, other.Value)
	default:
		return false
	}
}

// Tuple is a fixed-width row: a schema, a field vector of that arity, and a
// weak back-reference to where it was read from on disk (nil until the
// tuple has been placed in a page).
type Tuple struct {
	Desc   TupleDesc
	Fields []DBValue
	Rid    *RecordID
}

func writeIntField(b *bytes.Buffer, f IntField) error {
	return binary.Write(b, binary.BigEndian, f.Value)
}

func writeStringField(b *bytes.Buffer, f StringField) error {
	padded := make([]byte, StringLength)
	copy(padded, []byte(f.Value))
	if err := binary.Write(b, binary.BigEndian, int32(len(padded))); err != nil {
		return err
	}
	_, err := b.Write(padded)
	return err
}

// writeTo serializes t's fields, in order, into b using the big-endian wire
// format described in SPEC_FULL.md §6. It does not write a header or RecordID
// — callers that need a full page write those separately.
func (t *Tuple) writeTo(b *bytes.Buffer) error {
	for _, field := range t.Fields {
		switch v := field.(type) {
		case IntField:
			if err := writeIntField(b, v); err != nil {
				return err
			}
		case StringField:
			if err := writeStringField(b, v); err != nil {
				return err
			}
		default:
			return newGoDBError(TypeMismatchError, "unsupported field type %T", field)
		}
	}
	return nil
}

func readIntField(b *bytes.Buffer) (IntField, error) {
	var v int32
	if err := binary.Read(b, binary.BigEndian, &v); err != nil {
		return IntField{}, err
	}
	return IntField{Value: v}, nil
}

func readStringField(b *bytes.Buffer) (StringField, error) {
	var length int32
	if err := binary.Read(b, binary.BigEndian, &length); err != nil {
		return StringField{}, err
	}
	raw := make([]byte, StringLength)
	if _, err := b.Read(raw); err != nil {
		return StringField{}, err
	}
	if int(length) > StringLength {
		length = StringLength
	}
	return StringField{Value: strings.TrimRight(string(raw[:length]), "\x00")}, nil
}

// readTupleFrom deserializes one tuple of the given descriptor from b.
func readTupleFrom(b *bytes.Buffer, desc *TupleDesc) (*Tuple, error) {
	t := &Tuple{Desc: *desc.copy()}
	for _, ft := range desc.Fields {
		switch ft.Ftype {
		case StringType:
			f, err := readStringField(b)
			if err != nil {
				return nil, err
			}
			t.Fields = append(t.Fields, f)
		default:
			f, err := readIntField(b)
			if err != nil {
				return nil, err
			}
			t.Fields = append(t.Fields, f)
		}
	}
	return t, nil
}

// equals reports whether two tuples have equal descriptors and equal field
// values, ignoring RecordID.
func (t1 *Tuple) equals(t2 *Tuple) bool {
	if t1 == nil || t2 == nil {
		return t1 == t2
	}
	if !t1.Desc.equals(&t2.Desc) || len(t1.Fields) != len(t2.Fields) {
		return false
	}
	for i := range t1.Fields {
		if t1.Fields[i] != t2.Fields[i] {
			return false
		}
	}
	return true
}

// joinTuples returns a new tuple whose fields are t1's fields followed by
// t2's fields, with a matching merged descriptor. Either side may be nil.
func joinTuples(t1, t2 *Tuple) *Tuple {
	if t1 == nil {
		return t2
	}
	if t2 == nil {
		return t1
	}
	return &Tuple{
		Desc:   *t1.Desc.merge(&t2.Desc),
		Fields: append(append([]DBValue{}, t1.Fields...), t2.Fields...),
	}
}

// project returns a new tuple containing only the named fields, in the order
// requested. A qualified match (matching TableQualifier) is preferred over an
// unqualified one.
func (t *Tuple) project(fields []FieldType) (*Tuple, error) {
	out := &Tuple{Desc: TupleDesc{}, Fields: make([]DBValue, 0, len(fields))}
	for _, want := range fields {
		idx, err := findFieldInTd(want, &t.Desc)
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, t.Fields[idx])
		out.Desc.Fields = append(out.Desc.Fields, t.Desc.Fields[idx])
	}
	return out, nil
}

// compareField evaluates expr against t and t2 and returns their relative
// order.
func (t *Tuple) compareField(t2 *Tuple, expr Expr) (orderByState, error) {
	v1, err := expr.EvalExpr(t)
	if err != nil {
		return OrderedEqual, err
	}
	v2, err := expr.EvalExpr(t2)
	if err != nil {
		return OrderedEqual, err
	}
	return compareValues(v1, v2)
}

func compareValues(v1, v2 DBValue) (orderByState, error) {
	switch a := v1.(type) {
	case IntField:
		b, ok := v2.(IntField)
		if !ok {
			return OrderedEqual, newGoDBError(TypeMismatchError, "cannot compare %T to %T", v1, v2)
		}
		switch {
		case a.Value < b.Value:
			return OrderedLessThan, nil
		case a.Value > b.Value:
			return OrderedGreaterThan, nil
		default:
			return OrderedEqual, nil
		}
	case StringField:
		b, ok := v2.(StringField)
		if !ok {
			return OrderedEqual, newGoDBError(TypeMismatchError, "cannot compare %T to %T", v1, v2)
		}
		switch {
		case a.Value < b.Value:
			return OrderedLessThan, nil
		case a.Value > b.Value:
			return OrderedGreaterThan, nil
		default:
			return OrderedEqual, nil
		}
	default:
		return OrderedEqual, newGoDBError(TypeMismatchError, "unsupported comparison type %T", v1)
	}
}

// tupleKey computes a value usable as a map key for deduplicating tuples
// (e.g. SELECT DISTINCT), by serializing the tuple's field values.
func (t *Tuple) tupleKey() any {
	var buf bytes.Buffer
	t.writeTo(&buf)
	return buf.String()
}

// PrettyPrintString renders t as a single row of text, for the SQL shell.
func (t *Tuple) PrettyPrintString() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		switch v := f.(type) {
		case IntField:
			parts[i] = strconv.FormatInt(int64(v.Value), 10)
		case StringField:
			parts[i] = v.Value
		default:
			parts[i] = fmt.Sprintf("%v", f)
		}
	}
	return strings.Join(parts, "\t")
}

// HeaderString renders the field names of d as a single header row.
func (d *TupleDesc) HeaderString() string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		if f.TableQualifier != "" {
			names[i] = f.TableQualifier + "." + f.Fname
		} else {
			names[i] = f.Fname
		}
	}
	return strings.Join(names, "\t")
}
