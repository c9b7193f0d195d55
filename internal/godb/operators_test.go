package godb

import (
	"os"
	"testing"
)

func makeOperatorTestTable(t *testing.T, name string, rows [][2]any) (*HeapFile, *BufferPool, TransactionID) {
	t.Helper()
	path := name + ".dat"
	os.Remove(path)
	t.Cleanup(func() { os.Remove(path) })

	td := &TupleDesc{Fields: []FieldType{
		{Fname: "name", Ftype: StringType},
		{Fname: "age", Ftype: IntType},
	}}
	bp, err := NewBufferPool(25)
	if err != nil {
		t.Fatalf("NewBufferPool: %v", err)
	}
	hf, err := NewHeapFile(path, td, bp)
	if err != nil {
		t.Fatalf("NewHeapFile: %v", err)
	}
	bp.catalog.AddTable(hf, name, "")

	tid := NewTID()
	if err := bp.BeginTransaction(tid); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	for _, row := range rows {
		tup := &Tuple{Desc: *td, Fields: []DBValue{
			StringField{Value: row[0].(string)},
			IntField{Value: int32(row[1].(int))},
		}}
		if _, err := hf.insertTuple(tid, tup); err != nil {
			t.Fatalf("insertTuple: %v", err)
		}
	}
	return hf, bp, tid
}

func drainOperator(t *testing.T, op Operator, tid TransactionID) []*Tuple {
	t.Helper()
	it, err := op.Iterator(tid)
	if err != nil {
		t.Fatalf("Iterator: %v", err)
	}
	if err := it.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	out, err := drainAll(it)
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	return out
}

func TestSeqScanTagsQualifier(t *testing.T) {
	hf, _, tid := makeOperatorTestTable(t, "seqscan", [][2]any{{"annie", 17}, {"josie", 20}})
	scan := NewSeqScan(hf, "people")
	if scan.Descriptor().Fields[0].TableQualifier != "people" {
		t.Fatalf("expected qualifier 'people', got %q", scan.Descriptor().Fields[0].TableQualifier)
	}
	out := drainOperator(t, scan, tid)
	if len(out) != 2 {
		t.Fatalf("expected 2 tuples, got %d", len(out))
	}
}

func TestFilterKeepsMatchingTuples(t *testing.T) {
	hf, _, tid := makeOperatorTestTable(t, "filter", [][2]any{{"annie", 17}, {"josie", 20}, {"sean", 30}})
	scan := NewSeqScan(hf, "people")
	ageField := NewFieldExpr(FieldType{Fname: "age", TableQualifier: "people", Ftype: IntType})
	threshold := NewConstExpr(IntField{Value: 18}, IntType)
	f, err := NewFilter(ageField, OpGe, threshold, scan)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	out := drainOperator(t, f, tid)
	if len(out) != 2 {
		t.Fatalf("expected 2 tuples over 18, got %d", len(out))
	}
}

func TestProjectDistinct(t *testing.T) {
	hf, _, tid := makeOperatorTestTable(t, "project", [][2]any{{"annie", 17}, {"annie", 17}, {"josie", 20}})
	scan := NewSeqScan(hf, "people")
	nameField := scan.Descriptor().Fields[0]
	p, err := NewProjectOp([]FieldType{nameField}, []string{"name"}, true, scan)
	if err != nil {
		t.Fatalf("NewProjectOp: %v", err)
	}
	out := drainOperator(t, p, tid)
	if len(out) != 2 {
		t.Fatalf("expected 2 distinct names, got %d", len(out))
	}
}

func TestOrderByAscending(t *testing.T) {
	hf, _, tid := makeOperatorTestTable(t, "orderby", [][2]any{{"josie", 20}, {"annie", 17}, {"sean", 30}})
	scan := NewSeqScan(hf, "people")
	ageField := NewFieldExpr(scan.Descriptor().Fields[1])
	ob, err := NewOrderBy([]Expr{ageField}, []bool{true}, scan)
	if err != nil {
		t.Fatalf("NewOrderBy: %v", err)
	}
	out := drainOperator(t, ob, tid)
	if len(out) != 3 {
		t.Fatalf("expected 3 tuples, got %d", len(out))
	}
	want := []int32{17, 20, 30}
	for i, w := range want {
		got := out[i].Fields[1].(IntField).Value
		if got != w {
			t.Errorf("position %d: want age %d, got %d", i, w, got)
		}
	}
}

func TestLimitStopsEarly(t *testing.T) {
	hf, _, tid := makeOperatorTestTable(t, "limit", [][2]any{{"a", 1}, {"b", 2}, {"c", 3}})
	scan := NewSeqScan(hf, "people")
	lim, err := NewLimitOp(NewConstExpr(IntField{Value: 2}, IntType), scan)
	if err != nil {
		t.Fatalf("NewLimitOp: %v", err)
	}
	out := drainOperator(t, lim, tid)
	if len(out) != 2 {
		t.Fatalf("expected 2 tuples, got %d", len(out))
	}
}

func TestEqualityJoinMatchesOnField(t *testing.T) {
	left, _, tid := makeOperatorTestTable(t, "joinleft", [][2]any{{"annie", 17}, {"josie", 20}})
	right, rightBp, rightTid := makeOperatorTestTable(t, "joinright", [][2]any{{"dorm-a", 17}, {"dorm-b", 20}, {"dorm-c", 99}})
	rightBp.TransactionComplete(rightTid, true)

	leftScan := NewSeqScan(left, "students")
	rightScan := NewSeqScan(right, "dorms")
	leftAge := NewFieldExpr(leftScan.Descriptor().Fields[1])
	rightAge := NewFieldExpr(rightScan.Descriptor().Fields[1])

	j, err := NewJoin(leftScan, leftAge, rightScan, rightAge)
	if err != nil {
		t.Fatalf("NewJoin: %v", err)
	}
	out := drainOperator(t, j, tid)
	if len(out) != 2 {
		t.Fatalf("expected 2 joined rows, got %d", len(out))
	}
}

func TestAggregateCountAndSumPerGroup(t *testing.T) {
	hf, _, tid := makeOperatorTestTable(t, "agg", [][2]any{
		{"annie", 17}, {"annie", 3}, {"josie", 20},
	})
	scan := NewSeqScan(hf, "people")
	nameField := NewFieldExpr(scan.Descriptor().Fields[0])
	ageField := NewFieldExpr(scan.Descriptor().Fields[1])

	countState, err := NewAggState(CountAggregator, "n", ageField)
	if err != nil {
		t.Fatalf("NewAggState count: %v", err)
	}
	sumState, err := NewAggState(SumAggregator, "total", ageField)
	if err != nil {
		t.Fatalf("NewAggState sum: %v", err)
	}

	agg, err := NewGroupByAggregator([]AggState{countState, sumState}, []Expr{nameField}, scan)
	if err != nil {
		t.Fatalf("NewGroupByAggregator: %v", err)
	}
	out := drainOperator(t, agg, tid)
	if len(out) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(out))
	}
	totals := make(map[string]int32)
	counts := make(map[string]int32)
	for _, tup := range out {
		name := tup.Fields[0].(StringField).Value
		counts[name] = tup.Fields[1].(IntField).Value
		totals[name] = tup.Fields[2].(IntField).Value
	}
	if counts["annie"] != 2 || totals["annie"] != 20 {
		t.Errorf("annie: want count 2 sum 20, got count %d sum %d", counts["annie"], totals["annie"])
	}
	if counts["josie"] != 1 || totals["josie"] != 20 {
		t.Errorf("josie: want count 1 sum 20, got count %d sum %d", counts["josie"], totals["josie"])
	}
}

func TestInsertOpReportsCount(t *testing.T) {
	path := "insertop.dat"
	os.Remove(path)
	t.Cleanup(func() { os.Remove(path) })
	td := &TupleDesc{Fields: []FieldType{{Fname: "name", Ftype: StringType}, {Fname: "age", Ftype: IntType}}}
	bp, _ := NewBufferPool(25)
	hf, err := NewHeapFile(path, td, bp)
	if err != nil {
		t.Fatalf("NewHeapFile: %v", err)
	}
	catalog := NewCatalog()
	catalog.AddTable(hf, "people", "")
	bp.catalog = catalog

	tid := NewTID()
	bp.BeginTransaction(tid)

	rows := &tupleSliceForTest{tuples: []*Tuple{
		{Desc: *td, Fields: []DBValue{StringField{Value: "a"}, IntField{Value: 1}}},
		{Desc: *td, Fields: []DBValue{StringField{Value: "b"}, IntField{Value: 2}}},
	}, desc: td}

	insertOp, err := NewInsertOp(bp, hf.ID(), rows)
	if err != nil {
		t.Fatalf("NewInsertOp: %v", err)
	}
	out := drainOperator(t, insertOp, tid)
	if len(out) != 1 {
		t.Fatalf("expected a single count tuple, got %d", len(out))
	}
	if out[0].Fields[0].(IntField).Value != 2 {
		t.Errorf("expected count 2, got %d", out[0].Fields[0].(IntField).Value)
	}
}

func TestDeleteOpRemovesTuples(t *testing.T) {
	hf, bp, tid := makeOperatorTestTable(t, "deleteop", [][2]any{{"a", 1}, {"b", 2}})
	catalog := NewCatalog()
	catalog.AddTable(hf, "people", "")
	bp.catalog = catalog

	scan := NewSeqScan(hf, "people")
	deleteOp, err := NewDeleteOp(bp, hf.ID(), scan)
	if err != nil {
		t.Fatalf("NewDeleteOp: %v", err)
	}
	out := drainOperator(t, deleteOp, tid)
	if len(out) != 1 || out[0].Fields[0].(IntField).Value != 2 {
		t.Fatalf("expected count tuple of 2, got %+v", out)
	}

	remaining := drainOperator(t, NewSeqScan(hf, "people"), tid)
	if len(remaining) != 0 {
		t.Fatalf("expected table empty after delete, got %d rows", len(remaining))
	}
}

// tupleSliceForTest is a minimal in-memory Operator, mirroring the one the
// SQL shell uses to feed literal rows into InsertOp.
type tupleSliceForTest struct {
	tuples []*Tuple
	desc   *TupleDesc
}

func (o *tupleSliceForTest) Descriptor() *TupleDesc { return o.desc }

func (o *tupleSliceForTest) Iterator(tid TransactionID) (DBFileIterator, error) {
	idx := 0
	return newFuncIterator(func() (func() (*Tuple, error), error) {
		idx = 0
		return func() (*Tuple, error) {
			if idx >= len(o.tuples) {
				return nil, nil
			}
			t := o.tuples[idx]
			idx++
			return t, nil
		}, nil
	}), nil
}
