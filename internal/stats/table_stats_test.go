package stats

import (
	"os"
	"testing"

	"github.com/csc560/coredb/internal/godb"
)

func makeStatsTestTable(t *testing.T) (*godb.TupleDesc, *godb.HeapFile, *godb.Database) {
	t.Helper()
	path := "stats_test.dat"
	os.Remove(path)
	t.Cleanup(func() { os.Remove(path) })

	td := &godb.TupleDesc{Fields: []godb.FieldType{
		{Fname: "name", Ftype: godb.StringType},
		{Fname: "age", Ftype: godb.IntType},
	}}
	db := godb.NewDatabase(10)
	hf, err := godb.NewHeapFile(path, td, db.BufferPool())
	if err != nil {
		t.Fatalf("NewHeapFile: %v", err)
	}
	db.Catalog().AddTable(hf, "people", "")
	return td, hf, db
}

func TestIntHistogramEqualityAndRange(t *testing.T) {
	h, err := NewIntHistogram(10, 0, 99)
	if err != nil {
		t.Fatalf("NewIntHistogram: %v", err)
	}
	for v := int64(0); v < 100; v++ {
		h.AddValue(v)
	}
	if got := h.EstimateSelectivity(godb.OpLe, 49); got < 0.45 || got > 0.55 {
		t.Fatalf("expected selectivity near 0.5 for <= 49, got %f", got)
	}
	if got := h.EstimateSelectivity(godb.OpGt, 89); got < 0.05 || got > 0.15 {
		t.Fatalf("expected selectivity near 0.1 for > 89, got %f", got)
	}
}

func TestStringHistogramEquality(t *testing.T) {
	h, err := NewStringHistogram()
	if err != nil {
		t.Fatalf("NewStringHistogram: %v", err)
	}
	for i := 0; i < 10; i++ {
		h.AddValue("annie")
	}
	for i := 0; i < 90; i++ {
		h.AddValue("josie")
	}
	if got := h.EstimateSelectivity(godb.OpEq, "annie"); got < 0.05 || got > 0.15 {
		t.Fatalf("expected selectivity near 0.1 for annie, got %f", got)
	}
}

func TestComputeTableStatsEstimates(t *testing.T) {
	td, hf, db := makeStatsTestTable(t)
	bp := db.BufferPool()
	tid := godb.NewTID()
	bp.BeginTransaction(tid)

	names := []string{"annie", "annie", "josie", "josie", "josie"}
	for i, n := range names {
		tup := &godb.Tuple{Desc: *td, Fields: []godb.DBValue{
			godb.StringField{Value: n},
			godb.IntField{Value: int32(i * 10)},
		}}
		if err := bp.InsertTuple(tid, hf.ID(), tup); err != nil {
			t.Fatalf("InsertTuple: %v", err)
		}
	}
	bp.TransactionComplete(tid, true)

	ts, err := ComputeTableStats(bp, hf, hf.NumPages())
	if err != nil {
		t.Fatalf("ComputeTableStats: %v", err)
	}
	if ts.EstimateCardinality(1.0) != len(names) {
		t.Fatalf("expected cardinality %d at selectivity 1.0, got %d", len(names), ts.EstimateCardinality(1.0))
	}
	sel, err := ts.EstimateSelectivity("name", godb.OpEq, godb.StringField{Value: "josie"})
	if err != nil {
		t.Fatalf("EstimateSelectivity: %v", err)
	}
	if sel < 0.5 || sel > 0.7 {
		t.Fatalf("expected selectivity near 0.6 for josie, got %f", sel)
	}
	if ts.EstimateScanCost() <= 0 {
		t.Fatalf("expected positive scan cost, got %f", ts.EstimateScanCost())
	}
}
