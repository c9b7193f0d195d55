// Package stats provides cost and cardinality estimates for the query
// planner: per-table page/tuple counts and per-field histograms built by a
// single full scan.
package stats

import (
	"fmt"

	"github.com/csc560/coredb/internal/godb"
)

// CostPerPage is the assumed I/O cost of reading a single page, in
// arbitrary cost units; EstimateScanCost scales linearly off of it.
const CostPerPage = 1000.0

// NumHistBins is the bucket count used for every IntHistogram built by
// ComputeTableStats.
const NumHistBins = 100

// Stats answers the cost and cardinality questions the planner needs about
// a table, without it having to know how those answers were computed.
type Stats interface {
	EstimateScanCost() float64
	EstimateCardinality(selectivity float64) int
	EstimateSelectivity(field string, op godb.BoolOp, value godb.DBValue) (float64, error)
}

// TableStats holds the page/tuple counts and per-field histograms gathered
// from one full scan of a table.
type TableStats struct {
	basePages   int
	baseTups    int
	tupleDesc   godb.TupleDesc
	intHists    map[string]*IntHistogram
	stringHists map[string]*StringHistogram
}

var _ Stats = (*TableStats)(nil)

// tableMinMax scans file once to find each integer field's [min, max]
// range, which IntHistogram needs before a single value can be added.
func tableMinMax(bp *godb.BufferPool, file godb.DBFile) (mins, maxs map[string]int32, err error) {
	td := file.Descriptor()
	mins = make(map[string]int32)
	maxs = make(map[string]int32)

	tid := godb.NewTID()
	if err := bp.BeginTransaction(tid); err != nil {
		return nil, nil, err
	}
	defer bp.TransactionComplete(tid, true)

	it, err := file.Iterator(tid)
	if err != nil {
		return nil, nil, err
	}
	if err := it.Open(); err != nil {
		return nil, nil, err
	}
	defer it.Close()

	first := make(map[string]bool)
	for _, f := range td.Fields {
		if f.Ftype == godb.IntType {
			first[f.Fname] = true
		}
	}

	for {
		hasNext, err := it.HasNext()
		if err != nil {
			return nil, nil, err
		}
		if !hasNext {
			break
		}
		t, err := it.Next()
		if err != nil {
			return nil, nil, err
		}
		for i, f := range td.Fields {
			if f.Ftype != godb.IntType {
				continue
			}
			v := int32(t.Fields[i].(godb.IntField).Value)
			if first[f.Fname] {
				mins[f.Fname] = v
				maxs[f.Fname] = v
				first[f.Fname] = false
				continue
			}
			if v < mins[f.Fname] {
				mins[f.Fname] = v
			}
			if v > maxs[f.Fname] {
				maxs[f.Fname] = v
			}
		}
	}
	return mins, maxs, nil
}

// ComputeTableStats scans file twice: once to learn each integer field's
// range, once to populate the histograms over that range. numPages is
// passed in explicitly since DBFile does not expose it — only the
// type-specific file implementations (HeapFile, BTreeFile) do.
func ComputeTableStats(bp *godb.BufferPool, file godb.DBFile, numPages int) (*TableStats, error) {
	td := *file.Descriptor()

	mins, maxs, err := tableMinMax(bp, file)
	if err != nil {
		return nil, err
	}

	intHists := make(map[string]*IntHistogram)
	stringHists := make(map[string]*StringHistogram)
	for _, f := range td.Fields {
		switch f.Ftype {
		case godb.IntType:
			h, err := NewIntHistogram(NumHistBins, int64(mins[f.Fname]), int64(maxs[f.Fname]))
			if err != nil {
				return nil, err
			}
			intHists[f.Fname] = h
		case godb.StringType:
			h, err := NewStringHistogram()
			if err != nil {
				return nil, err
			}
			stringHists[f.Fname] = h
		}
	}

	tid := godb.NewTID()
	if err := bp.BeginTransaction(tid); err != nil {
		return nil, err
	}
	defer bp.TransactionComplete(tid, true)

	it, err := file.Iterator(tid)
	if err != nil {
		return nil, err
	}
	if err := it.Open(); err != nil {
		return nil, err
	}
	defer it.Close()

	baseTups := 0
	for {
		hasNext, err := it.HasNext()
		if err != nil {
			return nil, err
		}
		if !hasNext {
			break
		}
		t, err := it.Next()
		if err != nil {
			return nil, err
		}
		baseTups++
		for i, f := range td.Fields {
			switch f.Ftype {
			case godb.IntType:
				intHists[f.Fname].AddValue(int64(t.Fields[i].(godb.IntField).Value))
			case godb.StringType:
				stringHists[f.Fname].AddValue(t.Fields[i].(godb.StringField).Value)
			}
		}
	}

	return &TableStats{
		basePages:   numPages,
		baseTups:    baseTups,
		tupleDesc:   td,
		intHists:    intHists,
		stringHists: stringHists,
	}, nil
}

// EstimateScanCost is the I/O cost of a full sequential scan: one page read
// per page on disk.
func (s *TableStats) EstimateScanCost() float64 {
	return float64(s.basePages) * CostPerPage
}

// EstimateCardinality scales the table's tuple count by a selectivity
// fraction computed elsewhere (typically from EstimateSelectivity).
func (s *TableStats) EstimateCardinality(selectivity float64) int {
	return int(float64(s.baseTups) * selectivity)
}

// EstimateSelectivity estimates the fraction of rows satisfying `field op
// value`, using whichever histogram was built for that field.
func (s *TableStats) EstimateSelectivity(field string, op godb.BoolOp, value godb.DBValue) (float64, error) {
	if h, ok := s.intHists[field]; ok {
		iv, ok := value.(godb.IntField)
		if !ok {
			return 0, fmt.Errorf("field %q is an int field, got %T", field, value)
		}
		return h.EstimateSelectivity(op, int64(iv.Value)), nil
	}
	if h, ok := s.stringHists[field]; ok {
		sv, ok := value.(godb.StringField)
		if !ok {
			return 0, fmt.Errorf("field %q is a string field, got %T", field, value)
		}
		return h.EstimateSelectivity(op, sv.Value), nil
	}
	return 0, fmt.Errorf("no histogram for field %q", field)
}
