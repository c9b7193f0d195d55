package stats

import (
	"fmt"

	"github.com/csc560/coredb/internal/godb"
)

// IntHistogram is a fixed-width equi-width histogram over an integer field,
// used to estimate a predicate's selectivity without scanning the table.
type IntHistogram struct {
	buckets  []int64
	min, max int64
	width    float64
	count    int64
}

// NewIntHistogram builds an empty histogram with nBins buckets spanning
// [vMin, vMax] inclusive.
func NewIntHistogram(nBins int64, vMin, vMax int64) (*IntHistogram, error) {
	if nBins <= 0 {
		return nil, fmt.Errorf("histogram needs at least one bin, got %d", nBins)
	}
	if vMax < vMin {
		return nil, fmt.Errorf("histogram max %d is below min %d", vMax, vMin)
	}
	width := float64(vMax-vMin+1) / float64(nBins)
	if width < 1 {
		width = 1
	}
	return &IntHistogram{
		buckets: make([]int64, nBins),
		min:     vMin,
		max:     vMax,
		width:   width,
	}, nil
}

func (h *IntHistogram) bucketFor(v int64) int {
	idx := int(float64(v-h.min) / h.width)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(h.buckets) {
		idx = len(h.buckets) - 1
	}
	return idx
}

// AddValue folds v into the bucket it falls in.
func (h *IntHistogram) AddValue(v int64) {
	h.buckets[h.bucketFor(v)]++
	h.count++
}

// EstimateSelectivity returns the fraction of values satisfying v op x, where
// x ranges over every value ever added. Out-of-range values are treated as
// falling just past the nearest edge bucket.
func (h *IntHistogram) EstimateSelectivity(op godb.BoolOp, v int64) float64 {
	if h.count == 0 {
		return 1.0
	}
	switch op {
	case godb.OpEq:
		return h.bucketFraction(v)
	case godb.OpNeq:
		return 1.0 - h.bucketFraction(v)
	case godb.OpGt:
		return h.rangeFraction(v+1, h.max)
	case godb.OpGe:
		return h.rangeFraction(v, h.max)
	case godb.OpLt:
		return h.rangeFraction(h.min, v-1)
	case godb.OpLe:
		return h.rangeFraction(h.min, v)
	default:
		return 1.0
	}
}

func (h *IntHistogram) bucketFraction(v int64) float64 {
	if v < h.min || v > h.max {
		return 0.0
	}
	b := h.buckets[h.bucketFor(v)]
	return (float64(b) / h.width) / float64(h.count)
}

func (h *IntHistogram) rangeFraction(lo, hi int64) float64 {
	if hi < lo {
		return 0.0
	}
	if lo < h.min {
		lo = h.min
	}
	if hi > h.max {
		hi = h.max
	}
	if lo > hi {
		return 0.0
	}
	loBucket := h.bucketFor(lo)
	hiBucket := h.bucketFor(hi)
	var total int64
	for b := loBucket; b <= hiBucket; b++ {
		total += h.buckets[b]
	}
	frac := float64(total) / float64(h.count)
	if frac > 1.0 {
		frac = 1.0
	}
	return frac
}
