package stats

import (
	boom "github.com/tylertreat/BoomFilters"

	"github.com/csc560/coredb/internal/godb"
)

// StringHistogram estimates string-field selectivity with a count-min
// sketch rather than a bucketed histogram, since string domains don't have
// a natural fixed-width range the way integers do.
type StringHistogram struct {
	cms *boom.CountMinSketch
}

// NewStringHistogram builds an empty sketch tuned for 0.1% error at 99.9%
// confidence, which is plenty for query-planning estimates.
func NewStringHistogram() (*StringHistogram, error) {
	return &StringHistogram{cms: boom.NewCountMinSketch(0.001, 0.999)}, nil
}

// AddValue folds s into the sketch.
func (h *StringHistogram) AddValue(s string) {
	h.cms.Add([]byte(s))
}

// EstimateSelectivity returns the fraction of added values equal to s. Only
// equality is meaningful for a count-min sketch; any other operator falls
// back to a conservative "matches everything" estimate.
func (h *StringHistogram) EstimateSelectivity(op godb.BoolOp, s string) float64 {
	if h.cms.TotalCount() == 0 {
		return 1.0
	}
	switch op {
	case godb.OpEq:
		return float64(h.cms.Count([]byte(s))) / float64(h.cms.TotalCount())
	case godb.OpNeq:
		return 1.0 - float64(h.cms.Count([]byte(s)))/float64(h.cms.TotalCount())
	default:
		return 1.0
	}
}
