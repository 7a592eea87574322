// Package curve - Precision-recall curves built from ranked match results.
package curve

import (
	"github.com/nvr-ai/go-ml-eval/matching"
	"gonum.org/v1/gonum/floats"
)

// Curve is the precision-recall sequence of one class. Index k holds the
// values after the first k+1 ranked detections.
type Curve struct {
	// Precision at each rank: TP_k / k.
	Precision []float64 `json:"precision"`
	// Recall at each rank: TP_k / Positives. Non-decreasing.
	Recall []float64 `json:"recall"`
	// TruePositives is the cumulative true positive count.
	TruePositives []float64 `json:"true_positives"`
	// FalsePositives is the cumulative false positive count.
	FalsePositives []float64 `json:"false_positives"`
	// Confidences of the ranked detections.
	Confidences []float64 `json:"confidences"`
	// Positives is the ground-truth count used as the recall denominator.
	Positives int `json:"positives"`
}

// Build accumulates results, which must already be in rank order, into a
// precision-recall curve. Ignored results are skipped.
//
// Arguments:
//   - results: Match results in descending confidence order.
//   - positives: Number of ground-truth boxes of the class.
//
// Returns:
//   - Curve: One point per non-ignored result. Recall is 0 everywhere when
//     positives is 0; such a curve is not Defined.
func Build(results []matching.Result, positives int) Curve {
	tp := make([]float64, 0, len(results))
	fp := make([]float64, 0, len(results))
	conf := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Ignored {
			continue
		}
		if r.TruePositive {
			tp = append(tp, 1)
			fp = append(fp, 0)
		} else {
			tp = append(tp, 0)
			fp = append(fp, 1)
		}
		conf = append(conf, r.Confidence)
	}

	n := len(tp)
	c := Curve{
		Precision:      make([]float64, n),
		Recall:         make([]float64, n),
		TruePositives:  make([]float64, n),
		FalsePositives: make([]float64, n),
		Confidences:    conf,
		Positives:      positives,
	}
	if n == 0 {
		return c
	}

	floats.CumSum(c.TruePositives, tp)
	floats.CumSum(c.FalsePositives, fp)

	for k := 0; k < n; k++ {
		c.Precision[k] = c.TruePositives[k] / float64(k+1)
		if positives > 0 {
			c.Recall[k] = c.TruePositives[k] / float64(positives)
		}
	}
	return c
}

// Defined reports whether there is ground truth to score against.
func (c Curve) Defined() bool {
	return c.Positives > 0
}

// Len is the number of ranked detections on the curve.
func (c Curve) Len() int {
	return len(c.Precision)
}

// TotalTP is the true positive count over the whole curve.
func (c Curve) TotalTP() int {
	if len(c.TruePositives) == 0 {
		return 0
	}
	return int(c.TruePositives[len(c.TruePositives)-1])
}

// TotalFP is the false positive count over the whole curve.
func (c Curve) TotalFP() int {
	if len(c.FalsePositives) == 0 {
		return 0
	}
	return int(c.FalsePositives[len(c.FalsePositives)-1])
}

// MaxRecall is the recall reached after the last detection, 0 if none.
func (c Curve) MaxRecall() float64 {
	if len(c.Recall) == 0 {
		return 0
	}
	return c.Recall[len(c.Recall)-1]
}
