// Package interpolation - Reduction of precision-recall curves to Average Precision.
package interpolation

import (
	"sort"
	"strings"

	"github.com/nvr-ai/go-ml-eval/curve"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// ErrUnknownMethod is returned for an interpolation method that does not exist.
var ErrUnknownMethod = errors.New("unknown interpolation method")

// Method selects how a precision-recall curve becomes a scalar AP.
type Method int

const (
	// AllPoint is the VOC2012 area under the precision envelope.
	AllPoint Method = iota
	// ElevenPoint is the VOC2007 mean over recall levels 0, 0.1, ..., 1.
	ElevenPoint
	// COCO101 is the COCO mean over recall levels 0, 0.01, ..., 1.
	COCO101
)

// ParseMethod resolves a method from the names used on the command line.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "voc2012", "auc", "allpoint", "all-point", "every-point":
		return AllPoint, nil
	case "voc2007", "11point", "11-point", "eleven-point":
		return ElevenPoint, nil
	case "coco", "101point", "101-point":
		return COCO101, nil
	}
	return 0, errors.Wrapf(ErrUnknownMethod, "%q", s)
}

func (m Method) String() string {
	switch m {
	case AllPoint:
		return "all-point"
	case ElevenPoint:
		return "11-point"
	case COCO101:
		return "101-point"
	}
	return "unknown"
}

// Valid reports whether m is one of the defined methods.
func (m Method) Valid() bool {
	return m == AllPoint || m == ElevenPoint || m == COCO101
}

// Result is the AP of one curve together with the interpolated points kept for
// reporting.
type Result struct {
	// AP is meaningful only when Defined is true.
	AP float64 `json:"ap"`
	// Defined is false when the class has no ground truth.
	Defined bool `json:"defined"`
	// Precision holds the interpolated precision values.
	Precision []float64 `json:"interpolated_precision"`
	// Recall holds the recall levels matching Precision.
	Recall []float64 `json:"interpolated_recall"`
}

// Interpolate dispatches to the selected method.
func Interpolate(m Method, c curve.Curve) (Result, error) {
	switch m {
	case AllPoint:
		return AllPointAP(c), nil
	case ElevenPoint:
		return ElevenPointAP(c), nil
	case COCO101:
		return COCO101AP(c), nil
	}
	return Result{}, errors.Wrapf(ErrUnknownMethod, "method %d", int(m))
}

// ElevenPointAP samples the curve at 11 recall levels. The precision at a level
// is the highest precision reached at any recall greater than or equal to it,
// 0 when the curve never reaches the level.
func ElevenPointAP(c curve.Curve) Result {
	return sampled(c, 11)
}

// COCO101AP samples the precision envelope at 101 recall levels.
func COCO101AP(c curve.Curve) Result {
	return sampled(c, 101)
}

// AllPointAP is the exact area under the precision envelope.
//
// The curve is padded with recall 0 and recall 1, both at precision 0. The
// envelope replaces each precision with the maximum precision at the same or
// greater recall. The area is the sum of (r_i - r_{i-1}) * p_i over the points
// where recall changes.
//
// Arguments:
//   - c: The precision-recall curve of one class.
//
// Returns:
//   - Result: AP in [0, 1] and the padded envelope. Not Defined when the class
//     has no ground truth.
func AllPointAP(c curve.Curve) Result {
	if !c.Defined() {
		return Result{}
	}

	n := c.Len()
	recall := make([]float64, 0, n+2)
	recall = append(recall, 0)
	recall = append(recall, c.Recall...)
	recall = append(recall, 1)

	precision := make([]float64, 0, n+2)
	precision = append(precision, 0)
	precision = append(precision, c.Precision...)
	precision = append(precision, 0)

	envelope(precision)

	ap := 0.0
	for i := 1; i < len(recall); i++ {
		if recall[i] != recall[i-1] {
			ap += (recall[i] - recall[i-1]) * precision[i]
		}
	}

	return Result{
		AP:        min(max(ap, 0), 1),
		Defined:   true,
		Precision: precision,
		Recall:    recall,
	}
}

// sampled evaluates the envelope at n evenly spaced recall levels in [0, 1].
func sampled(c curve.Curve, n int) Result {
	if !c.Defined() {
		return Result{}
	}

	env := make([]float64, c.Len())
	copy(env, c.Precision)
	envelope(env)

	levels := make([]float64, n)
	values := make([]float64, n)
	for i := range levels {
		levels[i] = float64(i) / float64(n-1)
		// Recall is non-decreasing, so the first index reaching the level sees
		// the maximum precision over every point at or beyond it.
		idx := sort.SearchFloat64s(c.Recall, levels[i])
		if idx < len(env) {
			values[i] = env[idx]
		}
	}

	return Result{
		AP:        stat.Mean(values, nil),
		Defined:   true,
		Precision: values,
		Recall:    levels,
	}
}

// envelope makes p non-increasing from left to right in place.
func envelope(p []float64) {
	for i := len(p) - 2; i >= 0; i-- {
		p[i] = max(p[i], p[i+1])
	}
}
