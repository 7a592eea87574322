package interpolation

import (
	"testing"

	"github.com/nvr-ai/go-ml-eval/curve"
	"github.com/nvr-ai/go-ml-eval/matching"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(positives int, tp ...bool) curve.Curve {
	results := make([]matching.Result, len(tp))
	for i, v := range tp {
		results[i] = matching.Result{
			Detection:    i,
			Confidence:   1 - float64(i)/float64(len(tp)+1),
			TruePositive: v,
			GroundTruth:  -1,
		}
	}
	return curve.Build(results, positives)
}

var methods = []Method{AllPoint, ElevenPoint, COCO101}

func TestInterpolate_KnownCurve(t *testing.T) {
	// precision: 1, 0.5, 0.667, 0.75, 0.6
	// recall:    0.25, 0.25, 0.5, 0.75, 0.75
	c := build(4, true, false, true, true, false)

	tests := []struct {
		method   Method
		expected float64
	}{
		{AllPoint, 0.625},
		{ElevenPoint, 6.75 / 11},
		{COCO101, 63.5 / 101},
	}
	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			res, err := Interpolate(tt.method, c)
			require.NoError(t, err)
			assert.True(t, res.Defined)
			assert.InDelta(t, tt.expected, res.AP, 1e-9)
			assert.Equal(t, len(res.Precision), len(res.Recall))
		})
	}
}

func TestInterpolate_PerfectDetection(t *testing.T) {
	c := build(1, true)
	for _, m := range methods {
		res, err := Interpolate(m, c)
		require.NoError(t, err)
		assert.Equal(t, 1.0, res.AP, m.String())
	}
}

func TestInterpolate_OnlyFalsePositives(t *testing.T) {
	c := build(1, false)
	for _, m := range methods {
		res, err := Interpolate(m, c)
		require.NoError(t, err)
		assert.True(t, res.Defined)
		assert.Equal(t, 0.0, res.AP, m.String())
	}
}

func TestInterpolate_NoDetections(t *testing.T) {
	c := build(3)
	for _, m := range methods {
		res, err := Interpolate(m, c)
		require.NoError(t, err)
		assert.True(t, res.Defined)
		assert.Equal(t, 0.0, res.AP, m.String())
	}
}

func TestInterpolate_NoGroundTruthIsUndefined(t *testing.T) {
	for _, c := range []curve.Curve{build(0), build(0, false, false)} {
		for _, m := range methods {
			res, err := Interpolate(m, c)
			require.NoError(t, err)
			assert.False(t, res.Defined, m.String())
		}
	}
}

func TestElevenPoint_Samples(t *testing.T) {
	c := build(5, true, false, true, false, false, true, true, false)
	res := ElevenPointAP(c)
	require.Len(t, res.Precision, 11)
	require.Len(t, res.Recall, 11)
	sum := 0.0
	for i, p := range res.Precision {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		assert.InDelta(t, float64(i)/10, res.Recall[i], 1e-12)
		sum += p
	}
	assert.InDelta(t, sum/11, res.AP, 1e-12)
	for i := 1; i < len(res.Precision); i++ {
		assert.LessOrEqual(t, res.Precision[i], res.Precision[i-1])
	}
}

func TestCOCO101_Samples(t *testing.T) {
	res := COCO101AP(build(2, true, false, true))
	require.Len(t, res.Precision, 101)
	assert.InDelta(t, 0.5, res.Recall[50], 1e-12)
	assert.GreaterOrEqual(t, res.AP, 0.0)
	assert.LessOrEqual(t, res.AP, 1.0)
}

// Two ground truth boxes, one found then one duplicate: recall stops at 0.5.
func TestInterpolate_HalfRecall(t *testing.T) {
	c := build(2, true, false)
	assert.Equal(t, 0.5, c.MaxRecall())

	assert.InDelta(t, 0.5, AllPointAP(c).AP, 1e-12)
	assert.InDelta(t, 6.0/11, ElevenPointAP(c).AP, 1e-12)
	assert.InDelta(t, 51.0/101, COCO101AP(c).AP, 1e-12)
}

func TestAllPoint_Bounds(t *testing.T) {
	patterns := [][]bool{
		{true, true, true},
		{false, true, false, true},
		{false, false, false, true},
		{true, false, false, false, false, false, true},
	}
	for _, p := range patterns {
		res := AllPointAP(build(len(p), p...))
		assert.GreaterOrEqual(t, res.AP, 0.0)
		assert.LessOrEqual(t, res.AP, 1.0)
	}
}

func TestParseMethod(t *testing.T) {
	cases := map[string]Method{
		"voc2012": AllPoint,
		"auc":     AllPoint,
		"voc2007": ElevenPoint,
		"11point": ElevenPoint,
		"coco":    COCO101,
		" COCO ":  COCO101,
	}
	for in, expected := range cases {
		m, err := ParseMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, expected, m, in)
	}

	_, err := ParseMethod("tube")
	assert.True(t, errors.Is(err, ErrUnknownMethod))

	_, err = Interpolate(Method(42), build(1, true))
	assert.True(t, errors.Is(err, ErrUnknownMethod))
	assert.False(t, Method(42).Valid())
}
