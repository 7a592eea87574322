package evaluation

import (
	"fmt"
	"testing"

	"github.com/nvr-ai/go-ml-eval/boxes"
	"github.com/nvr-ai/go-ml-eval/interpolation"
	"github.com/nvr-ai/go-ml-eval/matching"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func gtBox(image, class string, x1, y1, x2, y2 float64) boxes.BoundingBox {
	return boxes.NewGroundTruth(image, class, boxes.FormatXYX2Y2, [4]float64{x1, y1, x2, y2})
}

func detBox(image, class string, conf, x1, y1, x2, y2 float64) boxes.BoundingBox {
	return boxes.NewDetection(image, class, conf, boxes.FormatXYX2Y2, [4]float64{x1, y1, x2, y2})
}

var vocMethods = []interpolation.Method{interpolation.AllPoint, interpolation.ElevenPoint}

func TestEvaluateVOC_PerfectDetection(t *testing.T) {
	truth := []boxes.BoundingBox{gtBox("1", "cat", 0, 0, 10, 10)}
	dets := []boxes.BoundingBox{detBox("1", "cat", 0.9, 0, 0, 10, 10)}

	for _, m := range vocMethods {
		t.Run(m.String(), func(t *testing.T) {
			summary, err := EvaluateVOC(truth, dets, VOCOptions{IoUThreshold: 0.5, Method: m, Logger: zaptest.NewLogger(t)})
			require.NoError(t, err)

			cat := summary.PerClass["cat"]
			require.NotNil(t, cat.AP)
			assert.Equal(t, 1.0, *cat.AP)
			assert.Equal(t, 1, cat.TotalTP)
			assert.Equal(t, 0, cat.TotalFP)
			assert.Equal(t, 1, cat.TotalPositives)
			assert.Equal(t, 0.5, cat.IoUThreshold)
			assert.Equal(t, m.String(), cat.Method)

			require.NotNil(t, summary.MAP)
			assert.Equal(t, 1.0, *summary.MAP)
			assert.Equal(t, []string{"cat"}, summary.Classes)
		})
	}
}

func TestEvaluateVOC_NoOverlap(t *testing.T) {
	truth := []boxes.BoundingBox{gtBox("1", "cat", 0, 0, 10, 10)}
	dets := []boxes.BoundingBox{detBox("1", "cat", 0.9, 20, 20, 30, 30)}

	for _, m := range vocMethods {
		summary, err := EvaluateVOC(truth, dets, VOCOptions{IoUThreshold: 0.5, Method: m})
		require.NoError(t, err)
		cat := summary.PerClass["cat"]
		require.NotNil(t, cat.AP)
		assert.Equal(t, 0.0, *cat.AP)
		assert.Equal(t, 0, cat.TotalTP)
		assert.Equal(t, 1, cat.TotalFP)
	}
}

func TestEvaluateVOC_DuplicateDetection(t *testing.T) {
	truth := []boxes.BoundingBox{
		gtBox("1", "dog", 0, 0, 100, 100),
		gtBox("1", "dog", 300, 300, 400, 400),
	}
	dets := []boxes.BoundingBox{
		detBox("1", "dog", 0.8, 0, 0, 100, 80),
		detBox("1", "dog", 0.9, 0, 0, 100, 90),
	}

	summary, err := EvaluateVOC(truth, dets, DefaultVOCOptions())
	require.NoError(t, err)

	dog := summary.PerClass["dog"]
	assert.Equal(t, 1, dog.TotalTP)
	assert.Equal(t, 1, dog.TotalFP)
	assert.Equal(t, []float64{1, 0.5}, dog.Precision)
	assert.Equal(t, []float64{0.5, 0.5}, dog.Recall)
	require.NotNil(t, dog.AP)
	assert.InDelta(t, 0.5, *dog.AP, 1e-12)
}

func TestEvaluateVOC_Weighting(t *testing.T) {
	truth := []boxes.BoundingBox{gtBox("1", "rare", 0, 0, 10, 10)}
	for i := 0; i < 100; i++ {
		truth = append(truth, gtBox(fmt.Sprintf("img-%d", i), "common", 0, 0, 10, 10))
	}
	dets := []boxes.BoundingBox{detBox("1", "rare", 0.9, 0, 0, 10, 10)}

	plain, err := EvaluateVOC(truth, dets, DefaultVOCOptions())
	require.NoError(t, err)
	require.NotNil(t, plain.MAP)
	assert.InDelta(t, 0.5, *plain.MAP, 1e-12)
	assert.Equal(t, "unweighted", plain.Weighting)

	weighted, err := EvaluateVOC(truth, dets, VOCOptions{IoUThreshold: 0.5, Weighting: ByGroundTruth})
	require.NoError(t, err)
	require.NotNil(t, weighted.MAP)
	assert.InDelta(t, 1.0/101, *weighted.MAP, 1e-12)
	assert.Less(t, *weighted.MAP, 0.01)
}

func TestEvaluateVOC_AbsentClass(t *testing.T) {
	truth := []boxes.BoundingBox{gtBox("1", "cat", 0, 0, 10, 10)}
	dets := []boxes.BoundingBox{
		detBox("1", "cat", 0.9, 0, 0, 10, 10),
		detBox("1", "ghost", 0.8, 0, 0, 10, 10),
		detBox("2", "ghost", 0.7, 0, 0, 10, 10),
	}

	for _, m := range vocMethods {
		for _, w := range []Weighting{Unweighted, ByGroundTruth} {
			summary, err := EvaluateVOC(truth, dets, VOCOptions{IoUThreshold: 0.5, Method: m, Weighting: w})
			require.NoError(t, err)

			ghost := summary.PerClass["ghost"]
			assert.Nil(t, ghost.AP, "no ground truth means no AP")
			assert.Equal(t, 2, ghost.TotalFP)
			assert.Equal(t, []string{"cat", "ghost"}, summary.Classes)

			require.NotNil(t, summary.MAP)
			assert.Equal(t, 1.0, *summary.MAP, "absent AP is excluded, not zero")
		}
	}
}

func TestEvaluateVOC_OnlyAbsentClasses(t *testing.T) {
	dets := []boxes.BoundingBox{detBox("1", "ghost", 0.8, 0, 0, 10, 10)}
	summary, err := EvaluateVOC(nil, dets, DefaultVOCOptions())
	require.NoError(t, err)
	assert.Nil(t, summary.MAP)
	assert.Nil(t, summary.PerClass["ghost"].AP)
}

func TestEvaluateVOC_GroundTruthWithoutDetections(t *testing.T) {
	truth := []boxes.BoundingBox{gtBox("1", "cat", 0, 0, 10, 10)}
	summary, err := EvaluateVOC(truth, nil, VOCOptions{IoUThreshold: 0.5, Method: interpolation.ElevenPoint})
	require.NoError(t, err)
	require.NotNil(t, summary.PerClass["cat"].AP)
	assert.Equal(t, 0.0, *summary.PerClass["cat"].AP)
}

func TestEvaluateVOC_Errors(t *testing.T) {
	truth := []boxes.BoundingBox{gtBox("1", "cat", 0, 0, 10, 10)}
	dets := []boxes.BoundingBox{detBox("1", "cat", 0.9, 0, 0, 10, 10)}

	tests := []struct {
		name   string
		gt     []boxes.BoundingBox
		dets   []boxes.BoundingBox
		opts   VOCOptions
		target error
	}{
		{"empty input", nil, nil, DefaultVOCOptions(), ErrEmptyInput},
		{"zero threshold", truth, dets, VOCOptions{IoUThreshold: 0}, ErrUnsupportedConfiguration},
		{"threshold above one", truth, dets, VOCOptions{IoUThreshold: 1.5}, ErrUnsupportedConfiguration},
		{"negative threshold", truth, dets, VOCOptions{IoUThreshold: -0.2}, ErrUnsupportedConfiguration},
		{"coco method", truth, dets, VOCOptions{IoUThreshold: 0.5, Method: interpolation.COCO101}, ErrUnsupportedConfiguration},
		{"unknown method", truth, dets, VOCOptions{IoUThreshold: 0.5, Method: interpolation.Method(9)}, ErrUnsupportedConfiguration},
		{"unknown weighting", truth, dets, VOCOptions{IoUThreshold: 0.5, Weighting: Weighting(7)}, ErrUnsupportedConfiguration},
		{
			"negative box", []boxes.BoundingBox{gtBox("1", "cat", 10, 10, 0, 0)}, dets,
			DefaultVOCOptions(), boxes.ErrInvalidBox,
		},
		{
			"confidence out of range", truth, []boxes.BoundingBox{detBox("1", "cat", 1.5, 0, 0, 10, 10)},
			DefaultVOCOptions(), boxes.ErrInvalidBox,
		},
		{"detection in ground truth list", dets, dets, DefaultVOCOptions(), boxes.ErrInvalidBox},
		{"ground truth in detection list", truth, truth, DefaultVOCOptions(), boxes.ErrInvalidBox},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := EvaluateVOC(tt.gt, tt.dets, tt.opts)
			require.Error(t, err)
			assert.Nil(t, summary, "no partial result on error")
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestUnsupportedKeepsCause(t *testing.T) {
	truth := []boxes.BoundingBox{gtBox("1", "cat", 0, 0, 10, 10)}

	_, err := EvaluateVOC(truth, nil, VOCOptions{IoUThreshold: 0.5, Method: interpolation.Method(9)})
	assert.True(t, errors.Is(err, ErrUnsupportedConfiguration))
	assert.True(t, errors.Is(err, interpolation.ErrUnknownMethod))

	_, err = evaluateClass(classBoxes{class: "cat", groundTruth: truth},
		matching.Options{IoUThreshold: 0.5}, interpolation.Method(9))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedConfiguration))
	assert.True(t, errors.Is(err, interpolation.ErrUnknownMethod))
	assert.Contains(t, err.Error(), "class cat")
}

func TestEvaluateVOC_ThresholdOneAccepted(t *testing.T) {
	truth := []boxes.BoundingBox{gtBox("1", "cat", 0, 0, 10, 10)}
	dets := []boxes.BoundingBox{detBox("1", "cat", 0.9, 0, 0, 10, 10)}
	summary, err := EvaluateVOC(truth, dets, VOCOptions{IoUThreshold: 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, *summary.MAP)
}

func TestEvaluateVOC_WorkersDoNotChangeResults(t *testing.T) {
	truth, dets := syntheticDataset(12, 40)

	reference, err := EvaluateVOC(truth, dets, VOCOptions{IoUThreshold: 0.5, Workers: 1})
	require.NoError(t, err)
	for _, workers := range []int{2, 4, 16, 0} {
		got, err := EvaluateVOC(truth, dets, VOCOptions{IoUThreshold: 0.5, Workers: workers})
		require.NoError(t, err)
		assert.Equal(t, reference, got, "workers=%d", workers)
	}
}

func TestMeanAP(t *testing.T) {
	one, zero := 1.0, 0.0
	metrics := []ClassMetric{
		{Class: "a", AP: &one, TotalPositives: 1},
		{Class: "b", AP: &zero, TotalPositives: 100},
		{Class: "c", AP: nil, TotalPositives: 0},
	}
	assert.InDelta(t, 0.5, *MeanAP(metrics, Unweighted), 1e-12)
	assert.InDelta(t, 1.0/101, *MeanAP(metrics, ByGroundTruth), 1e-12)
	assert.Nil(t, MeanAP(metrics[2:], Unweighted))
	assert.Nil(t, MeanAP(nil, ByGroundTruth))
}

func TestParseWeighting(t *testing.T) {
	w, err := ParseWeighting("gt")
	require.NoError(t, err)
	assert.Equal(t, ByGroundTruth, w)

	w, err = ParseWeighting("")
	require.NoError(t, err)
	assert.Equal(t, Unweighted, w)

	_, err = ParseWeighting("log")
	assert.True(t, errors.Is(err, ErrUnsupportedConfiguration))
}

// syntheticDataset builds a deterministic multi-class dataset with hits,
// near misses and duplicates across several images.
func syntheticDataset(images, perImage int) (truth, dets []boxes.BoundingBox) {
	classes := []string{"person", "car", "dog", "bicycle"}
	for img := 0; img < images; img++ {
		id := fmt.Sprintf("frame-%03d", img)
		for k := 0; k < perImage; k++ {
			class := classes[(img+k)%len(classes)]
			x := float64((k*37)%500) + float64(img)
			y := float64((k*53)%400) + float64(img)
			size := float64(10 + (k*13)%150)
			truth = append(truth, gtBox(id, class, x, y, x+size, y+size))

			switch k % 4 {
			case 0:
				dets = append(dets, detBox(id, class, float64((k*7)%100)/100, x, y, x+size, y+size))
			case 1:
				dets = append(dets, detBox(id, class, float64((k*11)%100)/100, x+size/4, y, x+size, y+size))
			case 2:
				dets = append(dets, detBox(id, class, float64((k*3)%100)/100, x+size, y+size, x+2*size, y+2*size))
			default:
				dets = append(dets,
					detBox(id, class, 0.6, x, y, x+size, y+size),
					detBox(id, class, 0.6, x+1, y+1, x+size, y+size))
			}
		}
	}
	return truth, dets
}
