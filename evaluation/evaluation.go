// Package evaluation - VOC and COCO aggregation of per-class detection metrics.
//
// Both entry points validate every box up front, group boxes by class and fan
// the per-class work out over a bounded set of goroutines. Classes never read
// each other's state, so the result does not depend on scheduling. Any error
// aborts the whole call and no partial summary is returned.
package evaluation

import (
	"context"
	"math"
	"runtime"
	"sort"

	"github.com/nvr-ai/go-ml-eval/boxes"
	"github.com/nvr-ai/go-ml-eval/curve"
	"github.com/nvr-ai/go-ml-eval/interpolation"
	"github.com/nvr-ai/go-ml-eval/matching"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrEmptyInput is returned when there is neither ground truth nor any
	// detection to evaluate.
	ErrEmptyInput = errors.New("no ground truth and no detections")
	// ErrUnsupportedConfiguration is returned for an unknown interpolation
	// method or weighting, or an IoU threshold outside (0, 1].
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")
)

// unsupported reports cause as ErrUnsupportedConfiguration while keeping cause
// itself in the chain.
type unsupported struct {
	cause error
}

func (e *unsupported) Error() string {
	return ErrUnsupportedConfiguration.Error() + ": " + e.cause.Error()
}

func (e *unsupported) Unwrap() error { return e.cause }

func (e *unsupported) Is(target error) bool { return target == ErrUnsupportedConfiguration }

// ClassMetric holds the result of one class.
type ClassMetric struct {
	// Class is the class identifier.
	Class string `json:"class"`
	// AP is nil when the class has no ground truth.
	AP *float64 `json:"ap"`
	// TotalPositives is the number of ground-truth boxes.
	TotalPositives int `json:"total_positives"`
	// TotalTP is the number of true positives.
	TotalTP int `json:"total_tp"`
	// TotalFP is the number of false positives.
	TotalFP int `json:"total_fp"`
	// Precision is the raw precision per ranked detection.
	Precision []float64 `json:"precision"`
	// Recall is the raw recall per ranked detection.
	Recall []float64 `json:"recall"`
	// InterpolatedPrecision is the interpolated curve used for AP.
	InterpolatedPrecision []float64 `json:"interpolated_precision"`
	// InterpolatedRecall are the recall levels of InterpolatedPrecision.
	InterpolatedRecall []float64 `json:"interpolated_recall"`
	// IoUThreshold used for matching.
	IoUThreshold float64 `json:"iou_threshold"`
	// Method used for interpolation.
	Method string `json:"method"`
}

type classBoxes struct {
	class       string
	groundTruth []boxes.BoundingBox
	detections  []boxes.BoundingBox
}

// groupByClass validates the input and splits it per class. Classes are sorted
// so that summaries list them in a stable order.
func groupByClass(groundTruth, detections []boxes.BoundingBox) ([]classBoxes, error) {
	if len(groundTruth) == 0 && len(detections) == 0 {
		return nil, ErrEmptyInput
	}

	index := make(map[string]int)
	var groups []classBoxes
	lookup := func(class string) *classBoxes {
		i, ok := index[class]
		if !ok {
			i = len(groups)
			index[class] = i
			groups = append(groups, classBoxes{class: class})
		}
		return &groups[i]
	}

	for i, b := range groundTruth {
		if b.Kind != boxes.GroundTruth {
			return nil, errors.Wrapf(boxes.ErrInvalidBox, "ground truth %d is %s", i, b.Kind)
		}
		if err := b.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "ground truth %d", i)
		}
		g := lookup(b.ClassID)
		g.groundTruth = append(g.groundTruth, b)
	}
	for i, b := range detections {
		if b.Kind != boxes.Detected {
			return nil, errors.Wrapf(boxes.ErrInvalidBox, "detection %d is %s", i, b.Kind)
		}
		if err := b.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "detection %d", i)
		}
		g := lookup(b.ClassID)
		g.detections = append(g.detections, b)
	}

	sort.Slice(groups, func(a, b int) bool {
		return groups[a].class < groups[b].class
	})
	return groups, nil
}

func checkThreshold(t float64) error {
	if math.IsNaN(t) || t <= 0 || t > 1 {
		return errors.Wrapf(ErrUnsupportedConfiguration, "IoU threshold %v outside (0, 1]", t)
	}
	return nil
}

// evaluateClass runs match, curve and interpolation for one class.
func evaluateClass(cb classBoxes, opts matching.Options, method interpolation.Method) (ClassMetric, error) {
	results, err := matching.Match(cb.groundTruth, cb.detections, opts)
	if err != nil {
		return ClassMetric{}, errors.WithMessagef(err, "class %s", cb.class)
	}
	positives, err := matching.CountPositives(cb.groundTruth, opts.AreaRange)
	if err != nil {
		return ClassMetric{}, errors.WithMessagef(err, "class %s", cb.class)
	}

	c := curve.Build(results, positives)
	interp, err := interpolation.Interpolate(method, c)
	if err != nil {
		return ClassMetric{}, &unsupported{cause: errors.WithMessagef(err, "class %s", cb.class)}
	}

	m := ClassMetric{
		Class:                 cb.class,
		TotalPositives:        positives,
		TotalTP:               c.TotalTP(),
		TotalFP:               c.TotalFP(),
		Precision:             c.Precision,
		Recall:                c.Recall,
		InterpolatedPrecision: interp.Precision,
		InterpolatedRecall:    interp.Recall,
		IoUThreshold:          opts.IoUThreshold,
		Method:                method.String(),
	}
	if interp.Defined {
		m.AP = ptr(interp.AP)
	}
	return m, nil
}

// fanOut runs fn for every index in [0, n) on at most workers goroutines and
// returns the first error.
func fanOut(n, workers int, fn func(i int) error) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			return fn(i)
		})
	}
	return g.Wait()
}

func logClass(logger *zap.Logger, m ClassMetric) {
	if m.AP == nil {
		logger.Warn("AP undefined, class has no ground truth",
			zap.String("class", m.Class),
			zap.Int("false_positives", m.TotalFP))
		return
	}
	logger.Debug("class evaluated",
		zap.String("class", m.Class),
		zap.Float64("ap", *m.AP),
		zap.Int("positives", m.TotalPositives),
		zap.Int("tp", m.TotalTP),
		zap.Int("fp", m.TotalFP),
		zap.String("method", m.Method))
}

func ptr(v float64) *float64 {
	return &v
}

// mean returns nil for an empty sample so that absent values stay absent.
func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	return ptr(stat.Mean(values, nil))
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
