package evaluation

import (
	"github.com/nvr-ai/go-ml-eval/boxes"
	"github.com/nvr-ai/go-ml-eval/curve"
	"github.com/nvr-ai/go-ml-eval/interpolation"
	"github.com/nvr-ai/go-ml-eval/matching"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// COCOMaxDetections is the per-image cap used for every COCO AP statistic.
const COCOMaxDetections = 100

// COCOThresholds returns the ten IoU thresholds 0.50, 0.55, ..., 0.95.
func COCOThresholds() []float64 {
	out := make([]float64, 10)
	for i := range out {
		out[i] = float64(50+5*i) / 100
	}
	return out
}

// COCOOptions configures EvaluateCOCO.
type COCOOptions struct {
	// IoUThreshold for the per-class report, in (0, 1]. The twelve summary
	// statistics always use their own fixed thresholds.
	IoUThreshold float64 `json:"iou_threshold" yaml:"iou_threshold"`
	// Workers bounds the per-class fan-out. Zero uses every CPU.
	Workers int `json:"workers" yaml:"workers"`
	// Logger receives per-class diagnostics. Nil disables logging.
	Logger *zap.Logger `json:"-" yaml:"-"`
}

// DefaultCOCOOptions reports per-class metrics at IoU 0.5.
func DefaultCOCOOptions() COCOOptions {
	return COCOOptions{IoUThreshold: matching.DefaultIoUThreshold}
}

// COCOSummary is the twelve-statistic COCO table plus the per-class report.
// Each statistic is nil when no class contributes a defined value.
type COCOSummary struct {
	AP       *float64 `json:"AP"`
	AP50     *float64 `json:"AP50"`
	AP75     *float64 `json:"AP75"`
	APSmall  *float64 `json:"APsmall"`
	APMedium *float64 `json:"APmedium"`
	APLarge  *float64 `json:"APlarge"`
	AR1      *float64 `json:"AR1"`
	AR10     *float64 `json:"AR10"`
	AR100    *float64 `json:"AR100"`
	ARSmall  *float64 `json:"ARsmall"`
	ARMedium *float64 `json:"ARmedium"`
	ARLarge  *float64 `json:"ARlarge"`

	// PerClass is computed with 101-point interpolation at the report threshold.
	PerClass map[string]ClassMetric `json:"per_class"`
	// Classes lists the keys of PerClass in sorted order.
	Classes []string `json:"classes"`
}

// Stat is one named cell of the COCO table.
type Stat struct {
	Name  string   `json:"name"`
	Label string   `json:"label"`
	Value *float64 `json:"value"`
}

// Stats returns the twelve statistics in the canonical COCO order.
func (s *COCOSummary) Stats() []Stat {
	return []Stat{
		{"AP", "AP [.5:.05:.95]", s.AP},
		{"AP50", "AP50", s.AP50},
		{"AP75", "AP75", s.AP75},
		{"APsmall", "AP Small", s.APSmall},
		{"APmedium", "AP Medium", s.APMedium},
		{"APlarge", "AP Large", s.APLarge},
		{"AR1", "AR1", s.AR1},
		{"AR10", "AR10", s.AR10},
		{"AR100", "AR100", s.AR100},
		{"ARsmall", "AR Small", s.ARSmall},
		{"ARmedium", "AR Medium", s.ARMedium},
		{"ARlarge", "AR Large", s.ARLarge},
	}
}

// cocoPass is one (max detections, area band) configuration swept over every
// IoU threshold.
type cocoPass struct {
	maxDets int
	area    *matching.AreaRange
}

const (
	passAll = iota
	passSmall
	passMedium
	passLarge
	passOneDet
	passTenDets
)

var cocoPasses = []cocoPass{
	passAll:     {maxDets: COCOMaxDetections},
	passSmall:   {maxDets: COCOMaxDetections, area: &matching.AreaSmall},
	passMedium:  {maxDets: COCOMaxDetections, area: &matching.AreaMedium},
	passLarge:   {maxDets: COCOMaxDetections, area: &matching.AreaLarge},
	passOneDet:  {maxDets: 1},
	passTenDets: {maxDets: 10},
}

// cell is the AP and AR of one class for one pass at one threshold. Both are
// nil when the class has no ground truth in the pass's area band.
type cell struct {
	ap, ar *float64
}

type cocoClass struct {
	// cells[pass][threshold]
	cells  [][]cell
	report ClassMetric
}

// EvaluateCOCO computes the COCO summary table and a per-class report.
//
// For every class, the matcher runs once per (IoU threshold, area band,
// detection cap) combination; each run yields a 101-point AP and a recall
// TP / positives. A table cell is the mean of the defined values over classes
// and, where the statistic spans them, over the ten thresholds.
//
// Arguments:
//   - groundTruth: Ground-truth boxes of every class and image.
//   - detections: Detected boxes of every class and image.
//   - opts: Report threshold and fan-out.
//
// Returns:
//   - *COCOSummary: The twelve statistics and per-class metrics.
//   - error: ErrEmptyInput, ErrUnsupportedConfiguration or boxes.ErrInvalidBox.
func EvaluateCOCO(groundTruth, detections []boxes.BoundingBox, opts COCOOptions) (*COCOSummary, error) {
	if err := checkThreshold(opts.IoUThreshold); err != nil {
		return nil, err
	}
	logger := loggerOrNop(opts.Logger)

	groups, err := groupByClass(groundTruth, detections)
	if err != nil {
		return nil, err
	}

	thresholds := COCOThresholds()
	classes := make([]cocoClass, len(groups))
	err = fanOut(len(groups), opts.Workers, func(i int) error {
		c, err := evaluateCOCOClass(groups[i], thresholds, opts.IoUThreshold)
		if err != nil {
			return err
		}
		classes[i] = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	collect := func(pass int, thr []int, ar bool) *float64 {
		var values []float64
		for _, c := range classes {
			for _, t := range thr {
				v := c.cells[pass][t].ap
				if ar {
					v = c.cells[pass][t].ar
				}
				if v != nil {
					values = append(values, *v)
				}
			}
		}
		return mean(values)
	}

	all := make([]int, len(thresholds))
	for i := range all {
		all[i] = i
	}
	at50, at75 := []int{0}, []int{5}

	summary := &COCOSummary{
		AP:       collect(passAll, all, false),
		AP50:     collect(passAll, at50, false),
		AP75:     collect(passAll, at75, false),
		APSmall:  collect(passSmall, all, false),
		APMedium: collect(passMedium, all, false),
		APLarge:  collect(passLarge, all, false),
		AR1:      collect(passOneDet, all, true),
		AR10:     collect(passTenDets, all, true),
		AR100:    collect(passAll, all, true),
		ARSmall:  collect(passSmall, all, true),
		ARMedium: collect(passMedium, all, true),
		ARLarge:  collect(passLarge, all, true),
		PerClass: make(map[string]ClassMetric, len(classes)),
		Classes:  make([]string, 0, len(classes)),
	}
	for _, c := range classes {
		logClass(logger, c.report)
		summary.PerClass[c.report.Class] = c.report
		summary.Classes = append(summary.Classes, c.report.Class)
	}

	fields := make([]zap.Field, 0, 12)
	for _, s := range summary.Stats() {
		if s.Value != nil {
			fields = append(fields, zap.Float64(s.Name, *s.Value))
		}
	}
	logger.Info("COCO evaluation finished", append(fields, zap.Int("classes", len(classes)))...)

	return summary, nil
}

func evaluateCOCOClass(cb classBoxes, thresholds []float64, reportThreshold float64) (cocoClass, error) {
	out := cocoClass{cells: make([][]cell, len(cocoPasses))}

	for p, pass := range cocoPasses {
		positives, err := matching.CountPositives(cb.groundTruth, pass.area)
		if err != nil {
			return cocoClass{}, errors.WithMessagef(err, "class %s", cb.class)
		}

		out.cells[p] = make([]cell, len(thresholds))
		if positives == 0 {
			continue
		}
		for t, thr := range thresholds {
			results, err := matching.Match(cb.groundTruth, cb.detections, matching.Options{
				IoUThreshold:  thr,
				MaxDetections: pass.maxDets,
				AreaRange:     pass.area,
			})
			if err != nil {
				return cocoClass{}, errors.WithMessagef(err, "class %s", cb.class)
			}

			c := curve.Build(results, positives)
			res := interpolation.COCO101AP(c)
			out.cells[p][t] = cell{
				ap: ptr(res.AP),
				ar: ptr(float64(c.TotalTP()) / float64(positives)),
			}
		}
	}

	report, err := evaluateClass(cb, matching.Options{
		IoUThreshold:  reportThreshold,
		MaxDetections: COCOMaxDetections,
	}, interpolation.COCO101)
	if err != nil {
		return cocoClass{}, err
	}
	out.report = report
	return out, nil
}
