package evaluation

import (
	"strings"

	"github.com/nvr-ai/go-ml-eval/boxes"
	"github.com/nvr-ai/go-ml-eval/interpolation"
	"github.com/nvr-ai/go-ml-eval/matching"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Weighting selects how per-class APs are combined into mAP.
type Weighting int

const (
	// Unweighted gives every class with a defined AP the same weight.
	Unweighted Weighting = iota
	// ByGroundTruth weights each class by its number of ground-truth boxes.
	ByGroundTruth
)

// ParseWeighting resolves "none" / "gt" style names.
func ParseWeighting(s string) (Weighting, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "unweighted", "uniform":
		return Unweighted, nil
	case "gt", "ground_truth", "weighted", "count":
		return ByGroundTruth, nil
	}
	return 0, errors.Wrapf(ErrUnsupportedConfiguration, "unknown weighting %q", s)
}

func (w Weighting) String() string {
	switch w {
	case Unweighted:
		return "unweighted"
	case ByGroundTruth:
		return "ground_truth"
	}
	return "unknown"
}

// VOCOptions configures EvaluateVOC.
type VOCOptions struct {
	// IoUThreshold must lie in (0, 1]. DefaultVOCOptions sets 0.5.
	IoUThreshold float64 `json:"iou_threshold" yaml:"iou_threshold"`
	// Method is AllPoint (VOC2012) by default, or ElevenPoint (VOC2007).
	Method interpolation.Method `json:"method" yaml:"method"`
	// Weighting selects how MAP combines the classes.
	Weighting Weighting `json:"weighting" yaml:"weighting"`
	// Workers bounds the per-class fan-out. Zero uses every CPU.
	Workers int `json:"workers" yaml:"workers"`
	// Logger receives per-class diagnostics. Nil disables logging.
	Logger *zap.Logger `json:"-" yaml:"-"`
}

// DefaultVOCOptions returns the VOC2012 protocol: IoU 0.5, all-point
// interpolation, unweighted mAP.
func DefaultVOCOptions() VOCOptions {
	return VOCOptions{
		IoUThreshold: matching.DefaultIoUThreshold,
		Method:       interpolation.AllPoint,
		Weighting:    Unweighted,
	}
}

// VOCSummary is the result of a PASCAL VOC evaluation.
type VOCSummary struct {
	// PerClass holds one entry per class seen in either input.
	PerClass map[string]ClassMetric `json:"per_class"`
	// Classes lists the keys of PerClass in sorted order.
	Classes []string `json:"classes"`
	// MAP is nil when no class has a defined AP.
	MAP *float64 `json:"map"`
	// Weighting used for MAP.
	Weighting string `json:"weighting"`
}

// EvaluateVOC computes per-class AP and mAP with the PASCAL VOC protocol.
//
// Arguments:
//   - groundTruth: Ground-truth boxes of every class and image.
//   - detections: Detected boxes of every class and image.
//   - opts: Threshold, interpolation method, class weighting and fan-out.
//
// Returns:
//   - *VOCSummary: Per-class metrics and mAP.
//   - error: ErrEmptyInput, ErrUnsupportedConfiguration or boxes.ErrInvalidBox.
//
// Example:
//
// ```go
//
//	opts := DefaultVOCOptions()
//	opts.Method = interpolation.ElevenPoint
//	summary, err := EvaluateVOC(gt, dets, opts)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("mAP: %f\n", *summary.MAP)
//
// ```
func EvaluateVOC(groundTruth, detections []boxes.BoundingBox, opts VOCOptions) (*VOCSummary, error) {
	if err := checkThreshold(opts.IoUThreshold); err != nil {
		return nil, err
	}
	if !opts.Method.Valid() {
		return nil, &unsupported{cause: errors.Wrapf(interpolation.ErrUnknownMethod, "method %d", int(opts.Method))}
	}
	if opts.Method != interpolation.AllPoint && opts.Method != interpolation.ElevenPoint {
		return nil, errors.Wrapf(ErrUnsupportedConfiguration, "VOC does not use %s interpolation", opts.Method)
	}
	if opts.Weighting != Unweighted && opts.Weighting != ByGroundTruth {
		return nil, errors.Wrapf(ErrUnsupportedConfiguration, "weighting %d", int(opts.Weighting))
	}
	logger := loggerOrNop(opts.Logger)

	groups, err := groupByClass(groundTruth, detections)
	if err != nil {
		return nil, err
	}

	metrics := make([]ClassMetric, len(groups))
	err = fanOut(len(groups), opts.Workers, func(i int) error {
		m, err := evaluateClass(groups[i], matching.Options{IoUThreshold: opts.IoUThreshold}, opts.Method)
		if err != nil {
			return err
		}
		metrics[i] = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	summary := &VOCSummary{
		PerClass:  make(map[string]ClassMetric, len(metrics)),
		Classes:   make([]string, 0, len(metrics)),
		MAP:       MeanAP(metrics, opts.Weighting),
		Weighting: opts.Weighting.String(),
	}
	for _, m := range metrics {
		logClass(logger, m)
		summary.PerClass[m.Class] = m
		summary.Classes = append(summary.Classes, m.Class)
	}

	if summary.MAP != nil {
		logger.Info("VOC evaluation finished",
			zap.Int("classes", len(metrics)),
			zap.Float64("map", *summary.MAP),
			zap.String("method", opts.Method.String()),
			zap.Float64("iou_threshold", opts.IoUThreshold))
	} else {
		logger.Warn("VOC evaluation finished without any defined AP", zap.Int("classes", len(metrics)))
	}
	return summary, nil
}

// MeanAP combines the defined per-class APs. Classes with an absent AP are
// left out rather than counted as zero. With ByGroundTruth each AP is scaled
// by the class's ground-truth count before averaging. Returns nil when no class
// has a defined AP.
func MeanAP(metrics []ClassMetric, weighting Weighting) *float64 {
	var values []float64
	sum, total := 0.0, 0
	for _, m := range metrics {
		if m.AP == nil {
			continue
		}
		values = append(values, *m.AP)
		sum += *m.AP * float64(m.TotalPositives)
		total += m.TotalPositives
	}

	if weighting == ByGroundTruth {
		if total == 0 {
			return nil
		}
		return ptr(sum / float64(total))
	}
	return mean(values)
}
