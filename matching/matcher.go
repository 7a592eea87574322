// Package matching - Greedy assignment of detections to ground-truth boxes.
package matching

import (
	"math"
	"sort"

	"github.com/nvr-ai/go-ml-eval/boxes"
)

// DefaultIoUThreshold is the PASCAL VOC overlap criterion.
const DefaultIoUThreshold = 0.5

// AreaRange is a closed band of box areas in squared pixels.
type AreaRange struct {
	Name     string
	Min, Max float64
}

// COCO area bands.
var (
	AreaAll    = AreaRange{Name: "all", Min: 0, Max: math.Inf(1)}
	AreaSmall  = AreaRange{Name: "small", Min: 0, Max: 32 * 32}
	AreaMedium = AreaRange{Name: "medium", Min: 32 * 32, Max: 96 * 96}
	AreaLarge  = AreaRange{Name: "large", Min: 96 * 96, Max: math.Inf(1)}
)

// Contains reports whether area lies within the band, bounds included.
func (r AreaRange) Contains(area float64) bool {
	return area >= r.Min && area <= r.Max
}

// Options configures a single matching pass.
type Options struct {
	// IoUThreshold is the minimum overlap for a true positive.
	IoUThreshold float64
	// MaxDetections caps the detections considered per image, by confidence
	// rank. Zero means no cap.
	MaxDetections int
	// AreaRange, when set, ignores ground truth outside the band together with
	// the detections that match it or lie outside it unmatched.
	AreaRange *AreaRange
}

// Result is the outcome for one detected box.
type Result struct {
	// Detection is the index of the box in the detections slice given to Match.
	Detection int
	// Confidence of the detection.
	Confidence float64
	// TruePositive is set when the detection claimed a ground-truth box.
	TruePositive bool
	// GroundTruth is the index of the claimed ground-truth box, -1 if none.
	GroundTruth int
	// IoU with the claimed ground-truth box, 0 if none.
	IoU float64
	// Ignored results are left out of the precision-recall curve.
	Ignored bool
}

type prepared struct {
	corners []boxes.Corners
	areas   []float64
}

func prepare(list []boxes.BoundingBox) (prepared, error) {
	p := prepared{
		corners: make([]boxes.Corners, len(list)),
		areas:   make([]float64, len(list)),
	}
	for i, b := range list {
		area, err := b.Area()
		if err != nil {
			return prepared{}, err
		}
		c, err := b.Corners()
		if err != nil {
			return prepared{}, err
		}
		p.corners[i] = c
		p.areas[i] = area
	}
	return p, nil
}

// Rank returns detection indices sorted by descending confidence. Equal
// confidences keep their input order.
func Rank(detections []boxes.BoundingBox) []int {
	order := make([]int, len(detections))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return detections[order[a]].Confidence > detections[order[b]].Confidence
	})
	return order
}

// Match assigns the detections of one class to its ground-truth boxes.
//
// Detections are visited in descending confidence. Each one takes the unclaimed
// ground-truth box of the same image with the highest IoU, provided that IoU
// reaches the threshold; the box is then claimed and cannot be reused. Ground
// truth inside the area range is preferred over ground truth outside it.
//
// Arguments:
//   - groundTruth: Ground-truth boxes of a single class.
//   - detections: Detected boxes of the same class.
//   - opts: Threshold, per-image cap and optional area band.
//
// Returns:
//   - []Result: One entry per considered detection, in rank order. Detections
//     beyond MaxDetections for their image produce no entry.
//   - error: boxes.ErrInvalidBox if any box cannot be resolved.
func Match(groundTruth, detections []boxes.BoundingBox, opts Options) ([]Result, error) {
	gt, err := prepare(groundTruth)
	if err != nil {
		return nil, err
	}
	dt, err := prepare(detections)
	if err != nil {
		return nil, err
	}

	byImage := make(map[string][]int)
	for i, g := range groundTruth {
		byImage[g.ImageID] = append(byImage[g.ImageID], i)
	}

	ignoredGT := make([]bool, len(groundTruth))
	if opts.AreaRange != nil {
		for i, area := range gt.areas {
			ignoredGT[i] = !opts.AreaRange.Contains(area)
		}
	}

	// Exact IoU of 1.0 must still pass a threshold of 1.0.
	threshold := min(opts.IoUThreshold, 1-1e-10)

	claimed := make([]bool, len(groundTruth))
	perImage := make(map[string]int)
	results := make([]Result, 0, len(detections))

	for _, d := range Rank(detections) {
		det := detections[d]
		if opts.MaxDetections > 0 {
			if perImage[det.ImageID] >= opts.MaxDetections {
				continue
			}
			perImage[det.ImageID]++
		}

		best, bestIoU := -1, 0.0
		for _, g := range byImage[det.ImageID] {
			if claimed[g] {
				continue
			}
			iou := boxes.IoU(dt.corners[d], gt.corners[g])
			if iou < threshold {
				continue
			}
			switch {
			case best == -1:
			case ignoredGT[best] && !ignoredGT[g]:
			case ignoredGT[best] == ignoredGT[g] && iou > bestIoU:
			default:
				continue
			}
			best, bestIoU = g, iou
		}

		res := Result{
			Detection:   d,
			Confidence:  det.Confidence,
			GroundTruth: -1,
		}
		if best >= 0 {
			claimed[best] = true
			res.GroundTruth = best
			res.IoU = bestIoU
			res.Ignored = ignoredGT[best]
			res.TruePositive = !res.Ignored
		} else if opts.AreaRange != nil {
			res.Ignored = !opts.AreaRange.Contains(dt.areas[d])
		}
		results = append(results, res)
	}

	return results, nil
}

// CountPositives returns the number of ground-truth boxes that count towards
// recall: all of them, or only those inside the area range when one is given.
func CountPositives(groundTruth []boxes.BoundingBox, areaRange *AreaRange) (int, error) {
	if areaRange == nil {
		return len(groundTruth), nil
	}
	n := 0
	for _, g := range groundTruth {
		area, err := g.Area()
		if err != nil {
			return 0, err
		}
		if areaRange.Contains(area) {
			n++
		}
	}
	return n, nil
}
