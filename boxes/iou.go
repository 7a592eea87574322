package boxes

import "github.com/pkg/errors"

// Corners is a box in canonical absolute form. X2 and Y2 are the right and
// bottom edges.
type Corners struct {
	X1, Y1, X2, Y2 float64
}

// Width of the box. Negative for malformed boxes.
func (c Corners) Width() float64 { return c.X2 - c.X1 }

// Height of the box. Negative for malformed boxes.
func (c Corners) Height() float64 { return c.Y2 - c.Y1 }

// Area returns width * height without validating the sign of either.
func (c Corners) Area() float64 {
	return c.Width() * c.Height()
}

func (c Corners) check() error {
	if c.Width() < 0 || c.Height() < 0 {
		return errors.Wrapf(ErrInvalidBox, "negative size %gx%g", c.Width(), c.Height())
	}
	return nil
}

// IoU (Intersection over Union) measures how much two boxes overlap.
//
//	IoU = Area of Intersection / Area of Union
//
//	- 1.0 means the boxes are identical.
//	- 0.0 means they do not overlap, touch only along an edge, or one of them
//	  has zero area.
//
// The intersection is bounded by the larger of the two top-left corners and the
// smaller of the two bottom-right corners. If either intersection side is zero
// or negative there is no overlap. The union uses inclusion-exclusion:
//
//	Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
//
// The result is symmetric and always within [0, 1]. Both boxes are expected to
// have passed BoundingBox.Validate.
//
// Arguments:
//   - a: The first box.
//   - b: The second box.
//
// Returns:
//   - float64: The IoU score.
//
// Example Usage:
// ```go
//
//	a := Corners{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Corners{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	score := IoU(a, b) // 25 / (100 + 100 - 25) = 0.142857
//
// ```
func IoU(a, b Corners) float64 {
	interW := min(a.X2, b.X2) - max(a.X1, b.X1)
	interH := min(a.Y2, b.Y2) - max(a.Y1, b.Y1)
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	inter := interW * interH

	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0.0
	}
	return min(inter/union, 1.0)
}
