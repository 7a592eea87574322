package boxes

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidBox is returned for malformed geometry: negative width or height,
// relative coordinates without an image size, or a detection confidence
// outside [0, 1]. Malformed boxes are never clamped.
var ErrInvalidBox = errors.New("invalid bounding box")

// Size is the pixel size of the image a box belongs to. The zero value means
// the size is unknown.
type Size struct {
	Width  float64 `json:"width"  yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Known reports whether both dimensions are positive.
func (s Size) Known() bool {
	return s.Width > 0 && s.Height > 0
}

// BoundingBox is a ground-truth annotation or a detection for one object in one
// image. It is passed by value and never modified by the engine.
type BoundingBox struct {
	// ImageID groups boxes of the same image. It is an opaque key.
	ImageID string `json:"image_id" yaml:"image_id"`
	// ClassID is the label of the object. It is an opaque key.
	ClassID string `json:"class_id" yaml:"class_id"`
	// Coordinates are interpreted through Format and Scale.
	Coordinates [4]float64 `json:"coordinates" yaml:"coordinates"`
	// Format is the layout of Coordinates.
	Format Format `json:"format" yaml:"format"`
	// Scale tells whether Coordinates are pixels or fractions of ImageSize.
	Scale Scale `json:"scale" yaml:"scale"`
	// ImageSize is required when Scale is ScaleRelative.
	ImageSize Size `json:"image_size" yaml:"image_size"`
	// Kind separates annotations from model output.
	Kind Kind `json:"kind" yaml:"kind"`
	// Confidence is only read for Detected boxes.
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// NewGroundTruth builds an absolute ground-truth box.
func NewGroundTruth(imageID, classID string, format Format, coords [4]float64) BoundingBox {
	return BoundingBox{
		ImageID:     imageID,
		ClassID:     classID,
		Coordinates: coords,
		Format:      format,
		Scale:       ScaleAbsolute,
		Kind:        GroundTruth,
	}
}

// NewDetection builds an absolute detected box.
func NewDetection(imageID, classID string, confidence float64, format Format, coords [4]float64) BoundingBox {
	return BoundingBox{
		ImageID:     imageID,
		ClassID:     classID,
		Coordinates: coords,
		Format:      format,
		Scale:       ScaleAbsolute,
		Kind:        Detected,
		Confidence:  confidence,
	}
}

// WithRelative returns a copy of b whose coordinates are fractions of size.
func (b BoundingBox) WithRelative(size Size) BoundingBox {
	b.Scale = ScaleRelative
	b.ImageSize = size
	return b
}

func (b BoundingBox) String() string {
	if b.Kind == Detected {
		return fmt.Sprintf("Object %s in %s (confidence %f): %s %v",
			b.ClassID, b.ImageID, b.Confidence, b.Format, b.Coordinates)
	}
	return fmt.Sprintf("Object %s in %s: %s %v", b.ClassID, b.ImageID, b.Format, b.Coordinates)
}

// Corners converts any format and scale combination into absolute corners.
//
// Arguments:
//   - b (receiver): The box to convert.
//
// Returns:
//   - Corners: The absolute left, top, right and bottom values.
//   - error: ErrInvalidBox if the box is relative and its image size is unknown.
//
// Example:
//
// ```go
//
//	box := NewGroundTruth("img", "cat", FormatXYWH, [4]float64{10, 20, 30, 40})
//	c, _ := box.Corners() // {X1: 10, Y1: 20, X2: 40, Y2: 60}
//
// ```
func (b BoundingBox) Corners() (Corners, error) {
	v := b.Coordinates
	if b.Scale == ScaleRelative {
		if !b.ImageSize.Known() {
			return Corners{}, errors.Wrapf(ErrInvalidBox,
				"%s: relative coordinates without image size", b.ImageID)
		}
		v[0] *= b.ImageSize.Width
		v[1] *= b.ImageSize.Height
		v[2] *= b.ImageSize.Width
		v[3] *= b.ImageSize.Height
	} else if b.Scale != ScaleAbsolute {
		return Corners{}, errors.Wrapf(ErrInvalidBox, "%s: unknown scale %d", b.ImageID, int(b.Scale))
	}

	switch b.Format {
	case FormatXYX2Y2:
		return Corners{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
	case FormatXYWH:
		return Corners{X1: v[0], Y1: v[1], X2: v[0] + v[2], Y2: v[1] + v[3]}, nil
	case FormatCXCYWH:
		halfW, halfH := v[2]/2, v[3]/2
		return Corners{X1: v[0] - halfW, Y1: v[1] - halfH, X2: v[0] + halfW, Y2: v[1] + halfH}, nil
	}
	return Corners{}, errors.Wrapf(ErrInvalidBox, "%s: unknown format %d", b.ImageID, int(b.Format))
}

// Area returns width * height of the absolute corners.
func (b BoundingBox) Area() (float64, error) {
	c, err := b.Corners()
	if err != nil {
		return 0, err
	}
	if err := c.check(); err != nil {
		return 0, errors.WithMessage(err, b.ImageID)
	}
	return c.Area(), nil
}

// IoU resolves both boxes to absolute corners and returns their overlap ratio.
func (b BoundingBox) IoU(other BoundingBox) (float64, error) {
	c1, err := b.Corners()
	if err != nil {
		return 0, err
	}
	c2, err := other.Corners()
	if err != nil {
		return 0, err
	}
	return IoU(c1, c2), nil
}

// Validate checks everything the engine needs before any area or IoU is
// computed.
func (b BoundingBox) Validate() error {
	for _, v := range b.Coordinates {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrInvalidBox, "%s: non-finite coordinate in %v", b.ImageID, b.Coordinates)
		}
	}
	if _, err := b.Area(); err != nil {
		return err
	}
	switch b.Kind {
	case GroundTruth:
	case Detected:
		if math.IsNaN(b.Confidence) || b.Confidence < 0 || b.Confidence > 1 {
			return errors.Wrapf(ErrInvalidBox, "%s: confidence %v outside [0, 1]", b.ImageID, b.Confidence)
		}
	default:
		return errors.Wrapf(ErrInvalidBox, "%s: unknown kind %d", b.ImageID, int(b.Kind))
	}
	return nil
}
