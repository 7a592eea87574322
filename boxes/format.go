// Package boxes - Bounding box representation and geometry used by the metric engine.
package boxes

import (
	"strings"

	"github.com/pkg/errors"
)

// Format is the layout of the four coordinate values of a box.
type Format int

const (
	// FormatXYX2Y2 is a corner pair: left, top, right, bottom.
	FormatXYX2Y2 Format = iota
	// FormatXYWH is the top-left corner followed by width and height.
	FormatXYWH
	// FormatCXCYWH is the box center followed by width and height (YOLO layout).
	FormatCXCYWH
)

var formatNames = map[Format]string{
	FormatXYX2Y2: "xyx2y2",
	FormatXYWH:   "xywh",
	FormatCXCYWH: "cxcywh",
}

// ParseFormat resolves a format name. "xyrb" is accepted as an alias of "xyx2y2".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xyx2y2", "xyrb", "":
		return FormatXYX2Y2, nil
	case "xywh":
		return FormatXYWH, nil
	case "cxcywh", "yolo":
		return FormatCXCYWH, nil
	}
	return 0, errors.Errorf("unknown box format %q", s)
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	if _, ok := formatNames[f]; !ok {
		return nil, errors.Errorf("unknown box format %d", int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Scale tells whether coordinates are pixels or fractions of the image size.
type Scale int

const (
	// ScaleAbsolute coordinates are in pixels.
	ScaleAbsolute Scale = iota
	// ScaleRelative coordinates are fractions of the image width and height.
	ScaleRelative
)

// ParseScale resolves a scale name ("abs" / "rel" or the long forms).
func ParseScale(s string) (Scale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "abs", "absolute", "":
		return ScaleAbsolute, nil
	case "rel", "relative":
		return ScaleRelative, nil
	}
	return 0, errors.Errorf("unknown coordinate scale %q", s)
}

func (s Scale) String() string {
	switch s {
	case ScaleAbsolute:
		return "absolute"
	case ScaleRelative:
		return "relative"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s Scale) MarshalText() ([]byte, error) {
	if s != ScaleAbsolute && s != ScaleRelative {
		return nil, errors.Errorf("unknown coordinate scale %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scale) UnmarshalText(text []byte) error {
	parsed, err := ParseScale(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Kind separates annotations from model output.
type Kind int

const (
	// GroundTruth boxes are the reference annotations.
	GroundTruth Kind = iota
	// Detected boxes are predictions and always carry a confidence.
	Detected
)

// ParseKind resolves a kind name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ground_truth", "groundtruth", "gt", "":
		return GroundTruth, nil
	case "detected", "detection", "det":
		return Detected, nil
	}
	return 0, errors.Errorf("unknown box kind %q", s)
}

func (k Kind) String() string {
	switch k {
	case GroundTruth:
		return "ground_truth"
	case Detected:
		return "detected"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k != GroundTruth && k != Detected {
		return nil, errors.Errorf("unknown box kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
