package util

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nvr-ai/go-ml-eval/boxes"
	"github.com/pkg/errors"
)

// boxRecord is one entry of a box file. Kind is optional and class_id may be a
// string or an integer. Coordinates and confidence are decoded loosely so that
// a wrong count or a missing confidence is reported instead of zero-filled.
type boxRecord struct {
	boxes.BoundingBox
	ClassID     json.RawMessage `json:"class_id"`
	Kind        *boxes.Kind     `json:"kind"`
	Coordinates []float64       `json:"coordinates"`
	Confidence  *float64        `json:"confidence"`
}

// LoadBoxes reads a JSON array of boxes.
//
// Entries without a "kind" get the given kind; entries declaring another kind
// are rejected so that detections never end up in the ground-truth list.
// Every entry needs exactly four coordinates and every detection a confidence;
// anything else is boxes.ErrInvalidBox.
//
// Arguments:
// - path: Path to the JSON file.
// - kind: Kind expected for every box in the file.
//
// Returns:
// - []boxes.BoundingBox: The boxes in file order.
// - error: Error if reading or decoding fails.
func LoadBoxes(path string, kind boxes.Kind) ([]boxes.BoundingBox, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read box file")
	}

	var records []boxRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(err, "decode box file %s", path)
	}

	out := make([]boxes.BoundingBox, 0, len(records))
	for i, r := range records {
		b := r.BoundingBox
		b.ClassID, err = classID(r.ClassID)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: box %d", path, i)
		}
		b.Kind = kind
		if r.Kind != nil && *r.Kind != kind {
			return nil, errors.Wrapf(boxes.ErrInvalidBox, "%s: box %d is %s, expected %s", path, i, *r.Kind, kind)
		}
		if len(r.Coordinates) != 4 {
			return nil, errors.Wrapf(boxes.ErrInvalidBox, "%s: box %d has %d coordinates, expected 4",
				path, i, len(r.Coordinates))
		}
		copy(b.Coordinates[:], r.Coordinates)
		if r.Confidence != nil {
			b.Confidence = *r.Confidence
		} else if kind == boxes.Detected {
			return nil, errors.Wrapf(boxes.ErrInvalidBox, "%s: detection %d has no confidence", path, i)
		}
		out = append(out, b)
	}
	return out, nil
}

// LoadBoxesDir reads every .json file of a directory, in file name order, and
// concatenates their boxes.
//
// Arguments:
// - dir: Directory path containing box files.
// - kind: Kind expected for every box.
//
// Returns:
// - []boxes.BoundingBox: The boxes of all files.
// - error: Error if loading any file fails.
func LoadBoxesDir(dir string, kind boxes.Kind) ([]boxes.BoundingBox, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read box directory")
	}

	var names []string
	for _, file := range files {
		if file.IsDir() || !strings.EqualFold(filepath.Ext(file.Name()), ".json") {
			continue
		}
		names = append(names, file.Name())
	}
	sort.Strings(names)

	var out []boxes.BoundingBox
	for _, name := range names {
		list, err := LoadBoxes(filepath.Join(dir, name), kind)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

// Load reads path as a directory or a single file.
func Load(path string, kind boxes.Kind) ([]boxes.BoundingBox, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "stat box path")
	}
	if info.IsDir() {
		return LoadBoxesDir(path, kind)
	}
	return LoadBoxes(path, kind)
}

// WriteBoxes writes boxes as a JSON array in the format LoadBoxes reads.
func WriteBoxes(path string, list []boxes.BoundingBox) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode boxes")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write box file")
}

func classID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("missing class_id")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errors.Wrap(err, "class_id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.Wrap(err, "class_id")
	}
	if _, err := n.Int64(); err != nil {
		return "", errors.Errorf("class_id %s is not an integer", n)
	}
	return n.String(), nil
}
