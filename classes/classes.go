// Package classes - Class name sets and mapping of integer class ids to names.
package classes

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-ml-eval/boxes"
	"github.com/pkg/errors"
)

// Set is an ordered list of class names where the position is the class id.
type Set struct {
	// Name identifies the set, e.g. "coco".
	Name string
	// Names indexed by class id.
	Names []string
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewSet builds a set and its name index.
func NewSet(name string, names []string) *Set {
	s := &Set{Name: name, Names: names}
	s.nameToIdx = make(map[string]int, len(names))
	for i, n := range names {
		if _, ok := s.nameToIdx[n]; !ok {
			s.nameToIdx[n] = i
		}
	}
	return s
}

// LoadNames reads a names file with one class name per line. Surrounding
// whitespace is trimmed and trailing blank lines are dropped.
func LoadNames(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open names file")
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read names file %s", path)
	}
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	if len(names) == 0 {
		return nil, errors.Errorf("names file %s is empty", path)
	}
	return NewSet(path, names), nil
}

// ClassName returns the name for a class id.
func (s *Set) ClassName(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Names) {
		return "", errors.Errorf("index %d out of range for set %q", idx, s.Name)
	}
	return s.Names[idx], nil
}

// Index returns the class id for a name.
func (s *Set) Index(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found in set %q", name, s.Name)
	}
	return idx, nil
}

// Relabel returns a copy of list where integer class ids are replaced by their
// names. Boxes whose class id is already a name in the set are kept as they
// are; anything else is an error.
func (s *Set) Relabel(list []boxes.BoundingBox) ([]boxes.BoundingBox, error) {
	out := make([]boxes.BoundingBox, len(list))
	for i, b := range list {
		if _, ok := s.nameToIdx[b.ClassID]; ok {
			out[i] = b
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(b.ClassID))
		if err != nil {
			return nil, errors.Errorf("box %d: class %q is neither an id nor a name in %q", i, b.ClassID, s.Name)
		}
		name, err := s.ClassName(idx)
		if err != nil {
			return nil, errors.WithMessagef(err, "box %d", i)
		}
		b.ClassID = name
		out[i] = b
	}
	return out, nil
}

// Manager holds the registered sets by name.
type Manager struct {
	sets map[string]*Set
}

// NewManager registers the given sets.
func NewManager(sets ...*Set) *Manager {
	m := &Manager{sets: make(map[string]*Set, len(sets))}
	for _, s := range sets {
		m.sets[s.Name] = s
	}
	return m
}

// DefaultManager knows the built-in COCO and VOC sets.
func DefaultManager() *Manager {
	return NewManager(COCO, VOC)
}

// Resolve returns a registered set by name, or loads ref as a names file.
func (m *Manager) Resolve(ref string) (*Set, error) {
	if s, ok := m.sets[strings.ToLower(ref)]; ok {
		return s, nil
	}
	return LoadNames(ref)
}

// MapClass maps a class id of one set to the id of the same name in another.
func (m *Manager) MapClass(from string, idx int, to string) (int, error) {
	src, ok := m.sets[from]
	if !ok {
		return -1, errors.Errorf("set %q not registered", from)
	}
	dst, ok := m.sets[to]
	if !ok {
		return -1, errors.Errorf("set %q not registered", to)
	}
	name, err := src.ClassName(idx)
	if err != nil {
		return -1, err
	}
	return dst.Index(name)
}

// COCO is the 80-class COCO label set in contiguous id order.
var COCO = NewSet("coco", []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
})

// VOC is the 20-class PASCAL VOC label set.
var VOC = NewSet("voc", []string{
	"aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person", "pottedplant", "sheep", "sofa", "train", "tvmonitor",
})
