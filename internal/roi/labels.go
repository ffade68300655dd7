// Package roi builds the region partition used for time series extraction, either from a
// labeled atlas or from an ordered list of binary masks.
package roi

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/KyungWonPark/connectome/internal/volume"
	log "github.com/sirupsen/logrus"
)

// ErrNoMasks is returned by FromMasks and MergeMasks when given nothing to merge.
var ErrNoMasks = errors.New("no binary ROI masks given")

// Labels is a 3D region partition. Data[i] is the region of voxel i, 0 for none.
type Labels struct {
	Dims []int
	Data []int

	// Regions lists the declared region labels in ascending order.
	Regions []int

	// Overlaps counts voxels that a later mask took over from an earlier one.
	Overlaps int

	ref *volume.Volume
}

// FromAtlas reads a labeled 3D volume. Every distinct non-zero value is a region.
func FromAtlas(path string) (*Labels, error) {
	v, err := volume.Read(path, 3)
	if err != nil {
		return nil, err
	}
	l, err := FromVolume(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// FromVolume converts an in-memory atlas volume into Labels.
func FromVolume(v *volume.Volume) (*Labels, error) {
	if v.Rank() != 3 {
		return nil, &volume.ShapeError{Path: "atlas", Dims: v.Dims, Want: 3}
	}
	if !v.Exact() {
		return nil, &volume.FormatError{Path: "atlas", Reason: "labels above 2^24 cannot be represented exactly"}
	}

	l := &Labels{
		Dims: append([]int(nil), v.Dims...),
		Data: make([]int, len(v.Data)),
		ref:  v,
	}
	seen := make(map[int]bool)
	for i, value := range v.Data {
		f := float64(value)
		if f < 0 || f != math.Trunc(f) {
			return nil, &volume.FormatError{Path: "atlas", Reason: fmt.Sprintf("voxel %d has label %g; labels must be non-negative integers", i, f)}
		}
		label := int(f)
		l.Data[i] = label
		if label != 0 && !seen[label] {
			seen[label] = true
			l.Regions = append(l.Regions, label)
		}
	}
	sort.Ints(l.Regions)
	return l, nil
}

// FromMasks reads binary masks in order and merges them with MergeMasks semantics, one
// volume at a time.
func FromMasks(paths []string) (*Labels, error) {
	if len(paths) == 0 {
		return nil, ErrNoMasks
	}
	var m merger
	for _, path := range paths {
		v, err := volume.Read(path, 3)
		if err != nil {
			return nil, err
		}
		if err := m.add(v, path); err != nil {
			return nil, err
		}
	}
	return m.labels, nil
}

// MergeMasks gives every voxel that is non-zero in masks[k] the label k+1. A voxel set in
// more than one mask keeps the label of the last one. All masks must share the shape of
// the first.
func MergeMasks(masks ...*volume.Volume) (*Labels, error) {
	if len(masks) == 0 {
		return nil, ErrNoMasks
	}
	var m merger
	for i, v := range masks {
		if err := m.add(v, fmt.Sprintf("mask %d", i+1)); err != nil {
			return nil, err
		}
	}
	return m.labels, nil
}

type merger struct {
	labels *Labels
}

func (m *merger) add(v *volume.Volume, name string) error {
	if v.Rank() != 3 {
		return &volume.ShapeError{Path: name, Dims: v.Dims, Want: 3}
	}
	if m.labels == nil {
		m.labels = &Labels{
			Dims: append([]int(nil), v.Dims...),
			Data: make([]int, len(v.Data)),
			ref:  v,
		}
	} else if !volume.SameSpatial(v.Dims, m.labels.Dims) {
		return &volume.ShapeMismatchError{What: name, Got: v.Dims, Want: m.labels.Dims}
	}

	l := m.labels
	label := len(l.Regions) + 1
	overlaps := 0
	for i, value := range v.Data {
		if value == 0 {
			continue
		}
		if l.Data[i] != 0 {
			overlaps++
		}
		l.Data[i] = label
	}
	l.Regions = append(l.Regions, label)
	l.Overlaps += overlaps

	if overlaps > 0 {
		log.WithFields(log.Fields{
			"mask":     name,
			"label":    label,
			"overlaps": overlaps,
		}).Debug("Mask overlaps earlier masks; later mask wins")
	}
	return nil
}
