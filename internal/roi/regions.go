package roi

import (
	"github.com/KyungWonPark/connectome/internal/volume"
)

// RegionSet returns the declared regions admitted by allow, ascending. A nil allow list
// admits every region.
func (l *Labels) RegionSet(allow AllowList) []int {
	regions := make([]int, 0, len(l.Regions))
	for _, r := range l.Regions {
		if allow.Allows(r) {
			regions = append(regions, r)
		}
	}
	return regions
}

// ApplyBrainMask clears the label of every voxel that is zero in mask. Declared regions are
// kept even if the mask removes all of their voxels.
func (l *Labels) ApplyBrainMask(mask *volume.Volume) error {
	if mask.Rank() != 3 {
		return &volume.ShapeError{Path: "brain mask", Dims: mask.Dims, Want: 3}
	}
	if !volume.SameSpatial(mask.Dims, l.Dims) {
		return &volume.ShapeMismatchError{What: "brain mask", Got: mask.Dims, Want: l.Dims}
	}
	for i, value := range mask.Data {
		if value == 0 {
			l.Data[i] = 0
		}
	}
	return nil
}

// Volume returns the labels as a float volume carrying the spatial metadata of the atlas or
// first mask they were built from.
func (l *Labels) Volume() (*volume.Volume, error) {
	data := make([]float32, len(l.Data))
	for i, label := range l.Data {
		data[i] = float32(label)
	}
	if l.ref != nil {
		return l.ref.Derive(data)
	}
	return volume.New(l.Dims, data)
}
