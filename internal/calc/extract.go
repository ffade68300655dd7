package calc

import (
	"github.com/KyungWonPark/connectome/internal/roi"
	"github.com/KyungWonPark/connectome/internal/volume"
	"github.com/gonum/matrix/mat64"
	log "github.com/sirupsen/logrus"
)

// Extract averages vol over each region of labels at every timepoint. Only regions admitted
// by allow are kept; a nil allow keeps all of them.
func Extract(vol *volume.Volume, labels *roi.Labels, allow roi.AllowList) (*TimeSeries, error) {
	if vol.Rank() != 4 {
		return nil, &volume.ShapeError{Path: "time series", Dims: vol.Dims, Want: 4}
	}
	if !volume.SameSpatial(vol.Dims, labels.Dims) {
		return nil, &volume.ShapeMismatchError{What: "label volume", Got: labels.Dims, Want: vol.Spatial()}
	}

	regions := labels.RegionSet(allow)
	if len(regions) == 0 {
		return nil, ErrNoRegions
	}

	members := voxelIndex(labels, regions)
	for i, voxels := range members {
		if len(voxels) == 0 {
			return nil, &EmptyRegionError{Label: regions[i]}
		}
	}

	timePoints := vol.TimePoints()
	series := mat64.NewDense(len(regions), timePoints, nil)
	for t := 0; t < timePoints; t++ {
		frame := vol.Frame(t)
		for i, voxels := range members {
			series.Set(i, t, mean(frame, voxels))
		}
	}

	log.WithFields(log.Fields{
		"regions":    len(regions),
		"timepoints": timePoints,
	}).Debug("Calculated ROI mean time series")

	return &TimeSeries{Labels: regions, Series: series}, nil
}

// voxelIndex lists, for every region, the indices of its voxels within one frame.
func voxelIndex(labels *roi.Labels, regions []int) [][]int {
	row := make(map[int]int, len(regions))
	for i, r := range regions {
		row[r] = i
	}
	members := make([][]int, len(regions))
	for v, label := range labels.Data {
		if label == 0 {
			continue
		}
		if i, ok := row[label]; ok {
			members[i] = append(members[i], v)
		}
	}
	return members
}

// mean is a running mean, so a region of identical values yields exactly that value.
func mean(frame []float32, voxels []int) float64 {
	var m float64
	for k, v := range voxels {
		m += (float64(frame[v]) - m) / float64(k+1)
	}
	return m
}
