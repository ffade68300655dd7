package calc

import (
	"errors"
	"fmt"

	"github.com/gonum/matrix/mat64"
)

// ErrNoRegions is returned when no region survives allow-list filtering.
var ErrNoRegions = errors.New("no regions left to extract")

// TimeSeries holds one mean time series per region. Row i belongs to Labels[i], column t to
// timepoint t.
type TimeSeries struct {
	Labels []int
	Series *mat64.Dense
}

// TimePoints returns the length of every series.
func (ts *TimeSeries) TimePoints() int {
	_, c := ts.Series.Dims()
	return c
}

// Connectivity is a region by region correlation matrix. Row and column i belong to
// Labels[i].
type Connectivity struct {
	Labels []int
	Matrix *mat64.Dense

	// Degenerate lists labels whose series has zero variance. Their rows and columns are NaN.
	Degenerate []int
}

// EmptyRegionError reports a region with no voxels to average.
type EmptyRegionError struct {
	Label int
}

func (e *EmptyRegionError) Error() string {
	return fmt.Sprintf("region %d has no voxels", e.Label)
}

// DegenerateSeriesError reports regions whose time series is constant. It is a warning:
// the matrix is still produced with NaN for those regions.
type DegenerateSeriesError struct {
	Labels []int
}

func (e *DegenerateSeriesError) Error() string {
	return fmt.Sprintf("constant time series in region(s) %v; correlation set to NaN", e.Labels)
}

type statistic struct {
	avg      float64
	ss       float64 // sum of squared deviations from avg
	constant bool
}
