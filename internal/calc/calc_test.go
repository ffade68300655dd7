package calc

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/KyungWonPark/connectome/internal/roi"
	"github.com/KyungWonPark/connectome/internal/volume"
	"github.com/gonum/matrix/mat64"
	"gonum.org/v1/gonum/stat"
)

// halves builds a (2,2,2,T) volume whose z=0 half follows v1 and z=1 half follows v2, plus
// the matching two region atlas.
func halves(t *testing.T, v1, v2 []float32) (*volume.Volume, *roi.Labels) {
	t.Helper()
	n := len(v1)
	data := make([]float32, 8*n)
	for tp := 0; tp < n; tp++ {
		for v := 0; v < 8; v++ {
			if v < 4 {
				data[tp*8+v] = v1[tp]
			} else {
				data[tp*8+v] = v2[tp]
			}
		}
	}
	vol, err := volume.New([]int{2, 2, 2, n}, data)
	if err != nil {
		t.Fatal(err)
	}

	atlas, err := volume.New([]int{2, 2, 2}, []float32{1, 1, 1, 1, 2, 2, 2, 2})
	if err != nil {
		t.Fatal(err)
	}
	labels, err := roi.FromVolume(atlas)
	if err != nil {
		t.Fatal(err)
	}
	return vol, labels
}

func row(m *mat64.Dense, i int) []float64 {
	_, c := m.Dims()
	out := make([]float64, c)
	for j := range out {
		out[j] = m.At(i, j)
	}
	return out
}

func TestExtractTwoHalves(t *testing.T) {
	v1 := []float32{1, 2, 4}
	v2 := []float32{3, 1, 0.5}
	vol, labels := halves(t, v1, v2)

	ts, err := Extract(vol, labels, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !reflect.DeepEqual(ts.Labels, []int{1, 2}) {
		t.Fatalf("labels %v, want [1 2]", ts.Labels)
	}
	if ts.TimePoints() != 3 {
		t.Fatalf("timepoints %d, want 3", ts.TimePoints())
	}
	for tp := range v1 {
		if ts.Series.At(0, tp) != float64(v1[tp]) || ts.Series.At(1, tp) != float64(v2[tp]) {
			t.Errorf("t=%d: got %v, %v", tp, ts.Series.At(0, tp), ts.Series.At(1, tp))
		}
	}

	conn := Correlate(ts)
	if conn.Matrix.At(0, 0) != 1 || conn.Matrix.At(1, 1) != 1 {
		t.Errorf("diagonal %v %v, want 1", conn.Matrix.At(0, 0), conn.Matrix.At(1, 1))
	}

	want := stat.Correlation(row(ts.Series, 0), row(ts.Series, 1), nil)
	if got := conn.Matrix.At(0, 1); math.Abs(got-want) > 1e-12 {
		t.Errorf("r = %v, want %v", got, want)
	}
	if conn.Matrix.At(0, 1) != conn.Matrix.At(1, 0) {
		t.Error("matrix not symmetric")
	}
	if len(conn.Degenerate) != 0 {
		t.Errorf("unexpected degenerate regions %v", conn.Degenerate)
	}
}

func TestExtractMeanOfRegion(t *testing.T) {
	// Region 5 holds four voxels with different values.
	data := []float32{
		1, 2, 3, 6, 0, 0, 0, 0,
		2, 2, 2, 2, 0, 0, 0, 0,
	}
	vol, err := volume.New([]int{2, 2, 2, 2}, data)
	if err != nil {
		t.Fatal(err)
	}
	atlas, err := volume.New([]int{2, 2, 2}, []float32{5, 5, 5, 5, 0, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	labels, err := roi.FromVolume(atlas)
	if err != nil {
		t.Fatal(err)
	}

	ts, err := Extract(vol, labels, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := row(ts.Series, 0); !reflect.DeepEqual(got, []float64{3, 2}) {
		t.Errorf("series %v, want [3 2]", got)
	}
}

func TestExtractAllowList(t *testing.T) {
	vol, labels := halves(t, []float32{1, 2, 3}, []float32{3, 2, 2})

	ts, err := Extract(vol, labels, roi.AllowList{2: "Right", 77: "Absent"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !reflect.DeepEqual(ts.Labels, []int{2}) {
		t.Errorf("labels %v, want [2]", ts.Labels)
	}

	if _, err := Extract(vol, labels, roi.AllowList{77: "Absent"}); err != ErrNoRegions {
		t.Errorf("expected ErrNoRegions, got %v", err)
	}
}

func TestExtractEmptyRegion(t *testing.T) {
	vol, _ := halves(t, []float32{1, 2, 3}, []float32{3, 2, 2})
	labels, err := roi.MergeMasks(
		mustVolume(t, []int{2, 2, 2}, []float32{1, 1, 0, 0, 0, 0, 0, 0}),
		mustVolume(t, []int{2, 2, 2}, make([]float32, 8)),
	)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Extract(vol, labels, nil)
	var ee *EmptyRegionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EmptyRegionError, got %v", err)
	}
	if ee.Label != 2 {
		t.Errorf("empty label %d, want 2", ee.Label)
	}
}

func TestExtractShapeErrors(t *testing.T) {
	vol, _ := halves(t, []float32{1, 2, 3}, []float32{3, 2, 2})
	labels, err := roi.FromVolume(mustVolume(t, []int{2, 2, 3}, make([]float32, 12)))
	if err != nil {
		t.Fatal(err)
	}

	_, err = Extract(vol, labels, nil)
	var sm *volume.ShapeMismatchError
	if !errors.As(err, &sm) {
		t.Errorf("expected ShapeMismatchError, got %v", err)
	}

	flat := mustVolume(t, []int{2, 2, 2}, make([]float32, 8))
	_, err = Extract(flat, labels, nil)
	var se *volume.ShapeError
	if !errors.As(err, &se) {
		t.Errorf("expected ShapeError, got %v", err)
	}
}

func TestCorrelateDegenerate(t *testing.T) {
	vol, labels := halves(t, []float32{1, 2, 3, 5}, []float32{7, 7, 7, 7})

	ts, err := Extract(vol, labels, nil)
	if err != nil {
		t.Fatal(err)
	}
	conn := Correlate(ts)

	if !reflect.DeepEqual(conn.Degenerate, []int{2}) {
		t.Errorf("degenerate %v, want [2]", conn.Degenerate)
	}
	if conn.Matrix.At(0, 0) != 1 {
		t.Errorf("diagonal of valid region %v", conn.Matrix.At(0, 0))
	}
	for _, v := range []float64{conn.Matrix.At(0, 1), conn.Matrix.At(1, 0), conn.Matrix.At(1, 1)} {
		if !math.IsNaN(v) {
			t.Errorf("expected NaN, got %v", v)
		}
	}
	if !SymCheck(conn.Matrix, 0) || !DiagCheck(conn, 1e-12) {
		t.Error("degenerate matrix fails checks")
	}
}

func TestCorrelateAgainstOracle(t *testing.T) {
	series := mat64.NewDense(4, 6, []float64{
		0.3, 1.2, -0.4, 2.2, 0.9, 1.1,
		1.0, 0.1, 0.7, -1.3, 0.2, 0.5,
		-2.0, 0.4, 0.4, 3.1, 1.8, -0.6,
		5.0, 4.0, 3.0, 2.0, 1.0, 0.0,
	})
	conn := Correlate(&TimeSeries{Labels: []int{10, 20, 30, 40}, Series: series})

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := stat.Correlation(row(series, i), row(series, j), nil)
			if i == j {
				want = 1
			}
			if got := conn.Matrix.At(i, j); math.Abs(got-want) > 1e-12 {
				t.Errorf("(%d,%d) = %v, want %v", i, j, got, want)
			}
			if conn.Matrix.At(i, j) != conn.Matrix.At(j, i) {
				t.Errorf("(%d,%d) not symmetric", i, j)
			}
		}
	}
}

func TestExtractIdempotent(t *testing.T) {
	vol, labels := halves(t, []float32{0.1, 0.7, 0.3, 0.9}, []float32{2, 1, 4, 3})

	var mats []*mat64.Dense
	for k := 0; k < 2; k++ {
		ts, err := Extract(vol, labels, nil)
		if err != nil {
			t.Fatal(err)
		}
		mats = append(mats, Correlate(ts).Matrix)
	}

	a, b := mats[0].RawMatrix().Data, mats[1].RawMatrix().Data
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			t.Fatalf("entry %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestUpperTriangle(t *testing.T) {
	m := mat64.NewDense(3, 3, []float64{
		1, 2, 3,
		2, 1, 4,
		3, 4, 1,
	})
	got := UpperTriangle(m)

	want := []float64{
		1, 2, 3,
		0, 1, 4,
		0, 0, 1,
	}
	if !reflect.DeepEqual(got.RawMatrix().Data, want) {
		t.Errorf("got %v, want %v", got.RawMatrix().Data, want)
	}
	if m.At(2, 0) != 3 {
		t.Error("input modified")
	}
}

func TestSymCheck(t *testing.T) {
	m := mat64.NewDense(2, 2, []float64{1, 0.5, 0.5, 1})
	if !SymCheck(m, 0) {
		t.Error("symmetric matrix rejected")
	}
	m.Set(1, 0, 0.5001)
	if SymCheck(m, 1e-6) {
		t.Error("asymmetric matrix accepted")
	}
	if !SymCheck(m, 1e-3) {
		t.Error("tolerance ignored")
	}
	m.Set(1, 0, math.NaN())
	if SymCheck(m, 1) {
		t.Error("one sided NaN accepted")
	}
}

func TestMean(t *testing.T) {
	a := &Connectivity{Labels: []int{1, 2}, Matrix: mat64.NewDense(2, 2, []float64{1, 0.2, 0.2, 1})}
	b := &Connectivity{Labels: []int{1, 2}, Matrix: mat64.NewDense(2, 2, []float64{1, 0.6, 0.6, 1})}

	mean, err := Mean([]*Connectivity{a, b})
	if err != nil {
		t.Fatalf("Mean: %v", err)
	}
	if got := mean.Matrix.At(0, 1); math.Abs(got-0.4) > 1e-15 {
		t.Errorf("mean r = %v, want 0.4", got)
	}
	if mean.Matrix.At(0, 0) != 1 {
		t.Errorf("mean diagonal %v", mean.Matrix.At(0, 0))
	}

	c := &Connectivity{Labels: []int{1, 3}, Matrix: mat64.NewDense(2, 2, nil)}
	if _, err := Mean([]*Connectivity{a, c}); err == nil {
		t.Error("expected error for different regions")
	}
	if _, err := Mean(nil); err == nil {
		t.Error("expected error for no matrices")
	}
}

func TestAccAvgDims(t *testing.T) {
	if err := Acc(mat64.NewDense(2, 2, nil), mat64.NewDense(2, 3, nil)); err == nil {
		t.Error("Acc: expected dims error")
	}
	if err := Avg(mat64.NewDense(2, 2, nil), mat64.NewDense(2, 2, nil), 0); err == nil {
		t.Error("Avg: expected division error")
	}
}

func mustVolume(t *testing.T, dims []int, data []float32) *volume.Volume {
	t.Helper()
	v, err := volume.New(dims, data)
	if err != nil {
		t.Fatal(err)
	}
	return v
}
