package calc

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
)

// Avg writes inputMat divided by div into outputMat.
func Avg(inputMat *mat64.Dense, outputMat *mat64.Dense, div float64) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if inputRows != outputRows || inputCols != outputCols {
		return fmt.Errorf("avg: input dims %d by %d when output dims %d by %d", inputRows, inputCols, outputRows, outputCols)
	}
	if div == 0 {
		return fmt.Errorf("avg: division by zero")
	}

	for i := 0; i < inputRows; i++ {
		for t := 0; t < inputCols; t++ {
			outputMat.Set(i, t, inputMat.At(i, t)/div)
		}
	}
	return nil
}

// Mean averages equally labeled connectivity matrices, e.g. one per subject.
func Mean(conns []*Connectivity) (*Connectivity, error) {
	if len(conns) == 0 {
		return nil, fmt.Errorf("mean: no matrices")
	}

	n := len(conns[0].Labels)
	accedMat := mat64.NewDense(n, n, nil)
	for k, c := range conns {
		if !sameLabels(c.Labels, conns[0].Labels) {
			return nil, fmt.Errorf("mean: matrix %d has regions %v, want %v", k, c.Labels, conns[0].Labels)
		}
		if err := Acc(c.Matrix, accedMat); err != nil {
			return nil, err
		}
	}

	avgedMat := mat64.NewDense(n, n, nil)
	if err := Avg(accedMat, avgedMat, float64(len(conns))); err != nil {
		return nil, err
	}

	var degenerate []int
	for i, label := range conns[0].Labels {
		if math.IsNaN(avgedMat.At(i, i)) {
			degenerate = append(degenerate, label)
		}
	}

	return &Connectivity{
		Labels:     append([]int(nil), conns[0].Labels...),
		Matrix:     avgedMat,
		Degenerate: degenerate,
	}, nil
}

func sameLabels(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
