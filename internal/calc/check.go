package calc

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

// SymCheck checks symmetry within pre. Two NaN entries count as equal.
func SymCheck(matrix *mat64.Dense, pre float64) bool {
	rows, cols := matrix.Dims()
	if rows != cols {
		return false
	}
	pre = math.Abs(pre)

	for i := 0; i < rows; i++ {
		for j := i + 1; j < cols; j++ {
			a, b := matrix.At(i, j), matrix.At(j, i)
			if math.IsNaN(a) || math.IsNaN(b) {
				if !(math.IsNaN(a) && math.IsNaN(b)) {
					return false
				}
				continue
			}
			if math.Abs(a-b) > pre {
				return false
			}
		}
	}
	return true
}

// DiagCheck checks that every diagonal entry of a non-degenerate row is 1 within pre.
func DiagCheck(c *Connectivity, pre float64) bool {
	degenerate := make(map[int]bool, len(c.Degenerate))
	for _, label := range c.Degenerate {
		degenerate[label] = true
	}
	for i, label := range c.Labels {
		if degenerate[label] {
			continue
		}
		if math.Abs(c.Matrix.At(i, i)-1) > math.Abs(pre) {
			return false
		}
	}
	return true
}
