package calc

import (
	"github.com/gonum/matrix/mat64"
)

// UpperTriangle returns a copy of matrix with every entry below the diagonal set to zero.
func UpperTriangle(matrix *mat64.Dense) *mat64.Dense {
	outputMat := mat64.DenseCopyOf(matrix)
	rows, cols := outputMat.Dims()

	for i := 1; i < rows; i++ {
		for j := 0; j < i && j < cols; j++ {
			outputMat.Set(i, j, 0)
		}
	}
	return outputMat
}
