package calc

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
)

// Acc adds inputMat into outputMat element-wise.
func Acc(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if inputRows != outputRows || inputCols != outputCols {
		return fmt.Errorf("acc: input dims %d by %d when output dims %d by %d", inputRows, inputCols, outputRows, outputCols)
	}

	for i := 0; i < inputRows; i++ {
		for t := 0; t < inputCols; t++ {
			outputMat.Set(i, t, outputMat.At(i, t)+inputMat.At(i, t))
		}
	}
	return nil
}
