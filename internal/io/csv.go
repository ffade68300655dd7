package io

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/gonum/matrix/mat64"
)

// Mat64toCSV writes matrix as comma separated rows.
func Mat64toCSV(w io.Writer, matrix *mat64.Dense) error {
	bw := bufio.NewWriter(w)
	rows, cols := matrix.Dims()

	nums := make([]string, cols)
	for row := 0; row < rows; row++ {
		for i := 0; i < cols; i++ {
			nums[i] = strconv.FormatFloat(matrix.At(row, i), 'g', -1, 64)
		}
		if _, err := bw.WriteString(strings.Join(nums, ", ") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
