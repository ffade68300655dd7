package io

import (
	"fmt"
	"unsafe"

	"github.com/ghetzel/shmtool/shm"
	"github.com/gonum/matrix/mat64"
)

// Mat64toShm copies matrix, row major, into a new System V shared memory segment and returns
// the segment id. The segment outlives this process; whoever consumes it must destroy it.
func Mat64toShm(matrix *mat64.Dense) (int, error) {
	rows, cols := matrix.Dims()

	seg, err := shm.Create(rows * cols * 8)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate shared memory region: %v", err)
	}

	base, err := seg.Attach()
	if err != nil {
		seg.Destroy()
		return 0, fmt.Errorf("failed to attach shared memory region: %v", err)
	}

	mat64tocArr(matrix, base)
	seg.Detach(base)

	return int(seg.Id), nil
}

func mat64tocArr(matrix *mat64.Dense, pArr unsafe.Pointer) {
	rows, cols := matrix.Dims()
	arr := unsafe.Slice((*float64)(pArr), rows*cols)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			arr[i*cols+j] = matrix.At(i, j)
		}
	}
}
