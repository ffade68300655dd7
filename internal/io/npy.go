package io

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
	"github.com/twinj/uuid"
)

// NpyExt is appended to matrix paths that lack it.
const NpyExt = ".npy"

const maxNameAttempts = 8

// WriteCollisionWarning records an output path that already existed and the path written
// instead.
type WriteCollisionWarning struct {
	Requested string
	Actual    string
}

func (w *WriteCollisionWarning) Error() string {
	return fmt.Sprintf("file %s already exists; results written to %s", w.Requested, w.Actual)
}

// WithNpyExt appends NpyExt to path unless it is already there.
func WithNpyExt(path string) string {
	if strings.HasSuffix(path, NpyExt) {
		return path
	}
	return path + NpyExt
}

// RandomKey returns a fixed length random alphanumeric identifier.
func RandomKey() string {
	return fmt.Sprintf("%x", uuid.NewV4().Bytes())
}

// TempName returns a random matrix file name inside dir.
func TempName(dir string) string {
	return filepath.Join(dir, "tmp_"+RandomKey()+NpyExt)
}

// WriteMatrix saves matrix as an npy file at path, adding the .npy extension when missing.
// If path, with or without the extension, already exists the matrix is written to a random
// name in the same directory instead. Existing files are never modified. The path actually
// written is returned.
func WriteMatrix(path string, matrix *mat64.Dense) (string, error) {
	target := WithNpyExt(path)
	if !exists(path) && !exists(target) {
		err := Mat64toNpy(target, matrix)
		if err == nil {
			return target, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
	}

	for i := 0; i < maxNameAttempts; i++ {
		alt := TempName(filepath.Dir(target))
		err := Mat64toNpy(alt, matrix)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		log.Warn((&WriteCollisionWarning{Requested: path, Actual: alt}).Error())
		return alt, nil
	}
	return "", fmt.Errorf("no free file name for %s after %d attempts", target, maxNameAttempts)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Mat64toNpy writes matrix to a new Python numpy npy binary file. It fails if path exists.
func Mat64toNpy(path string, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	c := &onceCloser{File: f}

	w, err := gonpy.NewWriter(c)
	if err != nil {
		c.Close()
		os.Remove(path)
		return fmt.Errorf("%s: %v", path, err)
	}
	w.Shape = []int{rows, cols}
	w.Version = 2
	if err := w.WriteFloat64(rawData(matrix)); err != nil {
		c.Close()
		os.Remove(path)
		return fmt.Errorf("%s: %v", path, err)
	}
	return c.Close()
}

// NpytoMat64 reads Python numpy npy binary file as mat64 matrix. One dimensional arrays
// become a single column.
func NpytoMat64(path string) (*mat64.Dense, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}

	var rows, cols int
	switch len(r.Shape) {
	case 1:
		rows, cols = r.Shape[0], 1
	case 2:
		rows, cols = r.Shape[0], r.Shape[1]
	default:
		return nil, fmt.Errorf("%s: want a 1D or 2D array, got shape %v", path, r.Shape)
	}
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%s: empty array", path)
	}

	data, err := r.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return mat64.NewDense(rows, cols, data), nil
}

func rawData(matrix *mat64.Dense) []float64 {
	rows, cols := matrix.Dims()
	raw := matrix.RawMatrix()
	if raw.Stride == cols {
		return raw.Data[:rows*cols]
	}
	return mat64.DenseCopyOf(matrix).RawMatrix().Data
}

// onceCloser lets both gonpy and the caller close the file.
type onceCloser struct {
	*os.File
	closed bool
	err    error
}

func (c *onceCloser) Close() error {
	if !c.closed {
		c.closed = true
		c.err = c.File.Close()
	}
	return c.err
}
