// Package volume reads and writes NIfTI-1 brain volumes.
package volume

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/KyungWonPark/nifti"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

// Extensions lists the file suffixes accepted for volumes.
var Extensions = []string{".nii.gz", ".nii"}

// HasVolumeExt reports whether path ends in a recognized volume extension.
func HasVolumeExt(path string) bool {
	for _, ext := range Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Volume is a dense 3D or 4D array in NIfTI order: x varies fastest, then y, z and t.
type Volume struct {
	Dims []int
	Data []float32

	hdr   *header
	lossy bool
}

// New returns a volume of the given dims backed by data.
func New(dims []int, data []float32) (*Volume, error) {
	if len(dims) == 0 || len(dims) > 7 {
		return nil, fmt.Errorf("volume rank %d not in range [1, 7]", len(dims))
	}
	n := 1
	for _, d := range dims {
		if d < 1 {
			return nil, fmt.Errorf("bad volume dims %v", dims)
		}
		n *= d
	}
	if len(data) != n {
		return nil, fmt.Errorf("volume dims %v need %d values, got %d", dims, n, len(data))
	}
	return &Volume{Dims: append([]int(nil), dims...), Data: data}, nil
}

// Derive returns a volume of the same dims and spatial metadata holding data.
func (v *Volume) Derive(data []float32) (*Volume, error) {
	d, err := New(v.Dims, data)
	if err != nil {
		return nil, err
	}
	d.hdr = v.hdr
	return d, nil
}

// Rank is the number of dimensions.
func (v *Volume) Rank() int {
	return len(v.Dims)
}

// Spatial returns the x, y, z extent.
func (v *Volume) Spatial() []int {
	s := []int{1, 1, 1}
	for i := 0; i < 3 && i < len(v.Dims); i++ {
		s[i] = v.Dims[i]
	}
	return s
}

// NumVoxels is the number of voxels in one 3D frame.
func (v *Volume) NumVoxels() int {
	s := v.Spatial()
	return s[0] * s[1] * s[2]
}

// TimePoints is the length of the fourth axis, 1 for 3D volumes.
func (v *Volume) TimePoints() int {
	if len(v.Dims) < 4 {
		return 1
	}
	return len(v.Data) / v.NumVoxels()
}

// Frame returns the 3D slice at timepoint t without copying.
func (v *Volume) Frame(t int) []float32 {
	n := v.NumVoxels()
	return v.Data[t*n : (t+1)*n]
}

// SameSpatial reports whether a and b have identical x, y, z extents.
func SameSpatial(a, b []int) bool {
	if len(a) < 3 || len(b) < 3 {
		return false
	}
	return a[0] == b[0] && a[1] == b[1] && a[2] == b[2]
}

// Read loads the volume at path and checks that it has the expected rank. Trailing singleton
// dimensions past the third are dropped from 3D requests before the check.
func Read(path string, rank int) (*Volume, error) {
	if !HasVolumeExt(path) {
		return nil, &FormatError{path, "volume must be .nii/.nii.gz format"}
	}

	h, order, err := readHeader(path)
	if err != nil {
		return nil, err
	}

	dims := h.dims()
	if rank == 3 {
		dims = squeeze(dims)
	}
	if len(dims) != rank {
		return nil, &ShapeError{Path: path, Dims: dims, Want: rank}
	}

	n := 1
	for _, d := range dims {
		n *= d
	}
	c := newConverter(h)
	var data []float32
	if fastPath(h, order) {
		data, err = loadVoxels(path, dims, c)
	} else {
		data, err = readVoxels(path, h, order, n, c)
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"path":     path,
		"dims":     dims,
		"datatype": h.DataType,
		"size":     humanize.Bytes(uint64(len(data)) * 4),
	}).Debug("Volume loaded")

	return &Volume{Dims: dims, Data: data, hdr: h, lossy: c.lossy}, nil
}

// Exact reports whether every stored integral value survived the conversion to float32.
func (v *Volume) Exact() bool {
	return !v.lossy
}

func squeeze(dims []int) []int {
	n := len(dims)
	for n > 3 && dims[n-1] == 1 {
		n--
	}
	return dims[:n]
}

func loadVoxels(path string, dims []int, c *converter) (data []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, &FormatError{path, fmt.Sprintf("cannot load voxel data: %v", r)}
		}
	}()

	var img nifti.Nifti1Image
	img.LoadImage(path, true)

	nx, ny, nz, nt := 1, 1, 1, 1
	for i, d := range dims {
		switch i {
		case 0:
			nx = d
		case 1:
			ny = d
		case 2:
			nz = d
		case 3:
			nt = d
		}
	}

	data = make([]float32, 0, nx*ny*nz*nt)
	for t := 0; t < nt; t++ {
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				for x := 0; x < nx; x++ {
					data = append(data, c.value(float64(img.GetAt(uint32(x), uint32(y), uint32(z), uint32(t)))))
				}
			}
		}
	}
	return data, nil
}

// Write saves v as a float32 NIfTI-1 file, gzipped when path ends in .nii.gz. An existing
// file is never replaced.
func Write(path string, v *Volume) error {
	if !HasVolumeExt(path) {
		return &FormatError{path, "volume must be .nii/.nii.gz format"}
	}

	var buf bytes.Buffer
	h := newHeader(v.Dims, v.hdr)
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return err
	}
	buf.Write([]byte{0, 0, 0, 0}) // no extensions
	if err := binary.Write(&buf, binary.LittleEndian, v.Data); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if err := writeBody(f, &buf, isGzip(path)); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func writeBody(f *os.File, buf *bytes.Buffer, gzipped bool) error {
	if !gzipped {
		_, err := buf.WriteTo(f)
		return err
	}
	gz := pgzip.NewWriter(f)
	if _, err := buf.WriteTo(gz); err != nil {
		return err
	}
	return gz.Close()
}
