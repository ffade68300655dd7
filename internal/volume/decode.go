package volume

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/pgzip"
)

// converter applies the header's scl_slope and scl_inter to stored values and notes whether an
// integral value could not be held exactly as float32.
type converter struct {
	slope, inter float64
	scaled       bool
	lossy        bool
}

func newConverter(h *header) *converter {
	c := &converter{slope: float64(h.SclSlope), inter: float64(h.SclInter)}
	c.scaled = c.slope != 0 && !(c.slope == 1 && c.inter == 0)
	return c
}

func (c *converter) value(f float64) float32 {
	if c.scaled {
		f = f*c.slope + c.inter
	}
	v := float32(f)
	if f == math.Trunc(f) && float64(v) != f {
		c.lossy = true
	}
	return v
}

// fastPath reports whether the nifti package decodes this layout itself.
func fastPath(h *header, order binary.ByteOrder) bool {
	if order != binary.LittleEndian {
		return false
	}
	switch h.DataType {
	case dtUint8, dtUint16, dtFloat32:
		return true
	}
	return false
}

type stored interface {
	uint8 | int8 | uint16 | int16 | uint32 | int32 | float32 | float64
}

func decodeAs[T stored](r io.Reader, order binary.ByteOrder, c *converter, out []float32) error {
	const chunk = 1 << 16
	buf := make([]T, chunk)
	for len(out) > 0 {
		n := len(buf)
		if len(out) < n {
			n = len(out)
		}
		if err := binary.Read(r, order, buf[:n]); err != nil {
			return err
		}
		for i, x := range buf[:n] {
			out[i] = c.value(float64(x))
		}
		out = out[n:]
	}
	return nil
}

// readVoxels decodes n voxels starting at the header's vox_offset.
func readVoxels(path string, h *header, order binary.ByteOrder, n int, c *converter) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if isGzip(path) {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, &FormatError{path, fmt.Sprintf("bad gzip stream: %v", err)}
		}
		defer gz.Close()
		r = gz
	}
	if _, err := io.CopyN(io.Discard, r, int64(h.VoxOffset)); err != nil {
		return nil, &FormatError{path, fmt.Sprintf("short file before vox_offset: %v", err)}
	}

	out := make([]float32, n)
	switch h.DataType {
	case dtUint8:
		err = decodeAs[uint8](r, order, c, out)
	case dtInt8:
		err = decodeAs[int8](r, order, c, out)
	case dtUint16:
		err = decodeAs[uint16](r, order, c, out)
	case dtInt16:
		err = decodeAs[int16](r, order, c, out)
	case dtUint32:
		err = decodeAs[uint32](r, order, c, out)
	case dtInt32:
		err = decodeAs[int32](r, order, c, out)
	case dtFloat32:
		err = decodeAs[float32](r, order, c, out)
	case dtFloat64:
		err = decodeAs[float64](r, order, c, out)
	default:
		return nil, &FormatError{path, fmt.Sprintf("unsupported datatype %d", h.DataType)}
	}
	if err != nil {
		return nil, &FormatError{path, fmt.Sprintf("cannot load voxel data: %v", err)}
	}
	return out, nil
}
