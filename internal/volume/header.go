package volume

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
)

const (
	headerSize = 348
	voxOffset  = 352 // header + 4 byte extension flag
)

// NIfTI-1 datatype codes.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
	dtUint32  = 768
)

var magicSingleFile = [4]byte{'n', '+', '1', 0}

// header is the on-disk NIfTI-1 header.
//
// C     Go
// -------------
// int   int32
// float float32
// short int16
// char  byte
type header struct {
	SizeOfHdr          int32
	UnusedDataType     [10]byte
	UnusedDbName       [18]byte
	UnusedExtents      int32
	UnusedSessionError int16
	UnusedRegular      byte
	DimInfo            byte

	Dim        [8]int16
	IntentP1   float32
	IntentP2   float32
	IntentP3   float32
	IntentCode int16
	DataType   int16
	BitPix     int16
	SliceStart int16
	PixDim     [8]float32
	VoxOffset  float32
	SclSlope   float32
	SclInter   float32
	SliceEnd   int16
	SliceCode  byte
	XYZTUnits  byte

	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	UnusedGlmax   int32
	UnusedGlmin   int32

	Descrip [80]byte
	AuxFile [24]byte

	QFormCode int16
	SFormCode int16

	QuaternB float32
	QuaternC float32
	QuaternD float32
	QOffsetX float32
	QOffsetY float32
	QOffsetZ float32

	SRowX [4]float32
	SRowY [4]float32
	SRowZ [4]float32

	IntentName [16]byte
	Magic      [4]byte
}

func isGzip(path string) bool {
	return strings.HasSuffix(path, ".nii.gz")
}

// readHeader decodes and validates the header of the NIfTI-1 file at path and reports the
// byte order of the file.
func readHeader(path string) (*header, binary.ByteOrder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if isGzip(path) {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, nil, &FormatError{path, fmt.Sprintf("bad gzip stream: %v", err)}
		}
		defer gz.Close()
		r = gz
	}

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, &FormatError{path, fmt.Sprintf("short header: %v", err)}
	}

	// sizeof_hdr is always 348, which also tells us the byte order.
	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(buf) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(buf) == headerSize:
		order = binary.BigEndian
	default:
		return nil, nil, &FormatError{path, "not a NIfTI-1 header"}
	}

	h := new(header)
	if err := binary.Read(bytes.NewReader(buf), order, h); err != nil {
		return nil, nil, &FormatError{path, fmt.Sprintf("cannot decode header: %v", err)}
	}
	if err := h.validate(); err != nil {
		return nil, nil, &FormatError{path, err.Error()}
	}
	return h, order, nil
}

func (h *header) validate() error {
	if h.Magic != magicSingleFile {
		return fmt.Errorf("invalid file magic %q; header and data must share one file", h.Magic[:3])
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return fmt.Errorf("dim[0] = %d not in range [1, 7]", h.Dim[0])
	}
	for i := 1; i <= int(h.Dim[0]); i++ {
		if h.Dim[i] < 1 {
			return fmt.Errorf("dim[%d] = %d", i, h.Dim[i])
		}
	}
	size := voxelSize(h.DataType)
	if size == 0 {
		return fmt.Errorf("unsupported datatype %d", h.DataType)
	}
	if int(h.BitPix) != 8*size {
		return fmt.Errorf("bitpix %d does not match datatype %d", h.BitPix, h.DataType)
	}
	if h.VoxOffset < voxOffset || float64(h.VoxOffset) != math.Trunc(float64(h.VoxOffset)) {
		return fmt.Errorf("bad vox_offset %g", h.VoxOffset)
	}
	return nil
}

// voxelSize is the on-disk size in bytes of one voxel, 0 for unsupported datatypes.
func voxelSize(dataType int16) int {
	switch dataType {
	case dtUint8, dtInt8:
		return 1
	case dtInt16, dtUint16:
		return 2
	case dtInt32, dtUint32, dtFloat32:
		return 4
	case dtFloat64:
		return 8
	}
	return 0
}

func (h *header) dims() []int {
	n := int(h.Dim[0])
	dims := make([]int, n)
	for i := 0; i < n; i++ {
		dims[i] = int(h.Dim[i+1])
	}
	return dims
}

// newHeader returns a float32 header for dims, keeping the spatial metadata of tmpl when given.
func newHeader(dims []int, tmpl *header) *header {
	h := new(header)
	if tmpl != nil {
		*h = *tmpl
	} else {
		for i := range h.PixDim {
			h.PixDim[i] = 1
		}
	}
	h.SizeOfHdr = headerSize
	h.Dim = [8]int16{}
	h.Dim[0] = int16(len(dims))
	for i, d := range dims {
		h.Dim[i+1] = int16(d)
	}
	h.DataType = dtFloat32
	h.BitPix = 32
	h.VoxOffset = voxOffset
	h.SclSlope = 1
	h.SclInter = 0
	h.CalMax, h.CalMin = 0, 0
	h.Magic = magicSingleFile
	return h
}
