package volume

import "fmt"

// FormatError reports a file that is not a readable NIfTI-1 volume.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// ShapeError reports a volume whose rank does not fit its role.
type ShapeError struct {
	Path string
	Dims []int
	Want int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: volume must be %dD; input has %d dimension(s) %v", e.Path, e.Want, len(e.Dims), e.Dims)
}

// ShapeMismatchError reports two volumes that must share a spatial shape but do not.
type ShapeMismatchError struct {
	What string
	Got  []int
	Want []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: shape %v does not match %v", e.What, e.Got, e.Want)
}
