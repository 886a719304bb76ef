package entity

import (
	"fmt"
	"math"
)

// Frame is an immutable grayscale raster with a monotonically increasing
// sequence index. Pixels are row-major, one byte per pixel.
type Frame struct {
	Index  int
	Width  int
	Height int
	Pix    []uint8
}

// NewFrame validates dimensions against the pixel buffer and wraps it.
// The buffer is not copied; callers must not mutate it afterwards.
func NewFrame(index, width, height int, pix []uint8) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frame %d: invalid dimensions %dx%d", index, width, height)
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("frame %d: pixel buffer length %d does not match %dx%d", index, len(pix), width, height)
	}
	return &Frame{Index: index, Width: width, Height: height, Pix: pix}, nil
}

func (f *Frame) At(x, y int) uint8 {
	return f.Pix[y*f.Width+x]
}

// Diagonal is the frame diagonal in pixels, used to normalize translation
// magnitudes so scores are resolution independent.
func (f *Frame) Diagonal() float64 {
	return math.Hypot(float64(f.Width), float64(f.Height))
}

// SameSize reports whether two frames have matching dimensions. Frame pairs
// with mismatched dimensions cannot be compared.
func (f *Frame) SameSize(other *Frame) bool {
	return f.Width == other.Width && f.Height == other.Height
}
