// Package flow turns decoded frame images into float tensors.
//
// Optical flow fields are stored on disk as 8-bit single channel images whose
// pixel values linearly quantize the flow component in [-bound, +bound]. The
// encoder restores or rescales those values (see EncodingMode); the decoder
// and transformer are the default collaborators used by the prefetcher to read
// frames and write them into batch slots.
package flow

import (
	"errors"
	"fmt"
)

// ErrDecode is matched (errors.Is) by every DecodeError.
var ErrDecode = errors.New("decode error")

// DecodeError reports a frame that could not be read or decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// RawImage is a decoded 8-bit image with interleaved channels (HWC).
type RawImage struct {
	Rows     int
	Cols     int
	Channels int
	Pix      []uint8
}

// At returns the value of channel c at (h, w).
func (r *RawImage) At(h, w, c int) uint8 {
	return r.Pix[(h*r.Cols+w)*r.Channels+c]
}

// Datum is a planar (CHW) float image, the input of a Transformer.
type Datum struct {
	Channels int
	Rows     int
	Cols     int
	Data     []float32
}

// DatumFromRaw converts an 8-bit image to a planar float datum without
// changing any value.
func DatumFromRaw(img *RawImage) *Datum {
	d := &Datum{
		Channels: img.Channels,
		Rows:     img.Rows,
		Cols:     img.Cols,
		Data:     make([]float32, img.Channels*img.Rows*img.Cols),
	}
	plane := img.Rows * img.Cols
	for h := 0; h < img.Rows; h++ {
		for w := 0; w < img.Cols; w++ {
			for c := 0; c < img.Channels; c++ {
				d.Data[c*plane+h*img.Cols+w] = float32(img.At(h, w, c))
			}
		}
	}
	return d
}
