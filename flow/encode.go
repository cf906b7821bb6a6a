package flow

import (
	"fmt"
	"math"
)

// EncodingMode selects how a frame is turned into tensor values.
type EncodingMode int

const (
	// Passthrough hands the decoded image to the transformer unchanged
	// (read_mode 0). Encode does not handle it.
	Passthrough EncodingMode = 0
	// CenteredByteScale maps v to min(128*v/bound + 128, 255), floored at 0
	// (read_mode 2).
	CenteredByteScale EncodingMode = 2
	// MinMaxByteScale stretches the frame's own value range to [0, 255]
	// (read_mode 3).
	MinMaxByteScale EncodingMode = 3
	// RawFloat emits the restored flow values (read_mode 4).
	RawFloat EncodingMode = 4
	// ClampedByteScale clamps to [-bound, bound] and rescales to [0, 255]
	// (read_mode 5).
	ClampedByteScale EncodingMode = 5
)

// ParseReadMode maps the numeric read_mode configuration value to a mode.
func ParseReadMode(readMode int) (EncodingMode, error) {
	switch m := EncodingMode(readMode); m {
	case Passthrough, CenteredByteScale, MinMaxByteScale, RawFloat, ClampedByteScale:
		return m, nil
	}
	return Passthrough, fmt.Errorf("unsupported read_mode %d", readMode)
}

func (m EncodingMode) String() string {
	switch m {
	case Passthrough:
		return "passthrough"
	case CenteredByteScale:
		return "centered-byte-scale"
	case MinMaxByteScale:
		return "minmax-byte-scale"
	case RawFloat:
		return "raw-float"
	case ClampedByteScale:
		return "clamped-byte-scale"
	}
	return fmt.Sprintf("EncodingMode(%d)", int(m))
}

// Encode restores a single channel flow image to [-bound, bound], negating
// the values when mirror is set, and then applies mode. The output keeps the
// image's rows and columns.
func Encode(img *RawImage, bound float32, mirror bool, mode EncodingMode) (*Datum, error) {
	if img.Channels != 1 {
		return nil, fmt.Errorf("flow encode: expected 1 channel, got %d", img.Channels)
	}
	if mode == Passthrough {
		return nil, fmt.Errorf("flow encode: mode %v is handled by the transformer", mode)
	}

	lo, hi := -bound, bound
	n := img.Rows * img.Cols
	data := make([]float32, n)
	for i := 0; i < n; i++ {
		v := float32(img.Pix[i])/255*(hi-lo) + lo
		if mirror {
			v = -v
		}
		data[i] = v
	}

	switch mode {
	case RawFloat:
	case ClampedByteScale:
		for i, v := range data {
			switch {
			case v > hi:
				data[i] = 255
			case v < lo:
				data[i] = 0
			default:
				data[i] = min((v-lo)/(hi-lo)*255, 255)
			}
		}
	case CenteredByteScale:
		for i, v := range data {
			data[i] = max(min(128*v/bound+128, 255), 0)
		}
	case MinMaxByteScale:
		vmin, vmax := float32(math.Inf(1)), float32(math.Inf(-1))
		for _, v := range data {
			vmin = min(vmin, v)
			vmax = max(vmax, v)
		}
		for i, v := range data {
			if vmax > vmin {
				data[i] = (v - vmin) / (vmax - vmin) * 255
			} else {
				data[i] = 0
			}
		}
	default:
		return nil, fmt.Errorf("flow encode: unknown mode %v", mode)
	}

	return &Datum{Channels: 1, Rows: img.Rows, Cols: img.Cols, Data: data}, nil
}
