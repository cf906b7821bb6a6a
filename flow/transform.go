package flow

import "fmt"

// TransformParams controls how one datum is written into its batch slot.
type TransformParams struct {
	// CropSize is the side of the square crop; 0 keeps the full frame.
	CropSize int
	// HOffset and WOffset locate the crop inside the frame.
	HOffset int
	WOffset int
	// Mirror flips the output horizontally.
	Mirror bool
	// ChannelScale multiplies each channel (colour augmentation). Nil means 1.
	ChannelScale []float32
}

// Transformer writes a datum into a planar destination slot.
type Transformer interface {
	Transform(src *Datum, dst []float32, p TransformParams) error
}

// PixelTransformer is the default Transformer: crop, horizontal mirror, mean
// subtraction, scaling and per channel colour factors, in that order.
type PixelTransformer struct {
	// MeanValues is subtracted per channel. A single value applies to all
	// channels; nil subtracts nothing.
	MeanValues []float32
	// Scale multiplies every value after mean subtraction. 0 means 1.
	Scale float32
}

// OutputSize returns the spatial size of the transformed datum.
func OutputSize(rows, cols, cropSize int) (int, int) {
	if cropSize > 0 {
		return cropSize, cropSize
	}
	return rows, cols
}

func (t *PixelTransformer) Transform(src *Datum, dst []float32, p TransformParams) error {
	outH, outW := OutputSize(src.Rows, src.Cols, p.CropSize)
	hOff, wOff := 0, 0
	if p.CropSize > 0 {
		hOff, wOff = p.HOffset, p.WOffset
		if hOff < 0 || wOff < 0 || hOff+outH > src.Rows || wOff+outW > src.Cols {
			return fmt.Errorf("crop %d at (%d,%d) does not fit %dx%d frame", p.CropSize, hOff, wOff, src.Rows, src.Cols)
		}
	}
	if want := src.Channels * outH * outW; len(dst) != want {
		return fmt.Errorf("destination holds %d values, transform produces %d", len(dst), want)
	}
	if p.ChannelScale != nil && len(p.ChannelScale) != src.Channels {
		return fmt.Errorf("%d channel scales for %d channels", len(p.ChannelScale), src.Channels)
	}

	scale := t.Scale
	if scale == 0 {
		scale = 1
	}
	inPlane := src.Rows * src.Cols
	outPlane := outH * outW
	for c := 0; c < src.Channels; c++ {
		mean := t.mean(c)
		factor := scale
		if p.ChannelScale != nil {
			factor *= p.ChannelScale[c]
		}
		for h := 0; h < outH; h++ {
			srcRow := c*inPlane + (h+hOff)*src.Cols + wOff
			dstRow := c*outPlane + h*outW
			for w := 0; w < outW; w++ {
				dw := w
				if p.Mirror {
					dw = outW - 1 - w
				}
				dst[dstRow+dw] = (src.Data[srcRow+w] - mean) * factor
			}
		}
	}
	return nil
}

func (t *PixelTransformer) mean(c int) float32 {
	switch len(t.MeanValues) {
	case 0:
		return 0
	case 1:
		return t.MeanValues[0]
	}
	return t.MeanValues[c]
}
