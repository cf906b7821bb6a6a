package prefetch

import (
	"fmt"

	"github.com/Noofbiz/flowprefetch/flow"
)

// planShape derives the batch shape from a probe frame: every sample stacks
// FrameNum frames of PairSizeSub entries, each with the probe's channels.
func planShape(cfg Config, probe *flow.RawImage) (Shape, error) {
	if probe.Channels <= 0 || probe.Rows <= 0 || probe.Cols <= 0 {
		return Shape{}, fmt.Errorf("%w: probe frame is empty (%dx%dx%d)", ErrConfig, probe.Rows, probe.Cols, probe.Channels)
	}
	if cfg.CropSize > probe.Rows || cfg.CropSize > probe.Cols {
		return Shape{}, fmt.Errorf("%w: crop_size %d exceeds frame size %dx%d", ErrConfig, cfg.CropSize, probe.Rows, probe.Cols)
	}
	h, w := flow.OutputSize(probe.Rows, probe.Cols, cfg.CropSize)
	return Shape{
		N: cfg.BatchSize,
		C: probe.Channels * cfg.FrameNum * cfg.PairSizeSub,
		H: h,
		W: w,
	}, nil
}
