package prefetch

import (
	"context"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Dataset exposes an Engine through gomlx's train.Dataset interface. Every
// Yield copies one prefetched batch into fresh tensors, so the engine can
// reuse its buffer right away.
//
// The engine must be started before the first Yield. The stream never ends:
// the manifest wraps around, so Reset has nothing to do.
type Dataset struct {
	engine *Engine
	ctx    context.Context
}

// NewDataset wraps e. ctx bounds every wait inside Yield.
func NewDataset(ctx context.Context, e *Engine) *Dataset {
	return &Dataset{engine: e, ctx: ctx}
}

// Name returns the name of the dataset
func (d *Dataset) Name() string {
	return "FlowVideoData"
}

// Yield returns the next batch: inputs hold the [N,C,H,W] data tensor and
// labels the [N,2] label tensor. spec is the batch's sequence number.
func (d *Dataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	b, err := d.engine.Next(d.ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	data, lab := b.ToGomlxTensors()
	return b.Seq, []*tensors.Tensor{data}, []*tensors.Tensor{lab}, nil
}

// Reset is a no-op; see Dataset.
func (d *Dataset) Reset() {}
