package prefetch

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Shape is the NCHW shape of a batch's data tensor.
type Shape struct {
	N int
	C int
	H int
	W int
}

// Count returns the number of values in a tensor of this shape.
func (s Shape) Count() int {
	return s.N * s.C * s.H * s.W
}

// Offset returns the flat index of item n, channel c.
func (s Shape) Offset(n, c int) int {
	return (n*s.C + c) * s.H * s.W
}

func (s Shape) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", s.N, s.C, s.H, s.W)
}

// LabelWidth is the number of label values per item: the clip length and a
// validity flag.
const LabelWidth = 2

// Batch is one prefetch buffer. Data is laid out as Shape (NCHW) and Labels
// as [N, LabelWidth]. Frames and Clips record, per item, the sampled frame
// index and the clip key path the item came from.
type Batch struct {
	Shape  Shape
	Data   []float32
	Labels []float32
	Frames []int
	Clips  []string
	// Seq numbers the batches an engine has filled, starting at 1.
	Seq uint64
}

func newBatch(shape Shape) *Batch {
	return &Batch{
		Shape:  shape,
		Data:   make([]float32, shape.Count()),
		Labels: make([]float32, shape.N*LabelWidth),
		Frames: make([]int, shape.N),
		Clips:  make([]string, shape.N),
	}
}

// Item returns the data of item n.
func (b *Batch) Item(n int) []float32 {
	size := b.Shape.C * b.Shape.H * b.Shape.W
	return b.Data[n*size : (n+1)*size]
}

// Label returns the label pair of item n.
func (b *Batch) Label(n int) (clipLength, valid float32) {
	return b.Labels[n*LabelWidth], b.Labels[n*LabelWidth+1]
}

// ToGomlxTensors copies the batch into gomlx tensors: data [N,C,H,W] and
// labels [N,2]. The tensors stay valid after the engine reuses the buffer.
func (b *Batch) ToGomlxTensors() (data *tensors.Tensor, labels *tensors.Tensor) {
	data = tensors.FromFlatDataAndDimensions(b.Data, b.Shape.N, b.Shape.C, b.Shape.H, b.Shape.W)
	labels = tensors.FromFlatDataAndDimensions(b.Labels, b.Shape.N, LabelWidth)
	return data, labels
}
