package flow

import "testing"

// seqDatum builds a datum whose values are 0, 1, 2, ... in CHW order.
func seqDatum(c, h, w int) *Datum {
	d := &Datum{Channels: c, Rows: h, Cols: w, Data: make([]float32, c*h*w)}
	for i := range d.Data {
		d.Data[i] = float32(i)
	}
	return d
}

func TestPixelTransformer_Identity(t *testing.T) {
	src := seqDatum(2, 2, 3)
	dst := make([]float32, len(src.Data))
	tr := &PixelTransformer{}
	if err := tr.Transform(src, dst, TransformParams{}); err != nil {
		t.Fatalf("Transform error: %v", err)
	}
	for i := range dst {
		if dst[i] != src.Data[i] {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[i], src.Data[i])
		}
	}
}

func TestPixelTransformer_CropMirror(t *testing.T) {
	// 1 channel 3x3:
	// 0 1 2
	// 3 4 5
	// 6 7 8
	src := seqDatum(1, 3, 3)
	dst := make([]float32, 4)
	tr := &PixelTransformer{}
	err := tr.Transform(src, dst, TransformParams{CropSize: 2, HOffset: 1, WOffset: 1, Mirror: true})
	if err != nil {
		t.Fatalf("Transform error: %v", err)
	}
	want := []float32{5, 4, 8, 7}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst = %v, want %v", dst, want)
		}
	}
}

func TestPixelTransformer_MeanScaleColour(t *testing.T) {
	src := seqDatum(2, 1, 2) // channel 0: 0 1, channel 1: 2 3
	dst := make([]float32, 4)
	tr := &PixelTransformer{MeanValues: []float32{1, 2}, Scale: 2}
	err := tr.Transform(src, dst, TransformParams{ChannelScale: []float32{1, 0.5}})
	if err != nil {
		t.Fatalf("Transform error: %v", err)
	}
	want := []float32{-2, 0, 0, 1}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst = %v, want %v", dst, want)
		}
	}
}

func TestPixelTransformer_Errors(t *testing.T) {
	src := seqDatum(1, 3, 3)
	tr := &PixelTransformer{}
	if err := tr.Transform(src, make([]float32, 4), TransformParams{CropSize: 2, HOffset: 2}); err == nil {
		t.Fatalf("expected error for crop outside frame")
	}
	if err := tr.Transform(src, make([]float32, 5), TransformParams{}); err == nil {
		t.Fatalf("expected error for wrong destination size")
	}
	if err := tr.Transform(src, make([]float32, 9), TransformParams{ChannelScale: []float32{1, 1}}); err == nil {
		t.Fatalf("expected error for channel scale mismatch")
	}
}

func TestDatumFromRaw(t *testing.T) {
	img := &RawImage{Rows: 1, Cols: 2, Channels: 3, Pix: []uint8{1, 2, 3, 4, 5, 6}}
	d := DatumFromRaw(img)
	want := []float32{1, 4, 2, 5, 3, 6}
	for i := range want {
		if d.Data[i] != want[i] {
			t.Fatalf("planar data = %v, want %v", d.Data, want)
		}
	}
}
