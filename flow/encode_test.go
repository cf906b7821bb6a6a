package flow

import (
	"math"
	"testing"
)

func grayImage(rows, cols int, pix ...uint8) *RawImage {
	return &RawImage{Rows: rows, Cols: cols, Channels: 1, Pix: pix}
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestEncode_ClampedByteScale(t *testing.T) {
	img := grayImage(1, 3, 0, 255, 128)
	d, err := Encode(img, 20, false, ClampedByteScale)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if d.Rows != 1 || d.Cols != 3 || len(d.Data) != 3 {
		t.Fatalf("unexpected output dims: %dx%d len=%d", d.Rows, d.Cols, len(d.Data))
	}
	if d.Data[0] != 0 {
		t.Fatalf("pixel 0 -> %v, want 0", d.Data[0])
	}
	if !approxEqual(float64(d.Data[1]), 255, 1e-3) {
		t.Fatalf("pixel 255 -> %v, want 255", d.Data[1])
	}
	if !approxEqual(float64(d.Data[2]), 127.5, 1) {
		t.Fatalf("pixel 128 -> %v, want ~127.5", d.Data[2])
	}
	for _, v := range d.Data {
		if v < 0 || v > 255 {
			t.Fatalf("value %v out of [0,255]", v)
		}
	}
}

func TestEncode_RawFloat(t *testing.T) {
	img := grayImage(2, 2, 0, 255, 51, 204)
	d, err := Encode(img, 10, false, RawFloat)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	want := []float64{-10, 10, -6, 6}
	for i, w := range want {
		if !approxEqual(float64(d.Data[i]), w, 1e-4) {
			t.Fatalf("data[%d] = %v, want %v", i, d.Data[i], w)
		}
	}

	mirrored, err := Encode(img, 10, true, RawFloat)
	if err != nil {
		t.Fatalf("Encode mirror error: %v", err)
	}
	for i := range want {
		if mirrored.Data[i] != -d.Data[i] {
			t.Fatalf("mirrored data[%d] = %v, want %v", i, mirrored.Data[i], -d.Data[i])
		}
	}
}

func TestEncode_MirrorClamped(t *testing.T) {
	// Mirroring flips the value before rescaling, so 0 becomes 255.
	d, err := Encode(grayImage(1, 1, 0), 20, true, ClampedByteScale)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !approxEqual(float64(d.Data[0]), 255, 1e-3) {
		t.Fatalf("mirrored 0 -> %v, want 255", d.Data[0])
	}
}

func TestEncode_CenteredAndMinMax(t *testing.T) {
	img := grayImage(1, 3, 0, 255, 51)

	c, err := Encode(img, 10, false, CenteredByteScale)
	if err != nil {
		t.Fatalf("centered: %v", err)
	}
	if c.Data[0] != 0 || c.Data[1] != 255 {
		t.Fatalf("centered extremes = %v, %v", c.Data[0], c.Data[1])
	}
	if !approxEqual(float64(c.Data[2]), 128-0.6*128, 1e-3) {
		t.Fatalf("centered mid = %v", c.Data[2])
	}

	m, err := Encode(img, 10, false, MinMaxByteScale)
	if err != nil {
		t.Fatalf("minmax: %v", err)
	}
	if m.Data[0] != 0 || !approxEqual(float64(m.Data[1]), 255, 1e-3) {
		t.Fatalf("minmax extremes = %v, %v", m.Data[0], m.Data[1])
	}

	flat, err := Encode(grayImage(1, 2, 9, 9), 10, false, MinMaxByteScale)
	if err != nil {
		t.Fatalf("minmax flat: %v", err)
	}
	if flat.Data[0] != 0 || flat.Data[1] != 0 {
		t.Fatalf("constant frame should map to 0, got %v", flat.Data)
	}
}

func TestEncode_Errors(t *testing.T) {
	rgb := &RawImage{Rows: 1, Cols: 1, Channels: 3, Pix: []uint8{1, 2, 3}}
	if _, err := Encode(rgb, 20, false, RawFloat); err == nil {
		t.Fatalf("expected error for multi-channel input")
	}
	if _, err := Encode(grayImage(1, 1, 0), 20, false, Passthrough); err == nil {
		t.Fatalf("expected error for passthrough mode")
	}
}

func TestParseReadMode(t *testing.T) {
	tests := map[int]EncodingMode{
		0: Passthrough,
		2: CenteredByteScale,
		3: MinMaxByteScale,
		4: RawFloat,
		5: ClampedByteScale,
	}
	for in, want := range tests {
		got, err := ParseReadMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseReadMode(%d) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, bad := range []int{1, 6, -1} {
		if _, err := ParseReadMode(bad); err == nil {
			t.Fatalf("ParseReadMode(%d) expected error", bad)
		}
	}
}
