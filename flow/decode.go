package flow

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decoder reads one frame image. When height and width are both positive the
// image is resized to that size. color selects 3 channel RGB output instead of
// 1 channel grayscale.
type Decoder interface {
	Decode(ctx context.Context, path string, height, width int, color bool) (*RawImage, error)
}

// ImageDecoder decodes PNG, JPEG, GIF, BMP, TIFF and WebP files from disk
// and resizes with bilinear interpolation.
type ImageDecoder struct{}

func (ImageDecoder) Decode(ctx context.Context, path string, height, width int, color bool) (*RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	// Decoding is not interruptible; drop the result if the deadline passed.
	if err := ctx.Err(); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	b := src.Bounds()
	rows, cols := b.Dy(), b.Dx()
	if height > 0 && width > 0 {
		rows, cols = height, width
	}
	rect := image.Rect(0, 0, cols, rows)

	if !color {
		dst := image.NewGray(rect)
		render(dst, src)
		return &RawImage{Rows: rows, Cols: cols, Channels: 1, Pix: dst.Pix}, nil
	}

	dst := image.NewRGBA(rect)
	render(dst, src)
	pix := make([]uint8, rows*cols*3)
	for i, j := 0, 0; i < len(dst.Pix); i, j = i+4, j+3 {
		copy(pix[j:j+3], dst.Pix[i:i+3])
	}
	return &RawImage{Rows: rows, Cols: cols, Channels: 3, Pix: pix}, nil
}

func render(dst draw.Image, src image.Image) {
	if dst.Bounds().Size() == src.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
		return
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
}
