package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
)

// Image is the result of one render: a tightly-packed float32 pixel grid of
// exactly the requested size, Channels values per pixel, rows top to bottom
// with no padding.
type Image struct {
	Width    int
	Height   int
	Channels int

	// Pix holds Width*Height*Channels values in row-major order.
	Pix []float32
}

// NewImage allocates a zero-filled image.
//
// Parameters:
//   - width: pixel columns, must be positive
//   - height: pixel rows, must be positive
//   - channels: values per pixel (1, 2, or 4)
//
// Returns:
//   - *Image: the allocated image
func NewImage(width, height, channels int) *Image {
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float32, width*height*channels),
	}
}

// At returns the pixel at (x, y) as a slice aliasing Pix, length Channels.
//
// Parameters:
//   - x: column, 0 ≤ x < Width
//   - y: row, 0 ≤ y < Height
//
// Returns:
//   - []float32: the pixel's channel values, shared with Pix
func (img *Image) At(x, y int) []float32 {
	base := (y*img.Width + x) * img.Channels
	return img.Pix[base : base+img.Channels]
}

// Channel extracts one channel as a Width*Height plane.
//
// Parameters:
//   - i: channel index, 0 ≤ i < Channels
//
// Returns:
//   - []float32: a freshly-allocated plane in row-major order
func (img *Image) Channel(i int) []float32 {
	plane := make([]float32, img.Width*img.Height)
	for p := range plane {
		plane[p] = img.Pix[p*img.Channels+i]
	}
	return plane
}

// EncodePNG writes the image as an 8-bit PNG, clamping each channel to
// [0, 1]. One channel encodes as grayscale; two and four channel images
// encode as RGBA with missing channels zeroed and alpha forced opaque for
// the two-channel case.
//
// Parameters:
//   - w: destination writer
//
// Returns:
//   - error: encoding or write failure
func (img *Image) EncodePNG(w io.Writer) error {
	bounds := image.Rect(0, 0, img.Width, img.Height)

	switch img.Channels {
	case 1:
		out := image.NewGray(bounds)
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				out.SetGray(x, y, color.Gray{Y: clampByte(img.At(x, y)[0])})
			}
		}
		return png.Encode(w, out)
	case 2, 4:
		out := image.NewRGBA(bounds)
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				px := img.At(x, y)
				c := color.RGBA{A: 0xFF}
				c.R = clampByte(px[0])
				c.G = clampByte(px[1])
				if img.Channels == 4 {
					c.B = clampByte(px[2])
					c.A = clampByte(px[3])
				}
				out.SetRGBA(x, y, c)
			}
		}
		return png.Encode(w, out)
	default:
		return fmt.Errorf("cannot encode %d-channel image as PNG", img.Channels)
	}
}

func clampByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xFF
	default:
		return uint8(v*255 + 0.5)
	}
}
