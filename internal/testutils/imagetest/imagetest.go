// Package imagetest builds synthetic posters for unit tests
package imagetest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
)

// Gradient returns a width x height image with a diagonal color ramp
func Gradient(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(width-1, 1)),
				G: uint8(y * 255 / max(height-1, 1)),
				B: uint8((x + y) * 255 / max(width+height-2, 1)),
				A: 0xff,
			})
		}
	}
	return img
}

// Stripes returns an image made of horizontal bands, one per color, of equal height
func Stripes(width, height int, colors ...color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		c := colors[y*len(colors)/height]
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// Solid returns a single-color image
func Solid(width, height int, c color.NRGBA) *image.NRGBA {
	return Stripes(width, height, c)
}

// Poster returns a busy test poster: four stripes of saturated colors over a gradient
func Poster(width, height int) *image.NRGBA {
	img := Gradient(width, height)
	bands := []color.NRGBA{
		{R: 200, G: 30, B: 40, A: 0xff},
		{R: 30, G: 160, B: 70, A: 0xff},
		{R: 40, G: 60, B: 190, A: 0xff},
		{R: 230, G: 200, B: 40, A: 0xff},
	}
	for y := 0; y < height; y++ {
		band := bands[y*len(bands)/height]
		for x := 0; x < width/2; x++ {
			img.SetNRGBA(x, y, band)
		}
	}
	return img
}

// EncodePNG encodes img as PNG bytes
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// EncodeWebP encodes img as lossless WebP bytes
func EncodeWebP(t testing.TB, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
		t.Fatalf("failed to encode webp: %v", err)
	}
	return buf.Bytes()
}
