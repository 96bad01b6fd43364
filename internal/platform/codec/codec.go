// Package codec decodes uploaded posters and encodes derivative artifacts.
//
// Each supported format is a Codec variant; callers resolve one from the
// declared content type with ForContentType and never touch the underlying
// third-party encoders directly.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"strings"

	"golang.org/x/image/draw"
)

const (
	ContentTypeWebP = "image/webp"
	ContentTypePNG  = "image/png"
)

var (
	// ErrUnsupportedFormat is returned for any declared type other than WebP or PNG
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrCorruptImage is returned when bytes cannot be decoded as the declared format
	ErrCorruptImage = errors.New("corrupt image")

	// ErrEncodeFailure is returned when an artifact cannot be encoded
	ErrEncodeFailure = errors.New("failed to encode image")
)

// EncodeOptions controls the output of Codec.Encode
type EncodeOptions struct {
	Lossless bool
	// Quality is in [0, 100] and ignored for lossless output
	Quality float32
}

// Lossless is the option set used for full-resolution artifacts
func Lossless() EncodeOptions {
	return EncodeOptions{Lossless: true}
}

// Lossy returns an option set with the given quality
func Lossy(quality float32) EncodeOptions {
	return EncodeOptions{Quality: quality}
}

// Codec reads and writes one raster format
type Codec interface {
	ContentType() string
	// DecodeConfig reads the dimensions without decoding pixel data
	DecodeConfig(r io.Reader) (image.Config, error)
	Decode(r io.Reader) (image.Image, error)
	Encode(w io.Writer, img image.Image, opts EncodeOptions) error
}

var registry = map[string]Codec{
	ContentTypeWebP: WebP{},
	ContentTypePNG:  PNG{},
}

// ForContentType resolves the codec for a declared content type. Parameters
// such as "; charset=binary" are ignored.
func ForContentType(contentType string) (Codec, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}

	c, ok := registry[strings.ToLower(mediaType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}
	return c, nil
}

// SupportedContentTypes lists the accepted upload types
func SupportedContentTypes() []string {
	return []string{ContentTypeWebP, ContentTypePNG}
}

// DecodeBytes validates the magic number against the declared type, checks
// the header dimensions against maxPixels and decodes. A maxPixels of zero
// or less disables the dimension check.
func DecodeBytes(c Codec, data []byte, maxPixels int) (image.Image, error) {
	if err := validateMagicNumber(data, c.ContentType()); err != nil {
		return nil, err
	}

	cfg, err := c.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrCorruptImage, cfg.Width, cfg.Height)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds the %d pixel limit", ErrCorruptImage, cfg.Width, cfg.Height, maxPixels)
	}

	return c.Decode(bytes.NewReader(data))
}

// ToRGB flattens any decoded image into an opaque NRGBA buffer. Alpha is
// dropped, not composited, matching how the pipeline treats posters as RGB.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		// straight copy keeps color channels of transparent pixels
		for y := 0; y < b.Dy(); y++ {
			from := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()*4], src.Pix[from:from+b.Dx()*4])
		}
	} else {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}

	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// validateMagicNumber checks the file signature against the declared type
func validateMagicNumber(header []byte, contentType string) error {
	if len(header) < 12 {
		return fmt.Errorf("%w: file too small to validate", ErrCorruptImage)
	}

	switch contentType {
	case ContentTypePNG:
		if !bytes.HasPrefix(header, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
			return fmt.Errorf("%w: missing PNG signature", ErrCorruptImage)
		}
	case ContentTypeWebP:
		// RIFF container with WEBP form type at offset 8
		if !bytes.HasPrefix(header, []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WEBP")) {
			return fmt.Errorf("%w: missing WebP signature", ErrCorruptImage)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}

	return nil
}
