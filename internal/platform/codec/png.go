package codec

import (
	"fmt"
	"image"
	"image/png"
	"io"
)

// PNG is accepted for uploads and used for template assets. Output is always
// lossless; the Lossless flag only raises the compression effort.
type PNG struct{}

func (PNG) ContentType() string {
	return ContentTypePNG
}

func (PNG) DecodeConfig(r io.Reader) (image.Config, error) {
	cfg, err := png.DecodeConfig(r)
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	return cfg, nil
}

func (PNG) Decode(r io.Reader) (image.Image, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	return img, nil
}

func (PNG) Encode(w io.Writer, img image.Image, opts EncodeOptions) error {
	encoder := &png.Encoder{CompressionLevel: png.DefaultCompression}
	if opts.Lossless {
		encoder.CompressionLevel = png.BestCompression
	}

	if err := encoder.Encode(w, img); err != nil {
		return fmt.Errorf("%w: png: %v", ErrEncodeFailure, err)
	}
	return nil
}
