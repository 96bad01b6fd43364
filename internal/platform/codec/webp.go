package codec

import (
	"fmt"
	"image"
	"io"

	"github.com/chai2010/webp"
	xwebp "golang.org/x/image/webp"
)

// WebP decodes with golang.org/x/image/webp and encodes with libwebp
type WebP struct{}

func (WebP) ContentType() string {
	return ContentTypeWebP
}

func (WebP) DecodeConfig(r io.Reader) (image.Config, error) {
	cfg, err := xwebp.DecodeConfig(r)
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	return cfg, nil
}

func (WebP) Decode(r io.Reader) (image.Image, error) {
	img, err := xwebp.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	return img, nil
}

func (WebP) Encode(w io.Writer, img image.Image, opts EncodeOptions) error {
	options := &webp.Options{
		Lossless: opts.Lossless,
		Quality:  opts.Quality,
	}
	if opts.Lossless {
		// keep RGB values under fully transparent pixels
		options.Exact = true
	}

	if err := webp.Encode(w, img, options); err != nil {
		return fmt.Errorf("%w: webp: %v", ErrEncodeFailure, err)
	}
	return nil
}
