// Package presenter composes the social preview image of a series: the
// poster thumbnail on a branded template with the title and counts drawn
// next to it.
package presenter

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"

	"poster-pipeline/internal/config"
	"poster-pipeline/internal/placeholder"
	"poster-pipeline/internal/platform/codec"
)

// Built-in template size, the usual Open Graph card
const (
	DefaultTemplateWidth  = 1200
	DefaultTemplateHeight = 630
)

var (
	ErrFontLoad    = errors.New("failed to load presenter font")
	ErrPresenterIO = errors.New("presenter io failure")
)

// Assets are parsed once at startup and shared read-only by every
// composition. Faces are not safe for concurrent use, so only parsed fonts
// are kept here.
type Assets struct {
	Template  *image.NRGBA
	TitleFont *opentype.Font
	TextFont  *opentype.Font
}

// LoadAssets reads the configured template and fonts. Empty paths select
// the built-in template and Go Bold.
func LoadAssets(cfg config.PresenterConfig) (*Assets, error) {
	template := DefaultTemplate()
	if cfg.TemplatePath != "" {
		t, err := loadTemplate(cfg.TemplatePath)
		if err != nil {
			return nil, err
		}
		template = t
	}

	titleFont, err := loadFont(cfg.TitleFontPath)
	if err != nil {
		return nil, err
	}
	textFont, err := loadFont(cfg.TextFontPath)
	if err != nil {
		return nil, err
	}

	return &Assets{Template: template, TitleFont: titleFont, TextFont: textFont}, nil
}

// ParseFont parses TrueType or OpenType data
func ParseFont(data []byte) (*opentype.Font, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontLoad, err)
	}
	return f, nil
}

func loadFont(path string) (*opentype.Font, error) {
	if path == "" {
		return ParseFont(gobold.TTF)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontLoad, err)
	}
	return ParseFont(data)
}

func loadTemplate(path string) (*image.NRGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: template: %v", ErrPresenterIO, err)
	}

	var c codec.Codec = codec.PNG{}
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		c = codec.WebP{}
	}

	img, err := codec.DecodeBytes(c, data, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: template: %v", ErrPresenterIO, err)
	}
	return codec.ToRGB(img), nil
}

// DefaultTemplate renders the built-in card: a dark vertical gradient with a
// brand accent rule under the title area
func DefaultTemplate() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, DefaultTemplateWidth, DefaultTemplateHeight))

	top := color.NRGBA{R: 0x1c, G: 0x1a, B: 0x2e, A: 0xff}
	bottom := color.NRGBA{R: 0x0d, G: 0x0c, B: 0x16, A: 0xff}
	for y := 0; y < DefaultTemplateHeight; y++ {
		c := lerp(top, bottom, y, DefaultTemplateHeight-1)
		draw.Draw(img, image.Rect(0, y, DefaultTemplateWidth, y+1), image.NewUniform(c), image.Point{}, draw.Src)
	}

	rule := image.Rect(452, 312, DefaultTemplateWidth-64, 316)
	draw.Draw(img, rule, image.NewUniform(placeholder.BrandAccent), image.Point{}, draw.Src)

	return img
}

func lerp(a, b color.NRGBA, i, n int) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8((int(x)*(n-i) + int(y)*i) / n)
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}

// EncodeTemplate writes the built-in template as PNG, used by posterctl to
// export a starting point for designers
func EncodeTemplate() ([]byte, error) {
	var buf bytes.Buffer
	if err := (codec.PNG{}).Encode(&buf, DefaultTemplate(), codec.Lossless()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
