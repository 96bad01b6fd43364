// Package placeholder computes the compact preview string stored with every
// poster: a 4x7 blurhash body followed by an optional "/" and a base83 accent
// color taken from the poster palette.
package placeholder

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/bbrks/go-blurhash"
	"github.com/bbrks/go-blurhash/base83"
)

const (
	XComponents = 4
	YComponents = 7

	// BodyLength is 1 size flag + 1 max AC + 4 DC + 2 per AC component
	BodyLength   = 4 + 2 + 2*(XComponents*YComponents-1)
	AccentLength = 4

	// LegacyVersion placeholders carry no explicit accent
	LegacyVersion = 1
	// Version is the canonical format: body with optional "/" accent suffix
	Version = 2

	separator = "/"
)

// BrandAccent is rendered when a placeholder has no accent suffix
var BrandAccent = color.RGBA{R: 241, G: 143, B: 243, A: 0xff}

var ErrInvalidPlaceholder = errors.New("invalid placeholder")

// Placeholder is the decoded form of a stored placeholder string
type Placeholder struct {
	Body   string
	Accent *color.RGBA
	// Version is LegacyVersion for records imported before accents were explicit
	Version int
}

// String renders the wire format
func (p Placeholder) String() string {
	if p.Accent == nil {
		return p.Body
	}
	suffix, err := encodeAccent(*p.Accent)
	if err != nil {
		return p.Body
	}
	return p.Body + separator + suffix
}

// AccentOrBrand returns the accent color, falling back to BrandAccent
func (p Placeholder) AccentOrBrand() color.RGBA {
	if p.Accent == nil {
		return BrandAccent
	}
	return *p.Accent
}

// HasAccent reports whether the palette yielded an accent color
func (p Placeholder) HasAccent() bool {
	return p.Accent != nil
}

// Encode computes the placeholder of a resized poster. Palette failures are
// not errors: the placeholder is returned without an accent.
func Encode(img image.Image) (Placeholder, error) {
	body, err := blurhash.Encode(XComponents, YComponents, img)
	if err != nil {
		return Placeholder{}, fmt.Errorf("failed to encode blurhash: %w", err)
	}

	p := Placeholder{Body: body, Version: Version}
	if accent, err := Accent(img); err == nil {
		p.Accent = &accent
	}
	return p, nil
}

// Parse decodes a canonical placeholder string
func Parse(s string) (Placeholder, error) {
	body, suffix, hasSuffix := strings.Cut(s, separator)
	if err := validateBody(body); err != nil {
		return Placeholder{}, err
	}

	p := Placeholder{Body: body, Version: Version}
	if !hasSuffix {
		return p, nil
	}

	accent, err := decodeAccent(suffix)
	if err != nil {
		return Placeholder{}, err
	}
	p.Accent = &accent
	return p, nil
}

// LegacyAccent reads the accent the way version 1 readers did: the DC term of
// the blurhash body, characters 2 through 6
func LegacyAccent(s string) (color.RGBA, error) {
	body, _, _ := strings.Cut(s, separator)
	if len(body) < 6 {
		return color.RGBA{}, fmt.Errorf("%w: body too short for legacy accent", ErrInvalidPlaceholder)
	}
	return decodeAccent(body[2:6])
}

// FromLegacy converts a version 1 string without access to the source image.
// The implicit DC accent becomes an explicit suffix so the result renders the
// same color under the canonical reader.
func FromLegacy(s string) (Placeholder, error) {
	if strings.Contains(s, separator) {
		return Parse(s)
	}
	p, err := Parse(s)
	if err != nil {
		return Placeholder{}, err
	}
	accent, err := LegacyAccent(s)
	if err != nil {
		return Placeholder{}, err
	}
	p.Accent = &accent
	return p, nil
}

func validateBody(body string) error {
	if len(body) != BodyLength {
		return fmt.Errorf("%w: body length %d, expected %d", ErrInvalidPlaceholder, len(body), BodyLength)
	}
	x, y, err := blurhash.Components(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlaceholder, err)
	}
	if x != XComponents || y != YComponents {
		return fmt.Errorf("%w: %dx%d components", ErrInvalidPlaceholder, x, y)
	}
	if _, err := base83.Decode(body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlaceholder, err)
	}
	return nil
}

func encodeAccent(c color.RGBA) (string, error) {
	return base83.Encode(int(c.R)<<16|int(c.G)<<8|int(c.B), AccentLength)
}

func decodeAccent(s string) (color.RGBA, error) {
	if len(s) != AccentLength {
		return color.RGBA{}, fmt.Errorf("%w: accent length %d", ErrInvalidPlaceholder, len(s))
	}
	v, err := base83.Decode(s)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: %v", ErrInvalidPlaceholder, err)
	}
	if v > 0xffffff {
		return color.RGBA{}, fmt.Errorf("%w: accent out of range", ErrInvalidPlaceholder)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
