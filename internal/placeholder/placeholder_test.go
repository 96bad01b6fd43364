package placeholder

import (
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poster-pipeline/internal/testutils/imagetest"
)

func TestEncode_BodyLengthIndependentOfSize(t *testing.T) {
	if testing.Short() {
		t.Skip("encodes a 12 megapixel image")
	}

	small, err := Encode(imagetest.Poster(300, 400))
	require.NoError(t, err)
	large, err := Encode(imagetest.Poster(3000, 4000))
	require.NoError(t, err)

	assert.Len(t, small.Body, BodyLength)
	assert.Len(t, large.Body, BodyLength)
	assert.Equal(t, 60, BodyLength)
}

func TestEncode_Deterministic(t *testing.T) {
	img := imagetest.Poster(310, 468)

	first, err := Encode(img)
	require.NoError(t, err)
	second, err := Encode(img)
	require.NoError(t, err)

	assert.Equal(t, first.String(), second.String())
}

func TestEncode_SuffixIsThirdSwatch(t *testing.T) {
	img := imagetest.Poster(310, 468)

	p, err := Encode(img)
	require.NoError(t, err)
	require.True(t, p.HasAccent())

	swatches, err := ExtractPalette(img, PaletteOptions{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(swatches), 3)

	assert.Equal(t, swatches[2].Color, *p.Accent)

	s := p.String()
	require.Len(t, s, BodyLength+1+AccentLength)
	assert.Equal(t, "/", s[BodyLength:BodyLength+1])

	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, swatches[2].Color, parsed.AccentOrBrand())
}

func TestEncode_SingleColorHasNoSuffix(t *testing.T) {
	p, err := Encode(imagetest.Solid(310, 468, color.NRGBA{R: 20, G: 90, B: 160, A: 0xff}))
	require.NoError(t, err)

	assert.False(t, p.HasAccent())
	assert.Len(t, p.String(), BodyLength)
	assert.NotContains(t, p.String(), "/")
	assert.Equal(t, BrandAccent, p.AccentOrBrand())
}

func TestEncode_ResizedBuffer(t *testing.T) {
	resized := imaging.Resize(imagetest.Poster(1200, 1800), 310, 468, imaging.Lanczos)

	p, err := Encode(resized)
	require.NoError(t, err)

	parsed, err := Parse(p.String())
	require.NoError(t, err)
	assert.Equal(t, p.Body, parsed.Body)
	assert.Equal(t, Version, parsed.Version)
}

func TestParse(t *testing.T) {
	p, err := Encode(imagetest.Poster(64, 96))
	require.NoError(t, err)
	body := p.Body

	tests := []struct {
		name       string
		input      string
		wantAccent *color.RGBA
		wantErr    bool
	}{
		{name: "body only", input: body},
		{name: "with accent", input: body + "/" + mustAccent(t, 0xF1, 0x8F, 0xF3), wantAccent: &BrandAccent},
		{name: "black accent", input: body + "/0000", wantAccent: &color.RGBA{A: 0xff}},
		{name: "short body", input: body[:40], wantErr: true},
		{name: "invalid character", input: strings.Replace(body, body[10:11], "!", 1), wantErr: true},
		{name: "short accent", input: body + "/00", wantErr: true},
		{name: "accent out of range", input: body + "/~~~~", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Parse(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPlaceholder)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, body, parsed.Body)
			if tt.wantAccent == nil {
				assert.Nil(t, parsed.Accent)
				assert.Equal(t, BrandAccent, parsed.AccentOrBrand())
			} else {
				require.NotNil(t, parsed.Accent)
				assert.Equal(t, *tt.wantAccent, *parsed.Accent)
			}
			assert.Equal(t, tt.input, parsed.String())
		})
	}
}

func TestLegacyAccent(t *testing.T) {
	p, err := Encode(imagetest.Poster(64, 96))
	require.NoError(t, err)

	legacy, err := LegacyAccent(p.Body)
	require.NoError(t, err)

	dc, err := decodeAccent(p.Body[2:6])
	require.NoError(t, err)
	assert.Equal(t, dc, legacy)

	_, err = LegacyAccent("abc")
	assert.ErrorIs(t, err, ErrInvalidPlaceholder)
}

func TestFromLegacy(t *testing.T) {
	p, err := Encode(imagetest.Poster(64, 96))
	require.NoError(t, err)

	t.Run("legacy body gains explicit DC accent", func(t *testing.T) {
		converted, err := FromLegacy(p.Body)
		require.NoError(t, err)

		legacy, err := LegacyAccent(p.Body)
		require.NoError(t, err)
		require.NotNil(t, converted.Accent)
		assert.Equal(t, legacy, *converted.Accent)
		assert.Equal(t, Version, converted.Version)

		reparsed, err := Parse(converted.String())
		require.NoError(t, err)
		assert.Equal(t, legacy, reparsed.AccentOrBrand())
	})

	t.Run("suffix is kept", func(t *testing.T) {
		input := p.Body + "/0000"
		converted, err := FromLegacy(input)
		require.NoError(t, err)
		assert.Equal(t, input, converted.String())
	})
}

func mustAccent(t *testing.T, r, g, b uint8) string {
	t.Helper()
	s, err := encodeAccent(color.RGBA{R: r, G: g, B: b, A: 0xff})
	require.NoError(t, err)
	return s
}
