package placeholder

import (
	"image/color"
	"testing"

	colorextractor "github.com/marekm4/color-extractor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poster-pipeline/internal/testutils/imagetest"
)

func TestExtractPalette(t *testing.T) {
	red := color.NRGBA{R: 220, G: 20, B: 20, A: 0xff}
	green := color.NRGBA{R: 20, G: 200, B: 40, A: 0xff}
	blue := color.NRGBA{R: 30, G: 40, B: 210, A: 0xff}
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 0xff}

	tests := []struct {
		name        string
		colors      []color.NRGBA
		wantCount   int
		wantErr     bool
		wantPresent []color.NRGBA
	}{
		{name: "single color", colors: []color.NRGBA{red}, wantCount: 1},
		{name: "all white", colors: []color.NRGBA{white}, wantErr: true},
		{name: "three stripes", colors: []color.NRGBA{red, green, blue}, wantCount: 3, wantPresent: []color.NRGBA{red, green, blue}},
		{name: "white ignored", colors: []color.NRGBA{red, white, blue}, wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := imagetest.Stripes(60, 90, tt.colors...)
			swatches, err := ExtractPalette(img, PaletteOptions{Quality: 1})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPaletteExtraction)
				return
			}
			require.NoError(t, err)
			assert.Len(t, swatches, tt.wantCount)

			for _, want := range tt.wantPresent {
				assert.True(t, containsNear(swatches, want), "missing swatch near %v", want)
			}
		})
	}
}

func TestExtractPalette_OrderedByProminence(t *testing.T) {
	img := imagetest.Poster(310, 468)
	swatches, err := ExtractPalette(img, PaletteOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, swatches)
	assert.LessOrEqual(t, len(swatches), DefaultMaxColors)

	total := 0
	for _, s := range swatches {
		assert.Positive(t, s.Population)
		total += s.Population
	}
	sampled := 0
	for i := 0; i < 310*468; i += DefaultQuality {
		c := img.NRGBAAt(i%310, i/310)
		if c.R > 250 && c.G > 250 && c.B > 250 {
			continue
		}
		sampled++
	}
	// every sampled pixel belongs to exactly one box
	assert.Equal(t, sampled, total)

	for i := 1; i < len(swatches); i++ {
		prev, cur := swatches[i-1], swatches[i]
		assert.GreaterOrEqual(t, prev.Population, 1)
		assert.NotEqual(t, prev.Color, cur.Color)
	}
}

// Bucketing extractors average every color of an octant into one entry, so
// two reds become a red that appears nowhere in the poster. Median cut keeps
// them apart and each swatch stays close to a real color.
func TestExtractPalette_KeepsSameOctantColorsApart(t *testing.T) {
	brightRed := color.NRGBA{R: 200, G: 30, B: 30, A: 0xff}
	darkRed := color.NRGBA{R: 140, G: 20, B: 20, A: 0xff}
	blue := color.NRGBA{R: 30, G: 30, B: 200, A: 0xff}
	green := color.NRGBA{R: 30, G: 200, B: 30, A: 0xff}
	img := imagetest.Stripes(60, 120, brightRed, darkRed, blue, green)

	swatches, err := ExtractPalette(img, PaletteOptions{Quality: 1})
	require.NoError(t, err)
	require.Len(t, swatches, 4)
	for _, want := range []color.NRGBA{brightRed, darkRed, blue, green} {
		assert.True(t, containsNear(swatches, want), "missing swatch near %v", want)
	}

	bucketed := colorextractor.ExtractColors(img)
	require.Len(t, bucketed, 3)
	merged := color.RGBAModel.Convert(bucketed[0]).(color.RGBA)
	assert.False(t, containsNear([]Swatch{{Color: merged}}, brightRed))
	assert.False(t, containsNear([]Swatch{{Color: merged}}, darkRed))
}

func TestAccent_RequiresThreeSwatches(t *testing.T) {
	img := imagetest.Stripes(60, 90,
		color.NRGBA{R: 220, G: 20, B: 20, A: 0xff},
		color.NRGBA{R: 20, G: 200, B: 40, A: 0xff},
	)

	_, err := Accent(img)
	assert.ErrorIs(t, err, ErrPaletteExtraction)
}

func containsNear(swatches []Swatch, want color.NRGBA) bool {
	for _, s := range swatches {
		if near(s.Color.R, want.R) && near(s.Color.G, want.G) && near(s.Color.B, want.B) {
			return true
		}
	}
	return false
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -8 && d <= 8
}
