package presenter

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// Title box geometry relative to the template
const (
	TitleX         = 452
	TitleY         = 82
	TitleMargin    = 64
	TitleMaxHeight = 224
	TitleMaxRunes  = 96

	TitleStartSize = 64
	TitleSizeStep  = 4
	TitleMinSize   = 28
)

// TitleLayout is a fitted title ready to draw
type TitleLayout struct {
	Size       float64
	Lines      []string
	LineHeight int
	// Height never exceeds the box height passed to FitTitle
	Height int
}

// FitTitle truncates title to TitleMaxRunes and shrinks the font from
// TitleStartSize by TitleSizeStep until the wrapped text fits maxHeight. At
// TitleMinSize the layout is accepted and lines past the box are clipped.
func FitTitle(f *opentype.Font, title string, maxWidth, maxHeight int) (TitleLayout, error) {
	title = truncateRunes(strings.TrimSpace(title), TitleMaxRunes)
	if title == "" {
		return TitleLayout{Size: TitleStartSize}, nil
	}

	for size := TitleStartSize; ; size -= TitleSizeStep {
		layout, err := layoutAt(f, title, float64(size), maxWidth)
		if err != nil {
			return TitleLayout{}, err
		}

		if layout.Height <= maxHeight {
			return layout, nil
		}

		if size-TitleSizeStep < TitleMinSize {
			return clip(layout, maxHeight), nil
		}
	}
}

func layoutAt(f *opentype.Font, title string, size float64, maxWidth int) (TitleLayout, error) {
	face, err := newFace(f, size)
	if err != nil {
		return TitleLayout{}, err
	}
	defer face.Close()

	lines := wrapText(title, face, maxWidth)
	lineHeight := face.Metrics().Height.Ceil()

	return TitleLayout{
		Size:       size,
		Lines:      lines,
		LineHeight: lineHeight,
		Height:     len(lines) * lineHeight,
	}, nil
}

func clip(layout TitleLayout, maxHeight int) TitleLayout {
	if layout.LineHeight <= 0 {
		return layout
	}
	keep := maxHeight / layout.LineHeight
	if keep < len(layout.Lines) {
		layout.Lines = layout.Lines[:keep]
		layout.Height = keep * layout.LineHeight
	}
	return layout
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontLoad, err)
	}
	return face, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:n]), unicode.IsSpace)
}

// wrapText splits text into lines that fit within maxWidth pixels. Words
// wider than the box are broken between runes.
func wrapText(text string, face font.Face, maxWidth int) []string {
	fits := func(s string) bool {
		return font.MeasureString(face, s).Ceil() <= maxWidth
	}

	var lines []string
	current := ""
	for _, word := range strings.Fields(text) {
		trial := word
		if current != "" {
			trial = current + " " + word
		}
		if fits(trial) {
			current = trial
			continue
		}

		if current != "" {
			lines = append(lines, current)
			current = ""
		}

		// a single word that still does not fit on an empty line
		for word != "" && !fits(word) {
			head, tail := splitToFit(word, fits)
			lines = append(lines, head)
			word = tail
		}
		current = word
	}

	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// splitToFit returns the longest rune prefix that fits, at least one rune
func splitToFit(word string, fits func(string) bool) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && fits(string(runes[:n+1])) {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}
