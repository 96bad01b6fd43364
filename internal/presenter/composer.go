package presenter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"poster-pipeline/internal/cachekey"
	"poster-pipeline/internal/config"
	"poster-pipeline/internal/placeholder"
	"poster-pipeline/internal/platform/codec"
	"poster-pipeline/internal/platform/storage"
)

// Secondary text positions, relative to the template
const (
	yearCenterX = 516
	yearCenterY = 55
	yearSize    = 28

	countX    = 532
	countSize = 32
)

var (
	labelColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	titleColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// countLines are drawn top to bottom, vertically centered on y
var countLines = []struct {
	y     int
	label string
	value func(Request) int
}{
	{y: 330, label: " volumes", value: func(r Request) int { return r.Volumes }},
	{y: 410, label: " chapters", value: func(r Request) int { return r.Chapters }},
	{y: 490, label: " seasons", value: func(r Request) int { return r.Seasons }},
	{y: 570, label: " episodes", value: func(r Request) int { return r.Episodes }},
}

// Request carries what the presenter shows for one series
type Request struct {
	Title       string
	ReleaseYear int
	Volumes     int
	Chapters    int
	Seasons     int
	Episodes    int
	// Accent colors the counts. The zero value selects the brand accent.
	Accent color.RGBA
}

// Composer renders presenter images into an artifact store
type Composer struct {
	assets  *Assets
	loadErr error
	store   storage.ArtifactStore
	quality float32
}

// NewComposer creates a composer writing lossy WebP at quality
func NewComposer(assets *Assets, store storage.ArtifactStore, quality float32) *Composer {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Composer{assets: assets, store: store, quality: quality}
}

// LoadComposer loads the presenter assets once. A load failure is returned
// and also kept: the composer is usable and every composition reports it.
func LoadComposer(cfg config.PresenterConfig, store storage.ArtifactStore, quality float32) (*Composer, error) {
	assets, err := LoadAssets(cfg)
	c := NewComposer(assets, store, quality)
	c.loadErr = err
	return c, err
}

// Compose reads the stored thumbnail of key, renders the presenter and
// writes it to pre/{key}.webp
func (c *Composer) Compose(ctx context.Context, key cachekey.Key, req Request) error {
	if c.loadErr != nil {
		return c.loadErr
	}

	thumbPath := storage.Path(storage.VariantThumbnail, key)
	rc, err := c.store.Get(ctx, thumbPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPresenterIO, err)
	}
	thumb, err := codec.WebP{}.Decode(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("%w: thumbnail %s: %v", ErrPresenterIO, thumbPath, err)
	}

	canvas, err := c.Render(thumb, req)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := (codec.WebP{}).Encode(&buf, canvas, codec.Lossy(c.quality)); err != nil {
		return fmt.Errorf("%w: %v", ErrPresenterIO, err)
	}

	outPath := storage.Path(storage.VariantPresenter, key)
	if err := c.store.Put(ctx, outPath, bytes.NewReader(buf.Bytes()), int64(buf.Len()), codec.ContentTypeWebP); err != nil {
		return fmt.Errorf("%w: %v", ErrPresenterIO, err)
	}
	return nil
}

// Render composes the presenter in memory. The output has the template's
// dimensions.
func (c *Composer) Render(thumb image.Image, req Request) (*image.RGBA, error) {
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	tpl := c.assets.Template
	bounds := tpl.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), tpl, bounds.Min, draw.Src)

	// poster slot keeps the thumbnail aspect ratio at full template height
	slotHeight := bounds.Dy()
	slotWidth := 310 * slotHeight / 468
	slot := imaging.Resize(thumb, slotWidth, slotHeight, imaging.Lanczos)
	draw.Draw(canvas, image.Rect(0, 0, slotWidth, slotHeight), slot, image.Point{}, draw.Src)

	titleWidth := bounds.Dx() - slotWidth - TitleMargin
	layout, err := FitTitle(c.assets.TitleFont, req.Title, titleWidth, TitleMaxHeight)
	if err != nil {
		return nil, err
	}
	if err := c.drawTitle(canvas, layout); err != nil {
		return nil, err
	}

	if req.ReleaseYear > 0 {
		if err := c.drawYear(canvas, req.ReleaseYear); err != nil {
			return nil, err
		}
	}

	if err := c.drawCounts(canvas, req); err != nil {
		return nil, err
	}

	return canvas, nil
}

func (c *Composer) drawTitle(dst draw.Image, layout TitleLayout) error {
	if len(layout.Lines) == 0 {
		return nil
	}

	face, err := newFace(c.assets.TitleFont, layout.Size)
	if err != nil {
		return err
	}
	defer face.Close()

	baseline := fixed.I(TitleY) + face.Metrics().Ascent
	for _, line := range layout.Lines {
		drawString(dst, face, line, titleColor, fixed.Point26_6{X: fixed.I(TitleX), Y: baseline})
		baseline += fixed.I(layout.LineHeight)
	}
	return nil
}

func (c *Composer) drawYear(dst draw.Image, year int) error {
	face, err := newFace(c.assets.TextFont, yearSize)
	if err != nil {
		return err
	}
	defer face.Close()

	text := strconv.Itoa(year)
	width := font.MeasureString(face, text)
	dot := fixed.Point26_6{
		X: fixed.I(yearCenterX) - width/2,
		Y: centeredBaseline(face, yearCenterY),
	}
	drawString(dst, face, text, placeholder.BrandAccent, dot)
	return nil
}

func (c *Composer) drawCounts(dst draw.Image, req Request) error {
	face, err := newFace(c.assets.TextFont, countSize)
	if err != nil {
		return err
	}
	defer face.Close()

	accent := req.Accent
	if accent.A == 0 {
		accent = placeholder.BrandAccent
	}

	for _, line := range countLines {
		dot := fixed.Point26_6{X: fixed.I(countX), Y: centeredBaseline(face, line.y)}
		dot = drawString(dst, face, strconv.Itoa(line.value(req)), accent, dot)
		drawString(dst, face, line.label, labelColor, dot)
	}
	return nil
}

// centeredBaseline returns the baseline that centers the face's ascent and
// descent on y
func centeredBaseline(face font.Face, y int) fixed.Int26_6 {
	m := face.Metrics()
	return fixed.I(y) + (m.Ascent-m.Descent)/2
}

// drawString draws s at dot and returns the dot after the last glyph
func drawString(dst draw.Image, face font.Face, s string, c color.Color, dot fixed.Point26_6) fixed.Point26_6 {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  dot,
	}
	d.DrawString(s)
	return d.Dot
}
