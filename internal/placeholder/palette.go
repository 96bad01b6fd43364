package placeholder

import (
	"errors"
	"image"
	"image/color"
	"sort"
)

// Modified median cut quantization. Colors are bucketed into a 5-bit per
// channel histogram and the box with the most pixels is split at its median
// until enough boxes exist.
const (
	sigBits            = 5
	rShift             = 8 - sigBits
	histogramSize      = 1 << (3 * sigBits)
	maxIterations      = 1000
	fractByPopulations = 0.75

	// DefaultQuality samples every 10th pixel
	DefaultQuality = 10
	// DefaultMaxColors is the palette size requested from the quantizer
	DefaultMaxColors = 5
)

// ErrPaletteExtraction is returned when an image does not yield enough
// distinct colors to pick an accent from
var ErrPaletteExtraction = errors.New("palette extraction failed")

// Swatch is one palette entry
type Swatch struct {
	Color      color.RGBA
	Population int
}

// PaletteOptions tunes sampling and palette size
type PaletteOptions struct {
	// Quality is the sampling stride in pixels, 1 reads every pixel
	Quality   int
	MaxColors int
}

func (o PaletteOptions) withDefaults() PaletteOptions {
	if o.Quality < 1 {
		o.Quality = DefaultQuality
	}
	if o.MaxColors < 2 {
		o.MaxColors = DefaultMaxColors
	}
	return o
}

// ExtractPalette returns up to MaxColors swatches ordered by prominence
// (population times box volume, descending). Near-white and mostly
// transparent pixels are ignored.
func ExtractPalette(img image.Image, opts PaletteOptions) ([]Swatch, error) {
	opts = opts.withDefaults()

	hist, pixels := buildHistogram(img, opts.Quality)
	if pixels == 0 {
		return nil, ErrPaletteExtraction
	}

	initial := newBox(hist)
	queue := []*box{initial}
	var done []*box

	target := int(fractByPopulations * float64(opts.MaxColors))
	queue, done = split(queue, done, target, byCount)
	queue, done = split(queue, done, opts.MaxColors, byCountVolume)

	boxes := append(queue, done...)
	sort.SliceStable(boxes, func(i, j int) bool {
		return byCountVolume(boxes[i]) > byCountVolume(boxes[j])
	})

	swatches := make([]Swatch, 0, len(boxes))
	for _, b := range boxes {
		swatches = append(swatches, Swatch{Color: b.average(), Population: b.count})
	}
	return swatches, nil
}

// Accent returns the third most prominent swatch
func Accent(img image.Image) (color.RGBA, error) {
	swatches, err := ExtractPalette(img, PaletteOptions{})
	if err != nil {
		return color.RGBA{}, err
	}
	if len(swatches) < 3 {
		return color.RGBA{}, ErrPaletteExtraction
	}
	return swatches[2].Color, nil
}

func buildHistogram(img image.Image, stride int) ([]int, int) {
	hist := make([]int, histogramSize)
	b := img.Bounds()
	width := b.Dx()
	total := width * b.Dy()

	pixels := 0
	for i := 0; i < total; i += stride {
		x := b.Min.X + i%width
		y := b.Min.Y + i/width
		c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
		if c.A < 125 {
			continue
		}
		if c.R > 250 && c.G > 250 && c.B > 250 {
			continue
		}
		hist[histIndex(int(c.R)>>rShift, int(c.G)>>rShift, int(c.B)>>rShift)]++
		pixels++
	}
	return hist, pixels
}

func histIndex(r, g, b int) int {
	return r<<(2*sigBits) | g<<sigBits | b
}

func byCount(b *box) int {
	return b.count
}

func byCountVolume(b *box) int {
	return b.count * b.volume()
}

// split pops the highest ranked box and cuts it until len(queue)+len(done)
// reaches target. Boxes holding a single occupied cell move to done.
func split(queue, done []*box, target int, rank func(*box) int) ([]*box, []*box) {
	for iter := 0; iter < maxIterations; iter++ {
		if len(queue) == 0 || len(queue)+len(done) >= target {
			break
		}

		sort.SliceStable(queue, func(i, j int) bool {
			return rank(queue[i]) > rank(queue[j])
		})
		current := queue[0]
		queue = queue[1:]

		if current.cells <= 1 {
			done = append(done, current)
			continue
		}

		first, second := current.medianCut()
		for _, child := range []*box{first, second} {
			if child != nil && child.count > 0 {
				queue = append(queue, child)
			}
		}
	}
	return queue, done
}

// box is a region of the color histogram, bounds inclusive
type box struct {
	r1, r2, g1, g2, b1, b2 int
	hist                   []int

	count int
	cells int
}

func newBox(hist []int) *box {
	b := &box{hist: hist, r1: 1 << sigBits, g1: 1 << sigBits, b1: 1 << sigBits, r2: -1, g2: -1, b2: -1}
	for r := 0; r < 1<<sigBits; r++ {
		for g := 0; g < 1<<sigBits; g++ {
			for bl := 0; bl < 1<<sigBits; bl++ {
				if hist[histIndex(r, g, bl)] == 0 {
					continue
				}
				b.r1, b.r2 = min(b.r1, r), max(b.r2, r)
				b.g1, b.g2 = min(b.g1, g), max(b.g2, g)
				b.b1, b.b2 = min(b.b1, bl), max(b.b2, bl)
			}
		}
	}
	b.recount()
	return b
}

func (b *box) clone() *box {
	c := *b
	return &c
}

func (b *box) volume() int {
	return (b.r2 - b.r1 + 1) * (b.g2 - b.g1 + 1) * (b.b2 - b.b1 + 1)
}

func (b *box) recount() {
	b.count, b.cells = 0, 0
	for r := b.r1; r <= b.r2; r++ {
		for g := b.g1; g <= b.g2; g++ {
			for bl := b.b1; bl <= b.b2; bl++ {
				if n := b.hist[histIndex(r, g, bl)]; n > 0 {
					b.count += n
					b.cells++
				}
			}
		}
	}
}

func (b *box) average() color.RGBA {
	mult := 1 << rShift
	var total, rSum, gSum, bSum int
	for r := b.r1; r <= b.r2; r++ {
		for g := b.g1; g <= b.g2; g++ {
			for bl := b.b1; bl <= b.b2; bl++ {
				n := b.hist[histIndex(r, g, bl)]
				total += n
				rSum += n * (2*r + 1) * mult
				gSum += n * (2*g + 1) * mult
				bSum += n * (2*bl + 1) * mult
			}
		}
	}
	if total == 0 {
		return color.RGBA{
			R: uint8(mult * (b.r1 + b.r2 + 1) / 2),
			G: uint8(mult * (b.g1 + b.g2 + 1) / 2),
			B: uint8(mult * (b.b1 + b.b2 + 1) / 2),
			A: 0xff,
		}
	}
	// sums hold twice the cell center
	return color.RGBA{
		R: uint8(min(rSum/(2*total), 255)),
		G: uint8(min(gSum/(2*total), 255)),
		B: uint8(min(bSum/(2*total), 255)),
		A: 0xff,
	}
}

// bounds returns pointers to the low and high edge of a channel
func (b *box) bounds(channel int) (*int, *int) {
	switch channel {
	case 0:
		return &b.r1, &b.r2
	case 1:
		return &b.g1, &b.g2
	default:
		return &b.b1, &b.b2
	}
}

// medianCut splits the box along its widest channel near the median pixel
func (b *box) medianCut() (*box, *box) {
	channel := 0
	widest := b.r2 - b.r1
	if w := b.g2 - b.g1; w > widest {
		channel, widest = 1, w
	}
	if w := b.b2 - b.b1; w > widest {
		channel = 2
	}

	lo, hi := b.bounds(channel)
	low, high := *lo, *hi
	if low == high {
		return b, nil
	}

	partial := make([]int, high-low+1)
	total := 0
	for i := low; i <= high; i++ {
		slice := b.clone()
		sl, sh := slice.bounds(channel)
		*sl, *sh = i, i
		total += slice.sliceCount()
		partial[i-low] = total
	}

	cut := high - 1
	for i := low; i <= high; i++ {
		if partial[i-low] <= total/2 {
			continue
		}
		left, right := i-low, high-i
		if left <= right {
			cut = min(high-1, i+right/2)
		} else {
			cut = max(low, i-1-left/2)
		}
		break
	}
	for cut < high-1 && partial[cut-low] == 0 {
		cut++
	}
	for cut > low && total-partial[cut-low] == 0 && partial[cut-1-low] > 0 {
		cut--
	}

	first, second := b.clone(), b.clone()
	_, firstHigh := first.bounds(channel)
	*firstHigh = cut
	secondLow, _ := second.bounds(channel)
	*secondLow = cut + 1
	first.recount()
	second.recount()
	return first, second
}

func (b *box) sliceCount() int {
	n := 0
	for r := b.r1; r <= b.r2; r++ {
		for g := b.g1; g <= b.g2; g++ {
			for bl := b.b1; bl <= b.b2; bl++ {
				n += b.hist[histIndex(r, g, bl)]
			}
		}
	}
	return n
}
