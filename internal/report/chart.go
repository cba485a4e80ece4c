package report

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	chartW = 1000
	chartH = 600

	marginL = 90
	marginR = 30
	marginT = 50
	marginB = 100
)

var (
	colBackground = color.RGBA{255, 255, 255, 255}
	colAxis       = color.RGBA{60, 60, 60, 255}
	colGrid       = color.RGBA{225, 225, 225, 255}
	colBar        = color.RGBA{76, 114, 176, 255}
	colText       = color.RGBA{20, 20, 20, 255}
)

// plot maps data values onto the drawing area of a canvas.
type plot struct {
	img        *image.RGBA
	area       image.Rectangle
	yMin, yMax float64
}

func newPlot(yMin, yMax float64) *plot {
	img := image.NewRGBA(image.Rect(0, 0, chartW, chartH))
	draw.Draw(img, img.Bounds(), image.NewUniform(colBackground), image.Point{}, draw.Src)
	if yMax <= yMin {
		yMax = yMin + 1
	}
	return &plot{
		img:  img,
		area: image.Rect(marginL, marginT, chartW-marginR, chartH-marginB),
		yMin: yMin,
		yMax: yMax,
	}
}

func (p *plot) y(v float64) int {
	frac := (v - p.yMin) / (p.yMax - p.yMin)
	return p.area.Max.Y - int(math.Round(frac*float64(p.area.Dy())))
}

func (p *plot) fill(r image.Rectangle, c color.Color) {
	draw.Draw(p.img, r.Intersect(p.img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func (p *plot) text(s string, x, y int) {
	d := &font.Drawer{
		Dst:  p.img,
		Src:  image.NewUniform(colText),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func (p *plot) textWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Ceil()
}

func (p *plot) centered(s string, cx, y int) {
	p.text(s, cx-p.textWidth(s)/2, y)
}

// frame draws the title, the y grid with tick labels and both axes.
func (p *plot) frame(title, xLabel, yLabel string) {
	p.centered(title, chartW/2, marginT/2+5)

	const ticks = 5
	for i := 0; i <= ticks; i++ {
		v := p.yMin + (p.yMax-p.yMin)*float64(i)/ticks
		y := p.y(v)
		p.fill(image.Rect(p.area.Min.X, y, p.area.Max.X, y+1), colGrid)
		label := formatTick(v)
		p.text(label, p.area.Min.X-8-p.textWidth(label), y+4)
	}

	p.fill(image.Rect(p.area.Min.X, p.area.Min.Y, p.area.Min.X+1, p.area.Max.Y+1), colAxis)
	p.fill(image.Rect(p.area.Min.X, p.area.Max.Y, p.area.Max.X, p.area.Max.Y+1), colAxis)

	p.centered(xLabel, (p.area.Min.X+p.area.Max.X)/2, chartH-15)
	p.text(yLabel, 8, marginT-12)
}

// bar draws one bar in slot i of n, from the zero line (or the axis) to v.
func (p *plot) bar(i, n int, v float64) (left, right int) {
	slot := float64(p.area.Dx()) / float64(n)
	left = p.area.Min.X + int(slot*float64(i)+slot*0.1)
	right = p.area.Min.X + int(slot*float64(i+1)-slot*0.1)
	base := p.y(math.Max(p.yMin, 0))
	top := p.y(v)
	if top > base {
		top, base = base, top
	}
	p.fill(image.Rect(left, top, right, base), colBar)
	return left, right
}

// RenderHistogram draws bin counts as adjacent bars.
func RenderHistogram(title, xLabel string, bins []Bin) *image.RGBA {
	maxCount := 0
	for _, b := range bins {
		maxCount = max(maxCount, b.Count)
	}
	p := newPlot(0, niceCeil(float64(maxCount)))
	p.frame(title, xLabel, "Frequency")

	for i, b := range bins {
		left, _ := p.bar(i, len(bins), float64(b.Count))
		if i%labelStride(len(bins)) == 0 {
			p.text(formatTick(b.Lo), left, p.area.Max.Y+16)
		}
	}
	return p.img
}

// RenderBars draws one labelled bar per entry.
func RenderBars(title, xLabel string, bars []Bar) *image.RGBA {
	lo, hi := 0.0, 0.0
	for _, b := range bars {
		lo, hi = math.Min(lo, b.Value), math.Max(hi, b.Value)
	}
	if lo < 0 {
		lo = -niceCeil(-lo)
	}
	p := newPlot(lo, niceCeil(hi))
	p.frame(title, xLabel, "Average Performance")

	for i, b := range bars {
		left, right := p.bar(i, len(bars), b.Value)
		label := truncate(b.Label, (right-left+20)/7)
		// Alternate rows so long neighbouring labels do not collide
		y := p.area.Max.Y + 16 + (i%2)*14
		p.centered(label, (left+right)/2, y)
	}
	return p.img
}

// SavePNG encodes img to path, creating parent directories.
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// niceCeil rounds v up to 1, 2, 2.5 or 5 times a power of ten.
func niceCeil(v float64) float64 {
	if v <= 0 {
		return 1
	}
	exp := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{1, 2, 2.5, 5, 10} {
		if v <= m*exp {
			return m * exp
		}
	}
	return 10 * exp
}

func labelStride(n int) int {
	return max(1, n/12)
}

func formatTick(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e9 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', 4, 64)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n < 4 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
