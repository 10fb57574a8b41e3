package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
)

const (
	defaultWidth  = 1024
	defaultHeight = 640

	// Default border sizes in pixels
	defaultTopBorder    = 50
	defaultLeftBorder   = 90
	defaultBottomBorder = 60
	defaultRightBorder  = 30

	defaultFontSize = 11.0
	markerRadius    = 2
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int // Space for the title
	Left   int // Space for the Y scale
	Bottom int // Space for the X scale
	Right  int // Right padding
}

// RenderConfig holds all configuration options for chart rendering
type RenderConfig struct {
	Width    int     // Full image width in pixels
	Height   int     // Full image height in pixels
	FontSize float64 // Font size in points

	BorderConfig BorderConfig
}

// Renderer draws charts to images
type Renderer struct {
	config RenderConfig
}

// NewRenderer creates a new chart renderer with the given configuration
func NewRenderer(config RenderConfig) (*Renderer, error) {
	// Set defaults for zero values
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.FontSize == 0 {
		config.FontSize = defaultFontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	b := config.BorderConfig
	if config.Width <= b.Left+b.Right || config.Height <= b.Top+b.Bottom {
		return nil, fmt.Errorf("image %dx%d leaves no room for the plot area", config.Width, config.Height)
	}

	return &Renderer{config: config}, nil
}

// Render creates an image of the chart with axes, title and legend
func (r *Renderer) Render(c *Chart) (*image.RGBA, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	xr, yr, err := dataRanges(c)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	b := r.config.BorderConfig
	area := image.Rect(b.Left, b.Top, r.config.Width-b.Right, r.config.Height-b.Bottom)
	proj := projection{area: area, x: xr, y: yr}

	ann, err := newAnnotator(annotatorConfig{
		FontSize: r.config.FontSize,
		Borders:  b,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	// Scales and grid go below the data
	if err = ann.drawScales(img, proj, c); err != nil {
		return nil, fmt.Errorf("drawing scales: %w", err)
	}

	colors := palette(len(c.Series))
	for i, s := range c.Series {
		r.renderSeries(img, proj, s, colors[i])
	}
	drawFrame(img, area)

	if err = ann.drawTitle(img, c.Title); err != nil {
		return nil, fmt.Errorf("drawing title: %w", err)
	}
	if err = ann.drawLegend(img, area, c.Series, colors); err != nil {
		return nil, fmt.Errorf("drawing legend: %w", err)
	}

	return img, nil
}

// renderSeries draws the finite points of s. Line series are broken at
// non-finite points.
func (r *Renderer) renderSeries(img *image.RGBA, proj projection, s Series, c color.Color) {
	var prev *image.Point
	for i := range s.X {
		if !finite(s.X[i]) || !finite(s.Y[i]) {
			prev = nil
			continue
		}
		pt := proj.point(s.X[i], s.Y[i])

		switch s.Kind {
		case Scatter:
			drawMarker(img, proj.area, pt, c)
		case Line:
			if prev != nil {
				drawLine(img, proj.area, *prev, pt, c)
			}
			prev = &pt
		}
	}
}

// projection maps data coordinates onto the plot area
type projection struct {
	area image.Rectangle
	x, y Range
}

func (p projection) px(x float64) int {
	ratio := (x - p.x.Min) / p.x.Span()
	return p.area.Min.X + int(math.Round(ratio*float64(p.area.Dx()-1)))
}

func (p projection) py(y float64) int {
	ratio := (y - p.y.Min) / p.y.Span()
	return p.area.Max.Y - 1 - int(math.Round(ratio*float64(p.area.Dy()-1)))
}

func (p projection) point(x, y float64) image.Point {
	return image.Pt(p.px(x), p.py(y))
}

func drawMarker(img *image.RGBA, clip image.Rectangle, center image.Point, c color.Color) {
	for dy := -markerRadius; dy <= markerRadius; dy++ {
		for dx := -markerRadius; dx <= markerRadius; dx++ {
			if dx*dx+dy*dy > markerRadius*markerRadius {
				continue
			}
			setClipped(img, clip, center.X+dx, center.Y+dy, c)
		}
	}
}

// drawLine draws a two pixel wide segment using Bresenham's algorithm
func drawLine(img *image.RGBA, clip image.Rectangle, from, to image.Point, c color.Color) {
	dx := abs(to.X - from.X)
	dy := -abs(to.Y - from.Y)
	sx, sy := 1, 1
	if from.X > to.X {
		sx = -1
	}
	if from.Y > to.Y {
		sy = -1
	}

	x, y := from.X, from.Y
	e := dx + dy
	for {
		setClipped(img, clip, x, y, c)
		setClipped(img, clip, x, y+1, c)
		if x == to.X && y == to.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

func drawFrame(img *image.RGBA, area image.Rectangle) {
	for x := area.Min.X; x < area.Max.X; x++ {
		img.Set(x, area.Min.Y, frameColor)
		img.Set(x, area.Max.Y-1, frameColor)
	}
	for y := area.Min.Y; y < area.Max.Y; y++ {
		img.Set(area.Min.X, y, frameColor)
		img.Set(area.Max.X-1, y, frameColor)
	}
}

func setClipped(img *image.RGBA, clip image.Rectangle, x, y int, c color.Color) {
	if image.Pt(x, y).In(clip) {
		img.Set(x, y, c)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
