package plot

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi             = 96.0
	tickMarkSize    = 5
	pixelsPerLabel  = 110.0
	legendSwatch    = 14
	legendPadding   = 8
	legendLineSpace = 6
)

type annotatorConfig struct {
	FontSize float64
	Borders  BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) bind(img *image.RGBA) {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) textWidth(s string) int {
	return font.MeasureString(a.fontFace, s).Round()
}

func (a *annotator) drawString(s string, x, baseline int) error {
	_, err := a.context.DrawString(s, freetype.Pt(x, baseline))
	return err
}

// drawScales draws grid lines, tick marks, tick labels and axis titles.
func (a *annotator) drawScales(img *image.RGBA, proj projection, c *Chart) error {
	a.bind(img)

	area := proj.area
	fontHeight := a.fontHeight()
	descent := a.fontFace.Metrics().Descent.Round()

	xFormat := formatterOf(c.X)
	xStep := niceStep(proj.x.Span(), float64(area.Dx())/pixelsPerLabel)
	for _, v := range ticks(proj.x, xStep) {
		x := proj.px(v)
		for y := area.Min.Y; y < area.Max.Y; y++ {
			img.Set(x, y, gridColor)
		}
		for y := area.Max.Y; y < area.Max.Y+tickMarkSize; y++ {
			img.Set(x, y, frameColor)
		}

		label := xFormat(v)
		if err := a.drawString(label, x-a.textWidth(label)/2, area.Max.Y+tickMarkSize+fontHeight); err != nil {
			return fmt.Errorf("drawing x label: %w", err)
		}
	}

	yFormat := formatterOf(c.Y)
	yStep := niceStep(proj.y.Span(), float64(area.Dy())/(pixelsPerLabel/2))
	for _, v := range ticks(proj.y, yStep) {
		y := proj.py(v)
		for x := area.Min.X; x < area.Max.X; x++ {
			img.Set(x, y, gridColor)
		}
		for x := area.Min.X - tickMarkSize; x < area.Min.X; x++ {
			img.Set(x, y, frameColor)
		}

		// Center text vertically relative to the tick mark position
		label := yFormat(v)
		textY := y + fontHeight/2 - descent
		if err := a.drawString(label, area.Min.X-tickMarkSize-3-a.textWidth(label), textY); err != nil {
			return fmt.Errorf("drawing y label: %w", err)
		}
	}

	if c.X.Label != "" {
		x := area.Min.X + (area.Dx()-a.textWidth(c.X.Label))/2
		if err := a.drawString(c.X.Label, x, img.Bounds().Max.Y-descent-4); err != nil {
			return fmt.Errorf("drawing x axis title: %w", err)
		}
	}
	if c.Y.Label != "" {
		if err := a.drawString(c.Y.Label, 4, area.Min.Y-descent-4); err != nil {
			return fmt.Errorf("drawing y axis title: %w", err)
		}
	}

	return nil
}

func (a *annotator) drawTitle(img *image.RGBA, title string) error {
	if title == "" {
		return nil
	}
	a.bind(img)

	x := (img.Bounds().Dx() - a.textWidth(title)) / 2
	y := (a.config.Borders.Top+a.fontHeight())/2 - a.fontFace.Metrics().Descent.Round()
	return a.drawString(title, x, y)
}

// drawLegend draws a boxed legend in the top right corner of the plot area.
func (a *annotator) drawLegend(img *image.RGBA, area image.Rectangle, series []Series, colors []color.Color) error {
	var labels int
	var width int
	for _, s := range series {
		if s.Label == "" {
			continue
		}
		labels++
		width = max(width, a.textWidth(s.Label))
	}
	if labels == 0 {
		return nil
	}
	a.bind(img)

	lineHeight := max(a.fontHeight(), legendSwatch) + legendLineSpace
	box := image.Rect(0, 0, legendPadding*3+legendSwatch+width, legendPadding*2+labels*lineHeight-legendLineSpace)
	box = box.Add(image.Pt(area.Max.X-box.Dx()-legendPadding, area.Min.Y+legendPadding))

	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			img.Set(x, y, backgroundColor)
		}
	}
	drawFrame(img, box)

	top := box.Min.Y + legendPadding
	descent := a.fontFace.Metrics().Descent.Round()
	for i, s := range series {
		if s.Label == "" {
			continue
		}

		swatch := image.Rect(0, 0, legendSwatch, legendSwatch).Add(image.Pt(box.Min.X+legendPadding, top))
		switch s.Kind {
		case Scatter:
			drawMarker(img, swatch, image.Pt(swatch.Min.X+legendSwatch/2, swatch.Min.Y+legendSwatch/2), colors[i])
		default:
			mid := swatch.Min.Y + legendSwatch/2
			drawLine(img, swatch, image.Pt(swatch.Min.X, mid), image.Pt(swatch.Max.X-1, mid), colors[i])
		}

		textY := top + legendSwatch/2 + a.fontHeight()/2 - descent
		if err := a.drawString(s.Label, swatch.Max.X+legendPadding, textY); err != nil {
			return fmt.Errorf("drawing legend label: %w", err)
		}
		top += lineHeight
	}

	return nil
}

func formatterOf(axis Axis) func(float64) string {
	if axis.Format != nil {
		return axis.Format
	}
	return FormatNumber
}

// niceStep returns a 1, 2 or 5 times a power of ten step that splits span
// into roughly the desired number of intervals.
func niceStep(span, desired float64) float64 {
	if desired < 1 {
		desired = 1
	}
	raw := span / desired
	magnitude := math.Pow(10, math.Floor(math.Log10(raw)))

	switch normalized := raw / magnitude; {
	case normalized <= 1:
		return magnitude
	case normalized <= 2:
		return 2 * magnitude
	case normalized <= 5:
		return 5 * magnitude
	default:
		return 10 * magnitude
	}
}

// ticks returns the multiples of step within r.
func ticks(r Range, step float64) []float64 {
	var out []float64
	first := math.Ceil(r.Min/step) * step
	for i := 0; ; i++ {
		v := first + float64(i)*step
		if v > r.Max {
			break
		}
		// avoid printing -0
		if math.Abs(v) < step*1e-9 {
			v = 0
		}
		out = append(out, v)
	}
	return out
}
