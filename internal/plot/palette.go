package plot

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	hueStart = 236.0
	hueEnd   = 0.0
)

var (
	backgroundColor = color.White
	frameColor      = color.Black
	gridColor       = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
)

// palette returns n distinguishable series colors, spread evenly from blue
// to red.
func palette(n int) []color.Color {
	colors := make([]color.Color, n)
	if n == 0 {
		return colors
	}

	hPerSeries := 0.0
	if n > 1 {
		hPerSeries = (hueStart - hueEnd) / float64(n-1)
	}
	for i := range colors {
		colors[i] = colorful.Hsv(hueStart-float64(i)*hPerSeries, 1, 0.90).Clamped()
	}
	return colors
}
