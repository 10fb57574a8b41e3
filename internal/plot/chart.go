// Package plot renders labeled scatter and line series to raster images.
package plot

import (
	"errors"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

const (
	Scatter SeriesKind = "scatter"
	Line    SeriesKind = "line"
)

// SeriesKind selects how a series is drawn
type SeriesKind string

// ErrNoData is returned when a chart has no finite point to draw.
var ErrNoData = errors.New("chart has no data")

// Series is a labeled sequence of points. X and Y must have equal length;
// points with a non-finite coordinate are not drawn.
type Series struct {
	Label string
	Kind  SeriesKind
	X, Y  []float64
}

// Axis describes the labeling of one chart axis
type Axis struct {
	Label  string               // Axis title
	Format func(float64) string // Tick label formatter, defaults to FormatNumber
}

// Chart is a titled set of series sharing the same axes
type Chart struct {
	Title  string
	X, Y   Axis
	Series []Series
}

// Validate checks that every series is well formed.
func (c *Chart) Validate() error {
	for i, s := range c.Series {
		if len(s.X) != len(s.Y) {
			return fmt.Errorf("series %d (%s): %d x values but %d y values", i, s.Label, len(s.X), len(s.Y))
		}
		if s.Kind != Scatter && s.Kind != Line {
			return fmt.Errorf("series %d (%s): unknown kind '%s'", i, s.Label, s.Kind)
		}
	}
	return nil
}

// Range is a closed interval of axis values
type Range struct {
	Min, Max float64
}

// Span returns Max - Min.
func (r Range) Span() float64 {
	return r.Max - r.Min
}

// dataRanges returns the extent of all finite points of the chart with a
// small margin added on each side.
func dataRanges(c *Chart) (xr, yr Range, err error) {
	xr = Range{Min: math.Inf(1), Max: math.Inf(-1)}
	yr = xr

	var n int
	for _, s := range c.Series {
		for i := range s.X {
			x, y := s.X[i], s.Y[i]
			if !finite(x) || !finite(y) {
				continue
			}
			xr.Min, xr.Max = min(xr.Min, x), max(xr.Max, x)
			yr.Min, yr.Max = min(yr.Min, y), max(yr.Max, y)
			n++
		}
	}
	if n == 0 {
		return xr, yr, ErrNoData
	}

	return withMargin(xr), withMargin(yr), nil
}

// withMargin widens r by 5% of its span on each side, or by 1 when the span
// is zero.
func withMargin(r Range) Range {
	margin := r.Span() * 5 / 100
	if margin == 0 {
		margin = 1
	}
	return Range{Min: r.Min - margin, Max: r.Max + margin}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FormatNumber formats v with up to three significant decimals.
func FormatNumber(v float64) string {
	return fmt.Sprintf("%.4g", v)
}

// FormatMeters formats a distance using SI prefixes, e.g. "1.5 km".
func FormatMeters(v float64) string {
	f, prefix := humanize.ComputeSI(v)
	return fmt.Sprintf("%s %sm", humanize.FtoaWithDigits(f, 2), prefix)
}

// FormatDecibels formats v as a dB value.
func FormatDecibels(v float64) string {
	return fmt.Sprintf("%.0f dB", v)
}

// FormatPercent formats a fraction as a percentage.
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}
