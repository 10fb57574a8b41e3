// Package binning aggregates packet outcomes into fixed-width distance bins.
package binning

import (
	"errors"
	"fmt"
	"math"

	"github.com/roman-kulish/lora-calibration/internal/packet"
)

// DefaultWidth is the default bin width in meters.
const DefaultWidth = 100.0

// ErrInvalidWidth is returned for a bin width that is not a positive number.
var ErrInvalidWidth = errors.New("bin width must be positive")

// Bin is a distance interval [Lower, Upper) with its packet counts.
type Bin struct {
	Index       int     `json:"index"`
	Lower       float64 `json:"lower"` // meters
	Upper       float64 `json:"upper"` // meters
	Transmitted int     `json:"transmitted"`
	Received    int     `json:"received"`
}

// Ratio returns the share of transmitted packets that were received. ok is
// false when nothing was transmitted in the bin.
func (b Bin) Ratio() (ratio float64, ok bool) {
	if b.Transmitted == 0 {
		return 0, false
	}
	return float64(b.Received) / float64(b.Transmitted), true
}

// Loss returns 1 - Ratio.
func (b Bin) Loss() (loss float64, ok bool) {
	r, ok := b.Ratio()
	if !ok {
		return 0, false
	}
	return 1 - r, true
}

// Midpoint returns the center distance of the bin.
func (b Bin) Midpoint() float64 {
	return (b.Lower + b.Upper) / 2
}

// Aggregate counts every record in the bin floor(distance / width). Bins run
// from 0 up to and including the bin of the farthest record, so empty bins
// in between are present with zero counts.
func Aggregate(records []packet.Record, width float64) ([]Bin, error) {
	if !(width > 0) || math.IsInf(width, 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWidth, width)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var maxDist float64
	for _, rec := range records {
		if rec.Distance < 0 || math.IsNaN(rec.Distance) || math.IsInf(rec.Distance, 0) {
			return nil, fmt.Errorf("packet %d: invalid distance %v", rec.PacketID, rec.Distance)
		}
		maxDist = max(maxDist, rec.Distance)
	}

	// ceil(max/width) bins are not enough when max is an exact multiple of
	// the width, floor(max/width)+1 always covers the farthest record.
	count := int(math.Floor(maxDist/width)) + 1

	bins := make([]Bin, count)
	for i := range bins {
		bins[i] = Bin{
			Index: i,
			Lower: float64(i) * width,
			Upper: float64(i+1) * width,
		}
	}

	for _, rec := range records {
		b := &bins[int(math.Floor(rec.Distance/width))]
		b.Transmitted++
		if rec.Success {
			b.Received++
		}
	}

	return bins, nil
}
