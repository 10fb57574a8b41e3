package app

import (
	"fmt"
	"math"

	"github.com/roman-kulish/lora-calibration/internal/binning"
	"github.com/roman-kulish/lora-calibration/internal/packet"
	"github.com/roman-kulish/lora-calibration/internal/pathloss"
	"github.com/roman-kulish/lora-calibration/internal/plot"
)

// calibrationChart plots the measured loss of every received packet and the
// model curve sampled at points distances across the received span.
func calibrationChart(records []packet.Record, m pathloss.Model, points int) *plot.Chart {
	measured := plot.Series{Label: "measured", Kind: plot.Scatter}
	minDist, maxDist := math.Inf(1), math.Inf(-1)
	for _, r := range records {
		if !r.Success {
			continue
		}
		measured.X = append(measured.X, r.Distance)
		measured.Y = append(measured.Y, r.Measured)

		// log10 is undefined at zero distance
		if r.Distance > 0 {
			minDist, maxDist = min(minDist, r.Distance), max(maxDist, r.Distance)
		}
	}

	model := plot.Series{
		Label: fmt.Sprintf("model (d0 %s, K %.0f dB, gamma %.2f)", plot.FormatMeters(m.RefDistance), m.RefLoss, m.Gamma),
		Kind:  plot.Line,
	}
	if minDist <= maxDist && points > 1 {
		step := (maxDist - minDist) / float64(points-1)
		for i := 0; i < points; i++ {
			d := minDist + float64(i)*step
			model.X = append(model.X, d)
			model.Y = append(model.Y, m.Loss(d))
		}
	}

	return &plot.Chart{
		Title:  fmt.Sprintf("Path loss calibration, sigma %.2f dB", m.Sigma),
		X:      plot.Axis{Label: "distance", Format: plot.FormatMeters},
		Y:      plot.Axis{Label: "path loss", Format: plot.FormatDecibels},
		Series: []plot.Series{measured, model},
	}
}

// lossChart plots the packet loss of every bin that saw a transmission.
func lossChart(bins []binning.Bin, width float64) *plot.Chart {
	loss := plot.Series{Label: "packet loss", Kind: plot.Line}
	for _, b := range bins {
		l, ok := b.Loss()
		if !ok {
			continue
		}
		loss.X = append(loss.X, b.Midpoint())
		loss.Y = append(loss.Y, l)
	}

	return &plot.Chart{
		Title:  fmt.Sprintf("Packet loss per %s of distance", plot.FormatMeters(width)),
		X:      plot.Axis{Label: "distance", Format: plot.FormatMeters},
		Y:      plot.Axis{Label: "packet loss", Format: plot.FormatPercent},
		Series: []plot.Series{loss},
	}
}
