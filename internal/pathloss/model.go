// Package pathloss calibrates the log-distance path-loss model
//
//	PL(d) = K - 10 * gamma * log10(d / d_ref)
//
// against measured packet losses.
package pathloss

import (
	"errors"
	"math"

	"github.com/roman-kulish/lora-calibration/internal/packet"
)

var (
	// ErrNoSamples is returned when there is no successfully received packet
	// to fit against.
	ErrNoSamples = errors.New("no successful records")

	// ErrDegenerate is returned when the fit is undefined for the given anchor,
	// e.g. every sample lies exactly at the reference distance.
	ErrDegenerate = errors.New("degenerate fit")

	// ErrNoCandidate is returned when the search grid yields no usable point.
	ErrNoCandidate = errors.New("no candidate model")
)

// Model is a calibrated channel model.
type Model struct {
	RefDistance float64 `json:"refDistance"` // d_ref in meters
	RefLoss     float64 `json:"refLoss"`     // K in dB, the loss at d_ref
	Gamma       float64 `json:"gamma"`       // Path-loss exponent
	Sigma       float64 `json:"sigma"`       // Shadow-fading deviation in dB
}

// Loss returns the modeled path loss at distance d meters.
func (m Model) Loss(d float64) float64 {
	return modeledLoss(m.RefLoss, m.Gamma, logTerm(d, m.RefDistance))
}

// logTerm returns 10*log10(d/refDistance).
func logTerm(d, refDistance float64) float64 {
	return 10 * math.Log10(d/refDistance)
}

// modeledLoss is shared by Loss and the grid search so that the deviation
// reported by Optimize matches ShadowSigma over the applied records. The
// explicit conversions keep the compiler from fusing the operations.
func modeledLoss(k, gamma, term float64) float64 {
	return k - float64(gamma*term)
}

func squaredError(measured, modeled float64) float64 {
	e := measured - modeled
	return float64(e * e)
}

// Apply sets the modeled loss of every record from m.
func Apply(m Model, records []packet.Record) {
	for i := range records {
		records[i].Modeled = m.Loss(records[i].Distance)
	}
}

// sample is the part of a successful record the fit works on.
type sample struct {
	distance float64
	measured float64
}

func successfulSamples(records []packet.Record) []sample {
	var samples []sample
	for _, rec := range records {
		if rec.Success {
			samples = append(samples, sample{distance: rec.Distance, measured: rec.Measured})
		}
	}
	return samples
}

// logTerms fills terms with 10*log10(d/refDistance) for every sample and
// returns the sum of squares of those terms.
func logTerms(samples []sample, refDistance float64, terms []float64) (y float64) {
	for i, s := range samples {
		l := logTerm(s.distance, refDistance)
		terms[i] = l
		y += l * l
	}
	return y
}

// gammaFor solves d(MSE)/d(gamma) = 0 for the anchor loss k given the
// precomputed log terms and their sum of squares y.
func gammaFor(samples []sample, terms []float64, y, k float64) float64 {
	var x float64
	for i, s := range samples {
		x += 2 * (s.measured - k) * terms[i]
	}
	return -x / (2 * y)
}

// EstimateGamma returns the path-loss exponent minimizing the mean squared
// error over successful records for the anchor (refDistance, refLoss).
func EstimateGamma(records []packet.Record, refDistance, refLoss float64) (float64, error) {
	samples := successfulSamples(records)
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}
	if err := checkDistances(samples, refDistance); err != nil {
		return 0, err
	}

	terms := make([]float64, len(samples))
	y := logTerms(samples, refDistance, terms)
	if y == 0 {
		return 0, ErrDegenerate
	}

	return gammaFor(samples, terms, y, refLoss), nil
}

// ShadowSigma returns the RMS deviation between measured and modeled loss
// over successful records.
func ShadowSigma(records []packet.Record) (float64, error) {
	var sum float64
	var n int
	for _, rec := range records {
		if !rec.Success {
			continue
		}
		sum += squaredError(rec.Measured, rec.Modeled)
		n++
	}
	if n == 0 {
		return 0, ErrNoSamples
	}

	return math.Sqrt(sum / float64(n)), nil
}

func checkDistances(samples []sample, refDistance float64) error {
	if !(refDistance > 0) {
		return ErrDegenerate
	}
	for _, s := range samples {
		if !(s.distance > 0) {
			return ErrDegenerate
		}
	}
	return nil
}
