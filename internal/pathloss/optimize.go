package pathloss

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/lora-calibration/internal/packet"
)

// Grid defines the candidate anchors of the brute-force search. Reference
// distances run from the minimum observed distance up to, but excluding,
// the maximum. Reference losses run from RefLossMax down to RefLossMin
// inclusive.
type Grid struct {
	RefDistanceStep float64 `yaml:"refDistanceStep"` // meters
	RefLossMax      float64 `yaml:"refLossMax"`      // dB
	RefLossMin      float64 `yaml:"refLossMin"`      // dB
	RefLossStep     float64 `yaml:"refLossStep"`     // dB
}

// DefaultGrid searches d_ref in 1 m steps and K from 0 dB to -160 dB in 1 dB steps.
func DefaultGrid() Grid {
	return Grid{
		RefDistanceStep: 1,
		RefLossMax:      0,
		RefLossMin:      -160,
		RefLossStep:     1,
	}
}

// Validate reports whether the grid can be iterated.
func (g Grid) Validate() error {
	switch {
	case !(g.RefDistanceStep > 0):
		return fmt.Errorf("reference distance step must be positive, got %v", g.RefDistanceStep)
	case !(g.RefLossStep > 0):
		return fmt.Errorf("reference loss step must be positive, got %v", g.RefLossStep)
	case !(g.RefLossMax >= g.RefLossMin):
		return fmt.Errorf("reference loss range [%v, %v] is empty", g.RefLossMin, g.RefLossMax)
	}
	return nil
}

// refDistances returns the candidate reference distances in ascending order.
// Non-positive candidates are skipped.
func (g Grid) refDistances(minDist, maxDist float64) []float64 {
	if !finite(minDist) || !finite(maxDist) {
		return nil
	}

	var out []float64
	for i := 0; ; i++ {
		d := minDist + float64(i)*g.RefDistanceStep
		if d >= maxDist {
			break
		}
		if d > 0 {
			out = append(out, d)
		}
	}
	return out
}

// refLosses returns the candidate reference losses in descending order.
func (g Grid) refLosses() []float64 {
	var out []float64
	for i := 0; ; i++ {
		k := g.RefLossMax - float64(i)*g.RefLossStep
		if k < g.RefLossMin {
			break
		}
		out = append(out, k)
	}
	return out
}

// Result is the outcome of Optimize.
type Result struct {
	Model     Model
	Evaluated int           // Grid cells evaluated
	Skipped   int           // Grid cells with an undefined fit
	Elapsed   time.Duration // Wall time of the search
}

type optimizer struct {
	grid    Grid
	workers int
}

// Option configures Optimize.
type Option func(*optimizer)

// WithGrid replaces the default search grid.
func WithGrid(g Grid) Option {
	return func(o *optimizer) {
		o.grid = g
	}
}

// WithWorkers sets the number of goroutines evaluating the grid. Values
// below 1 select runtime.GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *optimizer) {
		o.workers = n
	}
}

// rowResult is the best cell of one reference distance.
type rowResult struct {
	model     Model
	found     bool
	evaluated int
	skipped   int
}

// Optimize searches the grid for the anchor (d_ref, K) whose MMSE gamma
// yields the lowest shadow-fading deviation. Cells are scanned by d_ref
// ascending, then K descending; on equal deviation the first cell wins,
// regardless of the number of workers.
//
// On success the modeled loss of every record is set from the winning model.
func Optimize(ctx context.Context, records []packet.Record, opts ...Option) (*Result, error) {
	o := optimizer{grid: DefaultGrid()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	if err := o.grid.Validate(); err != nil {
		return nil, err
	}

	samples := successfulSamples(records)
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	for _, s := range samples {
		if !(s.distance > 0) {
			return nil, fmt.Errorf("sample at distance %v: %w", s.distance, ErrDegenerate)
		}
		if !finite(s.measured) {
			return nil, fmt.Errorf("sample with measured loss %v: %w", s.measured, ErrDegenerate)
		}
	}

	minDist, maxDist := math.Inf(1), math.Inf(-1)
	for _, rec := range records {
		if !finite(rec.Distance) {
			return nil, fmt.Errorf("packet %d at distance %v: %w", rec.PacketID, rec.Distance, ErrDegenerate)
		}
		minDist = min(minDist, rec.Distance)
		maxDist = max(maxDist, rec.Distance)
	}

	dRefs := o.grid.refDistances(minDist, maxDist)
	ks := o.grid.refLosses()
	if len(dRefs) == 0 || len(ks) == 0 {
		return nil, ErrNoCandidate
	}

	start := time.Now()
	rows := make([]rowResult, len(dRefs))

	var next atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < min(o.workers, len(dRefs)); w++ {
		g.Go(func() error {
			terms := make([]float64, len(samples))
			for {
				i := int(next.Add(1) - 1)
				if i >= len(dRefs) {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				rows[i] = evaluateRow(samples, dRefs[i], ks, terms)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res, ok := pickBest(rows)
	if !ok {
		return nil, ErrNoCandidate
	}
	res.Elapsed = time.Since(start)

	Apply(res.Model, records)
	return res, nil
}

// evaluateRow scans every reference loss for one reference distance. terms
// is scratch space of len(samples).
func evaluateRow(samples []sample, refDistance float64, ks []float64, terms []float64) rowResult {
	y := logTerms(samples, refDistance, terms)
	if y == 0 {
		return rowResult{skipped: len(ks)}
	}

	var row rowResult
	n := float64(len(samples))
	for _, k := range ks {
		gamma := gammaFor(samples, terms, y, k)

		var sum float64
		for i, s := range samples {
			sum += squaredError(s.measured, modeledLoss(k, gamma, terms[i]))
		}
		sigma := math.Sqrt(sum / n)
		if !finite(gamma) || !finite(sigma) {
			row.skipped++
			continue
		}
		row.evaluated++

		if !row.found || sigma < row.model.Sigma {
			row.model = Model{RefDistance: refDistance, RefLoss: k, Gamma: gamma, Sigma: sigma}
			row.found = true
		}
	}

	return row
}

// pickBest reduces the per-row winners in scan order, keeping the first of
// equal deviations.
func pickBest(rows []rowResult) (*Result, bool) {
	var res Result
	var found bool
	for _, row := range rows {
		res.Evaluated += row.evaluated
		res.Skipped += row.skipped
		if row.found && (!found || row.model.Sigma < res.Model.Sigma) {
			res.Model = row.model
			found = true
		}
	}
	return &res, found
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
