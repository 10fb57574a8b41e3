package pathloss

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/roman-kulish/lora-calibration/internal/packet"
)

// synthetic returns noiseless records generated from m at the given distances.
func synthetic(m Model, distances ...float64) []packet.Record {
	records := make([]packet.Record, len(distances))
	for i, d := range distances {
		records[i] = packet.Record{
			PacketID: int64(i + 1),
			Success:  true,
			Distance: d,
			Measured: m.Loss(d),
		}
	}
	return records
}

func distanceRange(from, to, step float64) []float64 {
	var out []float64
	for d := from; d < to; d += step {
		out = append(out, d)
	}
	return out
}

func TestEstimateGamma_RecoversSynthetic(t *testing.T) {
	truth := Model{RefDistance: 1, RefLoss: -90, Gamma: 2.5}
	records := synthetic(truth, distanceRange(5, 500, 7)...)

	gamma, err := EstimateGamma(records, truth.RefDistance, truth.RefLoss)
	if err != nil {
		t.Fatalf("Failed to estimate gamma: %v", err)
	}
	if math.Abs(gamma-truth.Gamma) > 1e-6 {
		t.Errorf("Expected gamma %f, got %f", truth.Gamma, gamma)
	}
}

func TestEstimateGamma_IgnoresUnsuccessful(t *testing.T) {
	truth := Model{RefDistance: 10, RefLoss: -60, Gamma: 3}
	records := synthetic(truth, 20, 40, 80, 160)
	records = append(records, packet.Record{Distance: 50, Measured: 1000})

	gamma, err := EstimateGamma(records, truth.RefDistance, truth.RefLoss)
	if err != nil {
		t.Fatalf("Failed to estimate gamma: %v", err)
	}
	if math.Abs(gamma-truth.Gamma) > 1e-9 {
		t.Errorf("Expected gamma %f, got %f", truth.Gamma, gamma)
	}
}

func TestEstimateGamma_Errors(t *testing.T) {
	tests := []struct {
		name    string
		records []packet.Record
		dRef    float64
		want    error
	}{
		{"no records", nil, 1, ErrNoSamples},
		{"no successful records", []packet.Record{{Distance: 10}, {Distance: 20}}, 1, ErrNoSamples},
		{"all at reference distance", []packet.Record{{Success: true, Distance: 25}, {Success: true, Distance: 25}}, 25, ErrDegenerate},
		{"zero distance sample", []packet.Record{{Success: true, Distance: 0}}, 1, ErrDegenerate},
		{"zero reference distance", []packet.Record{{Success: true, Distance: 10}}, 0, ErrDegenerate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EstimateGamma(tt.records, tt.dRef, -40)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestShadowSigma(t *testing.T) {
	truth := Model{RefDistance: 1, RefLoss: -90, Gamma: 2.5}
	records := synthetic(truth, distanceRange(5, 500, 7)...)
	Apply(truth, records)

	sigma, err := ShadowSigma(records)
	if err != nil {
		t.Fatalf("Failed to compute sigma: %v", err)
	}
	if sigma != 0 {
		t.Errorf("Expected zero sigma for a perfect fit, got %g", sigma)
	}

	records = []packet.Record{
		{Success: true, Measured: -80, Modeled: -82},
		{Success: true, Measured: -80, Modeled: -78},
		{Success: false, Measured: 0, Modeled: -500},
	}
	sigma, err = ShadowSigma(records)
	if err != nil {
		t.Fatalf("Failed to compute sigma: %v", err)
	}
	if sigma != 2 {
		t.Errorf("Expected sigma 2, got %f", sigma)
	}
}

func TestShadowSigma_NoSamples(t *testing.T) {
	_, err := ShadowSigma([]packet.Record{{Distance: 10}})
	if !errors.Is(err, ErrNoSamples) {
		t.Errorf("Expected ErrNoSamples, got %v", err)
	}
}

func TestModelLoss(t *testing.T) {
	m := Model{RefDistance: 10, RefLoss: -40, Gamma: 2}
	if got := m.Loss(10); got != -40 {
		t.Errorf("Expected -40 at the reference distance, got %f", got)
	}
	if got := m.Loss(100); math.Abs(got-(-60)) > 1e-12 {
		t.Errorf("Expected -60 at 100m, got %f", got)
	}
}

func TestOptimize_RecoversGridPoint(t *testing.T) {
	truth := Model{RefDistance: 10, RefLoss: -40, Gamma: 3}
	records := synthetic(truth, distanceRange(10, 90, 1)...)

	res, err := Optimize(context.Background(), records)
	if err != nil {
		t.Fatalf("Failed to optimize: %v", err)
	}

	m := res.Model
	if m.RefDistance != truth.RefDistance || m.RefLoss != truth.RefLoss {
		t.Errorf("Expected anchor (%v, %v), got (%v, %v)", truth.RefDistance, truth.RefLoss, m.RefDistance, m.RefLoss)
	}
	if math.Abs(m.Gamma-truth.Gamma) > 1e-9 {
		t.Errorf("Expected gamma %f, got %f", truth.Gamma, m.Gamma)
	}
	if m.Sigma > 1e-9 {
		t.Errorf("Expected near-zero sigma, got %g", m.Sigma)
	}

	for _, rec := range records {
		if math.Abs(rec.Modeled-rec.Measured) > 1e-9 {
			t.Errorf("Packet %d: modeled loss %f does not match measured %f", rec.PacketID, rec.Modeled, rec.Measured)
		}
	}

	// 79 reference distances (10..88) by 161 reference losses
	if res.Evaluated != 79*161 {
		t.Errorf("Expected %d evaluated cells, got %d", 79*161, res.Evaluated)
	}
	if res.Skipped != 0 {
		t.Errorf("Expected no skipped cells, got %d", res.Skipped)
	}
}

func TestOptimize_WorkersAgree(t *testing.T) {
	records := synthetic(Model{RefDistance: 3, RefLoss: -55, Gamma: 2.7}, distanceRange(3, 160, 3.5)...)
	// deterministic pseudo noise
	for i := range records {
		records[i].Measured += math.Sin(float64(i)*1.7) * 4
	}

	var want *Result
	for _, workers := range []int{1, 2, 3, 8} {
		recs := append([]packet.Record(nil), records...)
		res, err := Optimize(context.Background(), recs, WithWorkers(workers))
		if err != nil {
			t.Fatalf("Failed to optimize with %d workers: %v", workers, err)
		}
		if want == nil {
			want = res
			continue
		}
		if res.Model != want.Model {
			t.Errorf("Workers=%d: expected model %+v, got %+v", workers, want.Model, res.Model)
		}
		if res.Evaluated != want.Evaluated || res.Skipped != want.Skipped {
			t.Errorf("Workers=%d: expected %d/%d cells, got %d/%d", workers, want.Evaluated, want.Skipped, res.Evaluated, res.Skipped)
		}
	}
}

func TestOptimize_UsesAllRecordsForRange(t *testing.T) {
	records := synthetic(Model{RefDistance: 1, RefLoss: -40, Gamma: 2}, 30, 40, 50)
	// unsuccessful packets widen the searched distance range
	records = append(records,
		packet.Record{PacketID: 10, Distance: 20},
		packet.Record{PacketID: 11, Distance: 60},
	)

	res, err := Optimize(context.Background(), records, WithGrid(Grid{
		RefDistanceStep: 1,
		RefLossMax:      0,
		RefLossMin:      -10,
		RefLossStep:     1,
	}))
	if err != nil {
		t.Fatalf("Failed to optimize: %v", err)
	}

	// rows 20..59, each with 11 losses; rows at 30, 40, 50 are still defined
	if got := res.Evaluated + res.Skipped; got != 40*11 {
		t.Errorf("Expected %d cells, got %d", 40*11, got)
	}
	if res.Model.RefDistance < 20 || res.Model.RefDistance >= 60 {
		t.Errorf("Reference distance %f outside searched range", res.Model.RefDistance)
	}
	for _, rec := range records {
		if want := res.Model.Loss(rec.Distance); rec.Modeled != want {
			t.Errorf("Packet %d: expected modeled loss %f, got %f", rec.PacketID, want, rec.Modeled)
		}
	}
}

func TestOptimize_SkipsDegenerateRows(t *testing.T) {
	records := []packet.Record{
		{PacketID: 1, Success: true, Distance: 50, Measured: -80},
		{PacketID: 2, Success: true, Distance: 50, Measured: -82},
		{PacketID: 3, Distance: 48},
		{PacketID: 4, Distance: 52},
	}

	res, err := Optimize(context.Background(), records)
	if err != nil {
		t.Fatalf("Failed to optimize: %v", err)
	}
	if res.Skipped != 161 {
		t.Errorf("Expected the row at 50m to be skipped (161 cells), got %d", res.Skipped)
	}
	if res.Evaluated != 3*161 {
		t.Errorf("Expected %d evaluated cells, got %d", 3*161, res.Evaluated)
	}
	if math.Abs(res.Model.Sigma-1) > 1e-9 {
		t.Errorf("Expected sigma 1, got %f", res.Model.Sigma)
	}
}

func TestOptimize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		records []packet.Record
		want    error
	}{
		{"no records", nil, ErrNoSamples},
		{"no successful records", []packet.Record{{Distance: 10}, {Distance: 90}}, ErrNoSamples},
		{"single distance", []packet.Record{{Success: true, Distance: 40}, {Success: true, Distance: 40}}, ErrNoCandidate},
		{"zero distance sample", []packet.Record{{Success: true, Distance: 0}, {Success: true, Distance: 10}}, ErrDegenerate},
		{"every row degenerate", []packet.Record{{Success: true, Distance: 40}, {Distance: 40.5}}, ErrNoCandidate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Optimize(context.Background(), tt.records)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestOptimize_NonFiniteDistance(t *testing.T) {
	for _, d := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		records := []packet.Record{
			{PacketID: 1, Success: true, Distance: 111, Measured: -80},
			{PacketID: 2, Success: true, Distance: 222, Measured: -90},
			{PacketID: 3, Distance: d},
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := Optimize(ctx, records)
		cancel()

		if !errors.Is(err, ErrDegenerate) {
			t.Errorf("Distance %v: expected ErrDegenerate, got %v", d, err)
		}
	}
}

func TestOptimize_NonFiniteMeasured(t *testing.T) {
	records := []packet.Record{
		{PacketID: 1, Success: true, Distance: 10, Measured: math.NaN()},
		{PacketID: 2, Success: true, Distance: 20, Measured: -90},
	}

	if _, err := Optimize(context.Background(), records); !errors.Is(err, ErrDegenerate) {
		t.Errorf("Expected ErrDegenerate, got %v", err)
	}
}

func TestOptimize_OverflowingDeviationNeverWins(t *testing.T) {
	records := []packet.Record{
		{PacketID: 1, Success: true, Distance: 10, Measured: 1e200},
		{PacketID: 2, Success: true, Distance: 20, Measured: -1e200},
	}
	grid := Grid{RefDistanceStep: 1, RefLossMax: 0, RefLossMin: -5, RefLossStep: 1}

	res, err := Optimize(context.Background(), records, WithGrid(grid))
	if !errors.Is(err, ErrNoCandidate) {
		t.Fatalf("Expected ErrNoCandidate, got %v (%+v)", err, res)
	}
}

func TestEvaluateRow_SkipsNonFiniteCells(t *testing.T) {
	samples := []sample{{distance: 10, measured: 1e200}, {distance: 20, measured: -1e200}}
	ks := []float64{0, -1, -2}

	row := evaluateRow(samples, 5, ks, make([]float64, len(samples)))
	if row.found {
		t.Errorf("Expected no cell to win, got %+v", row.model)
	}
	if row.skipped != len(ks) || row.evaluated != 0 {
		t.Errorf("Expected %d skipped and 0 evaluated, got %d and %d", len(ks), row.skipped, row.evaluated)
	}
}

func TestOptimize_SigmaMatchesAppliedRecords(t *testing.T) {
	truth := Model{RefDistance: 1, RefLoss: -40, Gamma: 2.7}
	records := synthetic(truth, distanceRange(12, 140, 3.7)...)
	for i := range records {
		records[i].Measured += 3 * math.Sin(float64(i)*1.3)
	}

	res, err := Optimize(context.Background(), records, WithWorkers(3))
	if err != nil {
		t.Fatalf("Failed to optimize: %v", err)
	}

	sigma, err := ShadowSigma(records)
	if err != nil {
		t.Fatalf("Failed to compute sigma: %v", err)
	}
	if sigma != res.Model.Sigma {
		t.Errorf("Expected sigma over applied records %v to equal search sigma %v", sigma, res.Model.Sigma)
	}
}

func TestOptimize_InvalidGrid(t *testing.T) {
	records := synthetic(Model{RefDistance: 1, RefLoss: -40, Gamma: 2}, 10, 20, 30)

	grids := []Grid{
		{RefDistanceStep: 0, RefLossMax: 0, RefLossMin: -10, RefLossStep: 1},
		{RefDistanceStep: 1, RefLossMax: 0, RefLossMin: -10, RefLossStep: 0},
		{RefDistanceStep: 1, RefLossMax: -20, RefLossMin: -10, RefLossStep: 1},
	}
	for _, g := range grids {
		if _, err := Optimize(context.Background(), records, WithGrid(g)); err == nil {
			t.Errorf("Expected error for grid %+v", g)
		}
	}
}

func TestOptimize_Cancelled(t *testing.T) {
	records := synthetic(Model{RefDistance: 1, RefLoss: -40, Gamma: 2}, distanceRange(1, 500, 5)...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Optimize(ctx, records)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestPickBest_FirstMinimumWins(t *testing.T) {
	rows := []rowResult{
		{skipped: 5},
		{found: true, evaluated: 5, model: Model{RefDistance: 2, RefLoss: -3, Sigma: 1.5}},
		{found: true, evaluated: 5, model: Model{RefDistance: 3, RefLoss: 0, Sigma: 1.5}},
		{found: true, evaluated: 5, model: Model{RefDistance: 4, RefLoss: -1, Sigma: 2}},
	}

	res, ok := pickBest(rows)
	if !ok {
		t.Fatal("Expected a winner")
	}
	if res.Model.RefDistance != 2 || res.Model.RefLoss != -3 {
		t.Errorf("Expected the first row with the minimum to win, got %+v", res.Model)
	}
	if res.Evaluated != 15 || res.Skipped != 5 {
		t.Errorf("Expected 15 evaluated and 5 skipped cells, got %d and %d", res.Evaluated, res.Skipped)
	}

	if _, ok = pickBest([]rowResult{{skipped: 3}}); ok {
		t.Error("Expected no winner when every row is skipped")
	}
}

func TestEvaluateRow_FirstMinimumWins(t *testing.T) {
	// With a single sample distance every anchor loss fits exactly, so all
	// cells tie at zero and the first loss scanned must be kept.
	samples := []sample{{distance: 100, measured: -80}, {distance: 100, measured: -80}}
	terms := make([]float64, len(samples))

	row := evaluateRow(samples, 10, []float64{-70, -60, -50}, terms)
	if !row.found || row.evaluated != 3 {
		t.Fatalf("Unexpected row result %+v", row)
	}
	if row.model.RefLoss != -70 || row.model.Sigma != 0 {
		t.Errorf("Unexpected row winner %+v", row.model)
	}
}
