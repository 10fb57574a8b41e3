package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/roman-kulish/lora-calibration/internal/geo"
	"github.com/roman-kulish/lora-calibration/internal/packet"
	"github.com/roman-kulish/lora-calibration/internal/pathloss"
	"github.com/roman-kulish/lora-calibration/internal/storage"
)

// latitudeAt returns the latitude that lies d meters north of the equator
// on the zero meridian.
func latitudeAt(d float64) string {
	return strconv.FormatFloat(d/geo.EarthRadius*180/math.Pi, 'f', -1, 64)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, tx, rx string) *Config {
	t.Helper()
	dir := t.TempDir()

	c := NewConfig()
	c.Input.TxFile = writeFile(t, dir, "tx.csv", tx)
	c.Input.RxFile = writeFile(t, dir, "rx.csv", rx)
	c.Reference = geo.Point{}
	c.Output.Directory = filepath.Join(dir, "out")
	c.Output.Width, c.Output.Height = 320, 240
	if err := c.Validate(); err != nil {
		t.Fatalf("Invalid test config: %v", err)
	}
	return c
}

func TestCalibrate_EndToEnd(t *testing.T) {
	tx := strings.Join([]string{
		"1," + latitudeAt(50) + ",0,x,14",
		"2,0,0,x,14",
		"3," + latitudeAt(500.5) + ",0,x,14",
	}, "\n")
	rx := "2," + latitudeAt(10) + ",0,x,-100,7.5\n"

	c := testConfig(t, tx, rx)
	c.Output.Database = filepath.Join(c.Output.Directory, "runs.sqlite")
	c.Output.MetricsFile = filepath.Join(t.TempDir(), "calibration.prom")

	out, err := Calibrate(context.Background(), c, testLogger())
	if err != nil {
		t.Fatalf("Failed to calibrate: %v", err)
	}

	wantSuccess := []bool{false, true, false}
	for i, r := range out.Records {
		if r.Success != wantSuccess[i] {
			t.Errorf("Record %d: expected success %v, got %v", i, wantSuccess[i], r.Success)
		}
	}
	if m := out.Records[1].Measured; m != -114 {
		t.Errorf("Expected measured loss -114, got %v", m)
	}
	if s := out.Search.Model.Sigma; s > 1e-9 {
		t.Errorf("Expected a single sample to fit exactly, got sigma %v", s)
	}

	if len(out.Bins) != 6 {
		t.Fatalf("Expected 6 bins, got %d", len(out.Bins))
	}
	if r, ok := out.Bins[0].Ratio(); !ok || r != 0.5 {
		t.Errorf("Bin 0: expected ratio 0.5, got %v (%v)", r, ok)
	}
	for i := 1; i <= 4; i++ {
		if _, ok := out.Bins[i].Ratio(); ok {
			t.Errorf("Bin %d: expected no data", i)
		}
	}
	if r, ok := out.Bins[5].Ratio(); !ok || r != 0 {
		t.Errorf("Bin 5: expected ratio 0, got %v (%v)", r, ok)
	}

	for _, name := range []string{"calibration.png", "loss.png", recordsFile, binsFile} {
		if _, err := os.Stat(filepath.Join(c.Output.Directory, name)); err != nil {
			t.Errorf("Expected output %s: %v", name, err)
		}
	}

	bins, err := os.ReadFile(filepath.Join(c.Output.Directory, binsFile))
	if err != nil {
		t.Fatalf("Failed to read bins: %v", err)
	}
	if !strings.Contains(string(bins), "\n0,0,100,2,1,0.5\n") || !strings.Contains(string(bins), "\n1,100,200,0,0,\n") {
		t.Errorf("Unexpected bins.csv:\n%s", bins)
	}

	metricsText, err := os.ReadFile(c.Output.MetricsFile)
	if err != nil {
		t.Fatalf("Failed to read metrics: %v", err)
	}
	if !strings.Contains(string(metricsText), `calibration_records{outcome="received"} 1`) {
		t.Errorf("Expected received gauge in metrics:\n%s", metricsText)
	}

	if out.RunID == 0 {
		t.Fatal("Expected a stored run")
	}
	store := storage.NewSqliteStore(c.Output.Database)
	defer store.Close()

	stored, err := store.Bins(context.Background(), out.RunID)
	if err != nil {
		t.Fatalf("Failed to read stored bins: %v", err)
	}
	if len(stored) != len(out.Bins) {
		t.Errorf("Expected %d stored bins, got %d", len(out.Bins), len(stored))
	}
	model, err := store.Model(context.Background(), out.RunID)
	if err != nil {
		t.Fatalf("Failed to read stored model: %v", err)
	}
	if *model != out.Search.Model {
		t.Errorf("Expected stored model %+v, got %+v", out.Search.Model, *model)
	}
}

func TestCalibrate_JPEGWithoutExport(t *testing.T) {
	c := testConfig(t,
		"1,0,0,x,14\n2,0,0,x,14\n",
		"1,"+latitudeAt(20)+",0,x,-90,2\n2,"+latitudeAt(80)+",0,x,-110,-3\n")
	c.Output.Format = ImageJPEG
	c.Output.Export = false

	if _, err := Calibrate(context.Background(), c, testLogger()); err != nil {
		t.Fatalf("Failed to calibrate: %v", err)
	}

	entries, err := os.ReadDir(c.Output.Directory)
	if err != nil {
		t.Fatalf("Failed to list output: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if got := strings.Join(names, ","); got != "calibration.jpeg,loss.jpeg" {
		t.Errorf("Unexpected outputs %q", got)
	}
}

func TestCalibrate_NothingReceived(t *testing.T) {
	c := testConfig(t, "1,"+latitudeAt(30)+",0,x,14\n", "9,0,0,x,-90,3\n")

	_, err := Calibrate(context.Background(), c, testLogger())
	if !errors.Is(err, pathloss.ErrNoSamples) {
		t.Errorf("Expected ErrNoSamples, got %v", err)
	}
}

func TestCalibrate_MalformedInput(t *testing.T) {
	tests := []struct {
		name   string
		tx, rx string
	}{
		{"text latitude", "1,north,0,x,14\n", "1,0,0,x,-90,3\n"},
		{"NaN latitude", "1,0.001,0,x,14\n2,0.002,0,x,14\n3,NaN,0,x,14\n", "1,0,0,x,-90,3\n2,0,0,x,-95,3\n"},
		{"NaN rssi", "1,0.001,0,x,14\n2,0.002,0,x,14\n", "1,0,0,x,NaN,3\n2,0,0,x,-95,3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig(t, tt.tx, tt.rx)

			_, err := Calibrate(context.Background(), c, testLogger())
			var pErr *packet.ParseError
			if !errors.As(err, &pErr) {
				t.Errorf("Expected *packet.ParseError, got %v", err)
			}
		})
	}
}

func TestRun_MissingFile(t *testing.T) {
	c := testConfig(t, "", "")
	c.Input.TxFile = filepath.Join(t.TempDir(), "missing.csv")

	if err := Run(context.Background(), c, testLogger()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not exist error, got %v", err)
	}
}
