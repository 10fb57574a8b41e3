package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/lora-calibration/internal/binning"
	"github.com/roman-kulish/lora-calibration/internal/csvtable"
	"github.com/roman-kulish/lora-calibration/internal/export"
	"github.com/roman-kulish/lora-calibration/internal/metrics"
	"github.com/roman-kulish/lora-calibration/internal/packet"
	"github.com/roman-kulish/lora-calibration/internal/pathloss"
	"github.com/roman-kulish/lora-calibration/internal/plot"
	"github.com/roman-kulish/lora-calibration/internal/storage"
)

const (
	calibrationImage = "calibration"
	lossImage        = "loss"
	recordsFile      = "records.csv"
	binsFile         = "bins.csv"
)

// Outcome holds everything a calibration run produced.
type Outcome struct {
	Records []packet.Record
	Search  *pathloss.Result
	Bins    []binning.Bin
	RunID   int64 // Zero unless a database is configured
}

// Run calibrates the channel model and writes the configured outputs.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	_, err := Calibrate(ctx, config, logger)
	return err
}

// Calibrate runs the whole pipeline: it correlates the packet logs, searches
// the channel model, bins the outcomes and writes every configured output.
func Calibrate(ctx context.Context, config *Config, logger *slog.Logger) (*Outcome, error) {
	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}

	tx, err := readTable(config.Input.TxFile)
	if err != nil {
		return nil, err
	}
	collector.ObserveRows("tx", len(tx))

	rx, err := readTable(config.Input.RxFile)
	if err != nil {
		return nil, err
	}
	collector.ObserveRows("rx", len(rx))

	logger.Info("read packet logs",
		slog.Group("tx", slog.String("path", config.Input.TxFile), slog.Int("rows", len(tx))),
		slog.Group("rx", slog.String("path", config.Input.RxFile), slog.Int("rows", len(rx))))

	records, err := packet.Correlate(tx, rx,
		packet.WithReference(config.Reference),
		packet.WithHeaderRows(config.Input.HeaderRows))
	if err != nil {
		return nil, fmt.Errorf("correlating packets: %w", err)
	}

	var received int
	for _, r := range records {
		if r.Success {
			received++
		}
	}
	collector.ObserveRecords(received, len(records)-received)

	logger.Info("correlated packets",
		slog.Int("transmitted", len(records)),
		slog.Int("received", received),
		slog.Int("lost", len(records)-received))

	logger.Info("searching channel model, hold on tight, it may take a while",
		slog.Int("workers", config.Search.Workers))

	res, err := pathloss.Optimize(ctx, records,
		pathloss.WithGrid(config.Search.Grid),
		pathloss.WithWorkers(config.Search.Workers))
	if err != nil {
		return nil, fmt.Errorf("searching channel model: %w", err)
	}
	collector.ObserveSearch(res)

	logger.Info("calibrated channel model",
		slog.Group("model",
			slog.String("refDistance", fmt.Sprintf("%0.2fm", res.Model.RefDistance)),
			slog.String("refLoss", fmt.Sprintf("%0.2fdB", res.Model.RefLoss)),
			slog.String("gamma", fmt.Sprintf("%0.4f", res.Model.Gamma)),
			slog.String("sigma", fmt.Sprintf("%0.4fdB", res.Model.Sigma)),
		),
		slog.Group("search",
			slog.Int("evaluated", res.Evaluated),
			slog.Int("skipped", res.Skipped),
			slog.Duration("elapsed", res.Elapsed),
		))

	bins, err := binning.Aggregate(records, config.Binning.Width)
	if err != nil {
		return nil, fmt.Errorf("binning packets: %w", err)
	}
	logBins(logger, bins)

	out := &Outcome{Records: records, Search: res, Bins: bins}

	if err = os.MkdirAll(config.Output.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	if err = renderCharts(config, out, logger); err != nil {
		return nil, err
	}

	if config.Output.Export {
		if err = exportCSV(config.Output.Directory, out, logger); err != nil {
			return nil, err
		}
	}

	if config.Output.Database != "" {
		if out.RunID, err = persist(ctx, config, out); err != nil {
			return nil, fmt.Errorf("storing run: %w", err)
		}
		logger.Info("stored run", slog.Int64("runID", out.RunID), slog.String("database", config.Output.Database))
	}

	if config.Output.MetricsFile != "" {
		if err = collector.WriteTextfile(config.Output.MetricsFile); err != nil {
			return nil, err
		}
		logger.Debug("wrote metrics", slog.String("path", config.Output.MetricsFile))
	}

	return out, nil
}

func readTable(path string) (csvtable.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening packet log: %w", err)
	}
	defer f.Close()

	t, err := csvtable.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading '%s': %w", path, err)
	}
	return t, nil
}

func logBins(logger *slog.Logger, bins []binning.Bin) {
	for _, b := range bins {
		attrs := []any{
			slog.Int("bin", b.Index),
			slog.String("range", fmt.Sprintf("%s - %s", plot.FormatMeters(b.Lower), plot.FormatMeters(b.Upper))),
			slog.Int("transmitted", b.Transmitted),
			slog.Int("received", b.Received),
		}
		if ratio, ok := b.Ratio(); ok {
			attrs = append(attrs, slog.String("ratio", fmt.Sprintf("%0.4f", ratio)))
		} else {
			attrs = append(attrs, slog.String("ratio", "no data"))
		}
		logger.Info("distance bin", attrs...)
	}
}

func renderCharts(config *Config, out *Outcome, logger *slog.Logger) error {
	renderer, err := plot.NewRenderer(plot.RenderConfig{
		Width:  config.Output.Width,
		Height: config.Output.Height,
	})
	if err != nil {
		return fmt.Errorf("creating chart renderer: %w", err)
	}

	charts := []struct {
		name  string
		chart *plot.Chart
	}{
		{calibrationImage, calibrationChart(out.Records, out.Search.Model, config.Output.ModelPoints)},
		{lossImage, lossChart(out.Bins, config.Binning.Width)},
	}

	for _, c := range charts {
		path := filepath.Join(config.Output.Directory, fmt.Sprintf("%s.%s", c.name, config.Output.Format))

		logger.Info("rendering chart",
			slog.Group("image",
				slog.String("destination", path),
				slog.String("format", string(config.Output.Format)),
			))

		img, err := renderer.Render(c.chart)
		if err != nil {
			return fmt.Errorf("rendering %s chart: %w", c.name, err)
		}
		if err = writeImage(path, config.Output.Format, img); err != nil {
			return fmt.Errorf("writing %s chart: %w", c.name, err)
		}
	}
	return nil
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	switch format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})

	default:
		err = fmt.Errorf("invalid image format: %s", format)
	}
	return err
}

func exportCSV(dir string, out *Outcome, logger *slog.Logger) error {
	files := []struct {
		name  string
		write func(f *os.File) error
	}{
		{recordsFile, func(f *os.File) error { return export.WriteRecords(f, out.Records) }},
		{binsFile, func(f *os.File) error { return export.WriteBins(f, out.Bins) }},
	}

	for _, file := range files {
		path := filepath.Join(dir, file.name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating '%s': %w", path, err)
		}
		err = errors.Join(file.write(f), f.Close())
		if err != nil {
			return fmt.Errorf("writing '%s': %w", path, err)
		}
		logger.Debug("exported results", slog.String("path", path))
	}
	return nil
}

func persist(ctx context.Context, config *Config, out *Outcome) (runID int64, err error) {
	store := storage.NewSqliteStore(config.Output.Database)
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	if runID, err = store.CreateRun(ctx, config.Input.TxFile, config.Input.RxFile, config); err != nil {
		return
	}
	if err = store.StoreRecords(ctx, runID, out.Records); err != nil {
		return
	}
	if err = store.StoreModel(ctx, runID, out.Search.Model); err != nil {
		return
	}
	err = store.StoreBins(ctx, runID, out.Bins)
	return
}
