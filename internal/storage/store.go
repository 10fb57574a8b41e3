package storage

import (
	"context"

	"github.com/roman-kulish/lora-calibration/internal/binning"
	"github.com/roman-kulish/lora-calibration/internal/packet"
	"github.com/roman-kulish/lora-calibration/internal/pathloss"
)

// Store provides an interface for persisting calibration runs.
// Each run keeps its per-packet records, the calibrated model and the
// distance bins derived from it. All operations that write to the database
// should be considered atomic.
type Store interface {
	// CreateRun registers a new calibration run and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - txSource: Name of the transmit log (e.g., file path)
	//   - rxSource: Name of the receive log
	//   - config: Optional run configuration. Can be string, []byte, or JSON-serializable object
	CreateRun(ctx context.Context, txSource, rxSource string, config any) (runID int64, err error)

	// Run retrieves a specific calibration run by its ID.
	Run(ctx context.Context, id int64) (run *Run, err error)

	// Runs returns all runs ordered by start time in ascending order.
	Runs(ctx context.Context) (runs []*Run, err error)

	// StoreRecords saves the per-packet records of a run in a single transaction.
	StoreRecords(ctx context.Context, runID int64, records []packet.Record) error

	// Records returns the records of a run in the order they were stored.
	Records(ctx context.Context, runID int64) ([]packet.Record, error)

	// StoreModel saves the calibrated model of a run, replacing any previous one.
	StoreModel(ctx context.Context, runID int64, m pathloss.Model) error

	// Model returns the calibrated model of a run.
	Model(ctx context.Context, runID int64) (*pathloss.Model, error)

	// StoreBins saves the distance bins of a run in a single transaction.
	StoreBins(ctx context.Context, runID int64, bins []binning.Bin) error

	// Bins returns the distance bins of a run ordered by index.
	Bins(ctx context.Context, runID int64) ([]binning.Bin, error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)
