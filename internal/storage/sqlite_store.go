package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/lora-calibration/internal/binning"
	"github.com/roman-kulish/lora-calibration/internal/packet"
	"github.com/roman-kulish/lora-calibration/internal/pathloss"
)

// maxBatchRows bounds the rows of a single multi-row INSERT so a statement
// stays below the SQLite host parameter limit.
const maxBatchRows = 1000

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a new store backed by the Sqlite database at dbPath.
// Connections are opened lazily; the schema is created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateRun(ctx context.Context, txSource, rxSource string, config any) (runID int64, err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, time.Now().UTC(), txSource, rxSource, configData)
	if err != nil {
		err = fmt.Errorf("inserting run: %w", err)
		return
	}

	runID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting run ID: %w", err)
	}
	return
}

func (s *SqliteStore) Run(ctx context.Context, id int64) (run *Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var r Run
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&r.ID, &r.StartTime, &r.TxSource, &r.RxSource, &config); err != nil {
		err = fmt.Errorf("scanning run: %w", err)
		return
	}
	if config.Valid {
		r.Config = &config.String
	}

	return &r, nil
}

func (s *SqliteStore) Runs(ctx context.Context) (runs []*Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		err = fmt.Errorf("querying runs: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r Run
		var config sql.NullString
		if err = rows.Scan(&r.ID, &r.StartTime, &r.TxSource, &r.RxSource, &config); err != nil {
			err = fmt.Errorf("scanning run: %w", err)
			return
		}
		if config.Valid {
			r.Config = &config.String
		}
		runs = append(runs, &r)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreRecords(ctx context.Context, runID int64, records []packet.Record) (err error) {
	if len(records) == 0 {
		return
	}

	const valuesPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	return s.batchInsert(ctx, insertRecordSQL, valuesPlaceholder, len(records), func(i int, values []any) []any {
		data := toRecordData(runID, &records[i])
		return append(values,
			data.RunID,
			data.PacketID,
			data.Success,
			data.TxLatitude,
			data.TxLongitude,
			data.TxPower,
			data.RxLatitude,
			data.RxLongitude,
			data.Distance,
			data.RSSI,
			data.SNR,
			data.MeasuredLoss,
			data.ModeledLoss,
		)
	})
}

func (s *SqliteStore) Records(ctx context.Context, runID int64) (records []packet.Record, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRecordsSQL, runID)
	if err != nil {
		err = fmt.Errorf("querying records: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d recordData
		if err = rows.Scan(
			&d.PacketID,
			&d.Success,
			&d.TxLatitude,
			&d.TxLongitude,
			&d.TxPower,
			&d.RxLatitude,
			&d.RxLongitude,
			&d.Distance,
			&d.RSSI,
			&d.SNR,
			&d.MeasuredLoss,
			&d.ModeledLoss,
		); err != nil {
			err = fmt.Errorf("scanning record: %w", err)
			return
		}
		records = append(records, fromRecordData(&d))
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreModel(ctx context.Context, runID int64, m pathloss.Model) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, upsertModelSQL, runID, m.RefDistance, m.RefLoss, m.Gamma, m.Sigma); err != nil {
		return fmt.Errorf("storing model: %w", err)
	}
	return nil
}

func (s *SqliteStore) Model(ctx context.Context, runID int64) (*pathloss.Model, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	var m pathloss.Model
	if err = db.QueryRowContext(ctx, selectModelSQL, runID).Scan(&m.RefDistance, &m.RefLoss, &m.Gamma, &m.Sigma); err != nil {
		return nil, fmt.Errorf("scanning model: %w", err)
	}
	return &m, nil
}

func (s *SqliteStore) StoreBins(ctx context.Context, runID int64, bins []binning.Bin) error {
	if len(bins) == 0 {
		return nil
	}

	const valuesPlaceholder = "(?, ?, ?, ?, ?, ?)"

	return s.batchInsert(ctx, insertBinSQL, valuesPlaceholder, len(bins), func(i int, values []any) []any {
		b := bins[i]
		return append(values, runID, b.Index, b.Lower, b.Upper, b.Transmitted, b.Received)
	})
}

func (s *SqliteStore) Bins(ctx context.Context, runID int64) (bins []binning.Bin, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectBinsSQL, runID)
	if err != nil {
		err = fmt.Errorf("querying bins: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var b binning.Bin
		if err = rows.Scan(&b.Index, &b.Lower, &b.Upper, &b.Transmitted, &b.Received); err != nil {
			err = fmt.Errorf("scanning bin: %w", err)
			return
		}
		bins = append(bins, b)
	}
	err = rows.Err()
	return
}

// batchInsert inserts n rows in one transaction using multi-row INSERT
// statements of at most maxBatchRows rows. appendRow appends the values of
// row i.
func (s *SqliteStore) batchInsert(ctx context.Context, insertSQL, placeholder string, n int, appendRow func(i int, values []any) []any) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	for start := 0; start < n; start += maxBatchRows {
		end := min(start+maxBatchRows, n)

		var sb strings.Builder
		sb.WriteString(insertSQL)

		var values []any
		for i := start; i < end; i++ {
			if i > start {
				sb.WriteString(", ")
			}
			sb.WriteString(placeholder)
			values = appendRow(i, values)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting rows: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
