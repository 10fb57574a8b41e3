package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roman-kulish/lora-calibration/internal/geo"
	"github.com/roman-kulish/lora-calibration/internal/packet"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError rolls back the transaction unless it was committed.
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) && *err == nil {
		*err = rErr
	}
}

func toConfigData(config any) (sql.NullString, error) {
	var configData sql.NullString
	if config == nil {
		return configData, nil
	}

	switch c := config.(type) {
	case string:
		configData.String = c
	case []byte:
		configData.String = string(c)
	default:
		p, err := json.Marshal(config)
		if err != nil {
			return configData, fmt.Errorf("marshaling config: %w", err)
		}
		configData.String = string(p)
	}
	configData.Valid = true

	return configData, nil
}

// toRecordData converts a record to its row. Receive fields are NULL for
// packets that were never received.
func toRecordData(runID int64, r *packet.Record) *recordData {
	return &recordData{
		RunID:        runID,
		PacketID:     r.PacketID,
		Success:      r.Success,
		TxLatitude:   r.Tx.Latitude,
		TxLongitude:  r.Tx.Longitude,
		TxPower:      r.TxPower,
		RxLatitude:   sql.NullFloat64{Float64: r.Rx.Latitude, Valid: r.Success},
		RxLongitude:  sql.NullFloat64{Float64: r.Rx.Longitude, Valid: r.Success},
		Distance:     r.Distance,
		RSSI:         sql.NullFloat64{Float64: r.RSSI, Valid: r.Success},
		SNR:          sql.NullFloat64{Float64: r.SNR, Valid: r.Success},
		MeasuredLoss: sql.NullFloat64{Float64: r.Measured, Valid: r.Success},
		ModeledLoss:  r.Modeled,
	}
}

func fromRecordData(d *recordData) packet.Record {
	return packet.Record{
		PacketID: d.PacketID,
		Success:  d.Success,
		Tx:       geo.Point{Latitude: d.TxLatitude, Longitude: d.TxLongitude},
		TxPower:  d.TxPower,
		Rx:       geo.Point{Latitude: d.RxLatitude.Float64, Longitude: d.RxLongitude.Float64},
		Distance: d.Distance,
		RSSI:     d.RSSI.Float64,
		SNR:      d.SNR.Float64,
		Measured: d.MeasuredLoss.Float64,
		Modeled:  d.ModeledLoss,
	}
}
