package storage

import (
	"database/sql"
	"time"
)

// Run describes a single calibration run.
type Run struct {
	ID        int64     `json:"ID"`
	StartTime time.Time `json:"startTime"`
	TxSource  string    `json:"txSource"`         // Transmit log the run was computed from
	RxSource  string    `json:"rxSource"`         // Receive log the run was computed from
	Config    *string   `json:"config,omitempty"` // Optional run configuration in JSON format
}

type recordData struct {
	RunID        int64
	PacketID     int64
	Success      bool
	TxLatitude   float64
	TxLongitude  float64
	TxPower      float64
	RxLatitude   sql.NullFloat64
	RxLongitude  sql.NullFloat64
	Distance     float64
	RSSI         sql.NullFloat64
	SNR          sql.NullFloat64
	MeasuredLoss sql.NullFloat64
	ModeledLoss  float64
}
