package packet

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roman-kulish/lora-calibration/internal/csvtable"
)

// ParseError reports a malformed field in a transmit or receive table.
type ParseError struct {
	Table  string // "tx" or "rx"
	Row    int    // 0-based row index in the table
	Column int    // 0-based column index
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s row %d column %d: %v", e.Table, e.Row, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ErrMissingField is reported when a row is too short for a required column.
var ErrMissingField = errors.New("missing field")

// ErrNotFinite is reported for numeric fields holding NaN or an infinity.
var ErrNotFinite = errors.New("value is not a finite number")

type rowParser struct {
	table string
	index int
	row   csvtable.Row
}

func (p rowParser) field(col int) (string, error) {
	if col >= len(p.row) {
		return "", &ParseError{Table: p.table, Row: p.index, Column: col, Err: ErrMissingField}
	}
	return strings.TrimSpace(p.row[col]), nil
}

func (p rowParser) int64(col int) (int64, error) {
	s, err := p.field(col)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &ParseError{Table: p.table, Row: p.index, Column: col, Err: err}
	}
	return v, nil
}

func (p rowParser) float64(col int) (float64, error) {
	s, err := p.field(col)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ParseError{Table: p.table, Row: p.index, Column: col, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ParseError{Table: p.table, Row: p.index, Column: col, Err: ErrNotFinite}
	}
	return v, nil
}

// ParseTxEntry converts a transmit row at the given table index.
func ParseTxEntry(index int, row csvtable.Row) (e TxEntry, err error) {
	p := rowParser{table: "tx", index: index, row: row}

	if e.PacketID, err = p.int64(txColID); err != nil {
		return
	}
	if e.Position.Latitude, err = p.float64(txColLatitude); err != nil {
		return
	}
	if e.Position.Longitude, err = p.float64(txColLongitude); err != nil {
		return
	}
	e.Power, err = p.float64(txColPower)
	return
}

// ParseRxEntry converts a receive row at the given table index.
func ParseRxEntry(index int, row csvtable.Row) (e RxEntry, err error) {
	p := rowParser{table: "rx", index: index, row: row}

	if e.PacketID, err = p.int64(rxColID); err != nil {
		return
	}
	if e.Position.Latitude, err = p.float64(rxColLatitude); err != nil {
		return
	}
	if e.Position.Longitude, err = p.float64(rxColLongitude); err != nil {
		return
	}
	if e.RSSI, err = p.float64(rxColRSSI); err != nil {
		return
	}
	e.SNR, err = p.float64(rxColSNR)
	return
}
