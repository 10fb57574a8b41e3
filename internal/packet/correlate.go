// Package packet joins the transmitter and gateway packet logs into
// per-packet results.
package packet

import (
	"github.com/roman-kulish/lora-calibration/internal/csvtable"
	"github.com/roman-kulish/lora-calibration/internal/geo"
)

// DefaultReference is the gateway location of the original field deployment.
var DefaultReference = geo.Point{Latitude: 38.34741111, Longitude: -78.22621111}

type correlator struct {
	reference  geo.Point
	headerRows int
}

// Option configures Correlate.
type Option func(*correlator)

// WithReference sets the fallback location used to compute the distance of
// packets that were never received.
func WithReference(p geo.Point) Option {
	return func(c *correlator) {
		c.reference = p
	}
}

// WithHeaderRows skips the first n rows of both tables.
func WithHeaderRows(n int) Option {
	return func(c *correlator) {
		c.headerRows = max(n, 0)
	}
}

// Correlate produces one Record per transmit row, in transmit order.
//
// Each record starts unsuccessful with its distance measured from the
// fallback reference. Every receive row carrying the same packet ID marks
// the record successful and overwrites the receive fields, so with
// duplicate receive IDs the last matching row wins.
//
// Any malformed row in either table fails the whole correlation with a
// *ParseError.
func Correlate(tx, rx csvtable.Table, opts ...Option) ([]Record, error) {
	c := correlator{reference: DefaultReference}
	for _, opt := range opts {
		opt(&c)
	}

	rxEntries := make([]RxEntry, 0, max(len(rx)-c.headerRows, 0))
	for i := c.headerRows; i < len(rx); i++ {
		e, err := ParseRxEntry(i, rx[i])
		if err != nil {
			return nil, err
		}
		rxEntries = append(rxEntries, e)
	}

	records := make([]Record, 0, max(len(tx)-c.headerRows, 0))
	for i := c.headerRows; i < len(tx); i++ {
		e, err := ParseTxEntry(i, tx[i])
		if err != nil {
			return nil, err
		}
		records = append(records, c.match(e, rxEntries))
	}

	return records, nil
}

func (c *correlator) match(tx TxEntry, rx []RxEntry) Record {
	rec := Record{
		PacketID: tx.PacketID,
		Tx:       tx.Position,
		TxPower:  tx.Power,
		Distance: geo.Distance(tx.Position, c.reference),
	}

	// TODO: decide how duplicate gateway reports of one packet should be
	// merged; the last report currently replaces earlier ones.
	for _, e := range rx {
		if e.PacketID != tx.PacketID {
			continue
		}

		rec.Success = true
		rec.Rx = e.Position
		rec.RSSI = e.RSSI
		rec.SNR = e.SNR
		rec.Measured = MeasuredLoss(e.RSSI, tx.Power, e.SNR)
		rec.Distance = geo.Distance(tx.Position, e.Position)
	}

	return rec
}
