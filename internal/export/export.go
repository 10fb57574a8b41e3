// Package export writes calibration results as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"

	"github.com/roman-kulish/lora-calibration/internal/binning"
	"github.com/roman-kulish/lora-calibration/internal/packet"
)

type recordRow struct {
	PacketID    int64   `csv:"packet_id"`
	Success     bool    `csv:"success"`
	TxLatitude  float64 `csv:"tx_latitude"`
	TxLongitude float64 `csv:"tx_longitude"`
	TxPower     float64 `csv:"tx_power_db"`
	RxLatitude  float64 `csv:"rx_latitude"`
	RxLongitude float64 `csv:"rx_longitude"`
	Distance    float64 `csv:"distance_m"`
	RSSI        float64 `csv:"rssi_dbm"`
	SNR         float64 `csv:"snr_db"`
	Measured    float64 `csv:"measured_loss_db"`
	Modeled     float64 `csv:"modeled_loss_db"`
}

type binRow struct {
	Index       int      `csv:"bin"`
	Lower       float64  `csv:"lower_m"`
	Upper       float64  `csv:"upper_m"`
	Transmitted int      `csv:"transmitted"`
	Received    int      `csv:"received"`
	Ratio       *float64 `csv:"reception_ratio"` // empty when nothing was transmitted
}

// WriteRecords writes one CSV row per record, preceded by a header.
func WriteRecords(w io.Writer, records []packet.Record) error {
	return encode(w, recordRow{}, len(records), func(i int) any {
		r := records[i]
		return recordRow{
			PacketID:    r.PacketID,
			Success:     r.Success,
			TxLatitude:  r.Tx.Latitude,
			TxLongitude: r.Tx.Longitude,
			TxPower:     r.TxPower,
			RxLatitude:  r.Rx.Latitude,
			RxLongitude: r.Rx.Longitude,
			Distance:    r.Distance,
			RSSI:        r.RSSI,
			SNR:         r.SNR,
			Measured:    r.Measured,
			Modeled:     r.Modeled,
		}
	})
}

// WriteBins writes one CSV row per bin, preceded by a header. Bins without
// transmitted packets have an empty reception ratio.
func WriteBins(w io.Writer, bins []binning.Bin) error {
	return encode(w, binRow{}, len(bins), func(i int) any {
		b := bins[i]
		row := binRow{
			Index:       b.Index,
			Lower:       b.Lower,
			Upper:       b.Upper,
			Transmitted: b.Transmitted,
			Received:    b.Received,
		}
		if ratio, ok := b.Ratio(); ok {
			row.Ratio = &ratio
		}
		return row
	})
}

func encode(w io.Writer, header any, n int, row func(i int) any) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if err := enc.EncodeHeader(header); err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := enc.Encode(row(i)); err != nil {
			return fmt.Errorf("encoding row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
