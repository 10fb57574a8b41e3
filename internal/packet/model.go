package packet

import "github.com/roman-kulish/lora-calibration/internal/geo"

// Transmit log columns
const (
	txColID = iota
	txColLatitude
	txColLongitude
	_ // reserved
	txColPower
)

// Receive log columns
const (
	rxColID = iota
	rxColLatitude
	rxColLongitude
	_ // reserved
	rxColRSSI
	rxColSNR
)

// TxEntry is a packet logged by the mobile transmitter.
type TxEntry struct {
	PacketID int64
	Position geo.Point
	Power    float64 // Transmit power in dB
}

// RxEntry is a packet logged by the gateway.
type RxEntry struct {
	PacketID int64
	Position geo.Point
	RSSI     float64 // Received signal strength in dBm
	SNR      float64 // Signal-to-noise ratio in dB
}

// Record is the outcome of a single transmitted packet. Receive fields are
// zero when the packet was never received.
type Record struct {
	PacketID int64     `json:"packetID"`
	Success  bool      `json:"success"`
	Tx       geo.Point `json:"tx"`
	TxPower  float64   `json:"txPower"`      // dB
	Rx       geo.Point `json:"rx"`           // zero when unmatched
	Distance float64   `json:"distance"`     // meters
	RSSI     float64   `json:"rssi"`         // dBm
	SNR      float64   `json:"snr"`          // dB
	Measured float64   `json:"measuredLoss"` // measured path loss in dB
	Modeled  float64   `json:"modeledLoss"`  // modeled path loss in dB, set by calibration
}

// MeasuredLoss returns the path loss of a received packet. Below the noise
// floor (negative SNR) the SNR is added to compensate for the signal buried
// in noise.
func MeasuredLoss(rssi, txPower, snr float64) float64 {
	if snr < 0 {
		return rssi - txPower + snr
	}
	return rssi - txPower
}
