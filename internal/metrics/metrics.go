// Package metrics exposes calibration run statistics as Prometheus metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/lora-calibration/internal/pathloss"
)

const namespace = "calibration"

// Collector bundles the Prometheus metrics of a calibration run.
type Collector struct {
	gatherer prometheus.Gatherer

	RowsRead      *prometheus.CounterVec
	Records       *prometheus.GaugeVec
	GridCells     *prometheus.CounterVec
	SearchSeconds prometheus.Histogram
	Model         *prometheus.GaugeVec
}

// NewCollector registers the calibration metrics against reg, defaulting
// to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		RowsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Rows read from the packet logs, labeled by source (tx or rx).",
		}, []string{"source"}),
		Records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Correlated packet records, labeled by outcome (received or lost).",
		}, []string{"outcome"}),
		GridCells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_cells_total",
			Help:      "Grid cells visited by the model search, labeled by state (evaluated or skipped).",
		}, []string{"state"}),
		SearchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Wall time of the channel model search in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		Model: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_parameter",
			Help:      "Calibrated channel model parameters, labeled by parameter (ref_distance, ref_loss, gamma, sigma).",
		}, []string{"parameter"}),
	}

	collectors := []prometheus.Collector{c.RowsRead, c.Records, c.GridCells, c.SearchSeconds, c.Model}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	return c, nil
}

// ObserveRows counts the rows read from a source.
func (c *Collector) ObserveRows(source string, n int) {
	c.RowsRead.WithLabelValues(source).Add(float64(n))
}

// ObserveRecords sets the number of received and lost packets.
func (c *Collector) ObserveRecords(received, lost int) {
	c.Records.WithLabelValues("received").Set(float64(received))
	c.Records.WithLabelValues("lost").Set(float64(lost))
}

// ObserveSearch records the outcome of a model search.
func (c *Collector) ObserveSearch(res *pathloss.Result) {
	c.GridCells.WithLabelValues("evaluated").Add(float64(res.Evaluated))
	c.GridCells.WithLabelValues("skipped").Add(float64(res.Skipped))
	c.SearchSeconds.Observe(res.Elapsed.Seconds())

	c.Model.WithLabelValues("ref_distance").Set(res.Model.RefDistance)
	c.Model.WithLabelValues("ref_loss").Set(res.Model.RefLoss)
	c.Model.WithLabelValues("gamma").Set(res.Model.Gamma)
	c.Model.WithLabelValues("sigma").Set(res.Model.Sigma)
}

// WriteTextfile writes all gathered metrics to path in the text exposition
// format understood by the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("writing metrics to '%s': %w", path, err)
	}
	return nil
}
