package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KaramelBytes/cplog-cli/internal/analysis"
)

// NewRegistry builds a registry holding the gauges for one summary.
func NewRegistry(s *analysis.Summary) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	yield := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cplog_yield_percent",
		Help: "Share of devices within limits, per parameter and group.",
	}, []string{"parameter", "group"})
	cpk := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cplog_cpk",
		Help: "Process capability index Cpk, per parameter and group.",
	}, []string{"parameter", "group"})
	records := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cplog_records_total",
		Help: "Devices merged from all parsed logs.",
	})
	skipped := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cplog_files_skipped_total",
		Help: "Logs that could not be parsed.",
	})
	conflicts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cplog_limit_conflicts_total",
		Help: "Limit declarations that disagreed with an earlier file.",
	})
	for _, c := range []prometheus.Collector{yield, cpk, records, skipped, conflicts} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	records.Set(float64(s.Records))
	skipped.Set(float64(len(s.Skipped)))
	conflicts.Set(float64(len(s.Conflicts)))
	for _, p := range s.Params {
		for _, y := range p.Yield {
			yield.WithLabelValues(p.Parameter, y.Key).Set(y.YieldPct)
		}
		for _, c := range p.Capability {
			if c.Cpk != nil {
				cpk.WithLabelValues(p.Parameter, c.Key).Set(*c.Cpk)
			}
		}
	}
	return reg, nil
}

// WriteMetrics writes the summary gauges in the Prometheus text format,
// suitable for node_exporter's textfile collector.
func WriteMetrics(path string, s *analysis.Summary) error {
	reg, err := NewRegistry(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
