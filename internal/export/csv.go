// Package export writes analysis results to CSV, XLSX, PNG and Prometheus
// textfile formats.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/KaramelBytes/cplog-cli/internal/analysis"
	"github.com/KaramelBytes/cplog-cli/internal/cplog"
)

// CSVOptions configure the CSV writers.
type CSVOptions struct {
	// BOMPrefix adds a UTF-8 BOM so spreadsheet tools detect the encoding.
	BOMPrefix bool
}

func writeCSV(path string, headers []string, rows [][]string, opt CSVOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()
	if opt.BOMPrefix {
		if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("write BOM: %w", err)
		}
	}
	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	for i, r := range rows {
		if err := w.Write(r); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Close()
}

func num(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
func itoa(n int) string    { return strconv.Itoa(n) }
func pct(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

func optNum(f *float64) string {
	if f == nil {
		return ""
	}
	return num(*f)
}

// RecordRows lays records out one row per device with a column per
// parameter. Missing readings are written as NA, absent columns as empty.
func RecordRows(recs []cplog.Record, params []string) (headers []string, rows [][]string) {
	headers = append([]string{"File", "Lot", "Wafer", "Device"}, params...)
	rows = make([][]string, 0, len(recs))
	for _, r := range recs {
		row := make([]string, 0, len(headers))
		row = append(row, r.File, r.Lot, r.Wafer, strconv.FormatUint(uint64(r.Device), 10))
		for _, p := range params {
			v, ok := r.Value(p)
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, v.String())
		}
		rows = append(rows, row)
	}
	return headers, rows
}

// WriteRecordsCSV writes the raw merged records.
func WriteRecordsCSV(path string, src analysis.Source, params []string, opt CSVOptions) error {
	h, rows := RecordRows(src.Records(), params)
	return writeCSV(path, h, rows, opt)
}

var statsHeaders = []string{"Parameter", "Group", "Count", "Missing", "Mean", "Std", "Min", "Max"}

func statsRows(s *analysis.Summary) [][]string {
	var rows [][]string
	for _, p := range s.Params {
		for _, g := range p.Stats {
			if !g.Valid {
				rows = append(rows, []string{p.Parameter, g.Key, "0", itoa(g.Missing), "", "", "", ""})
				continue
			}
			rows = append(rows, []string{p.Parameter, g.Key, itoa(g.Count), itoa(g.Missing), num(g.Mean), num(g.Std), num(g.Min), num(g.Max)})
		}
	}
	return rows
}

// WriteStatsCSV writes per-group statistics for every parameter.
func WriteStatsCSV(path string, s *analysis.Summary, opt CSVOptions) error {
	return writeCSV(path, statsHeaders, statsRows(s), opt)
}

var yieldHeaders = []string{"Parameter", "Group", "Lower", "Upper", "Total", "Passed", "Failed", "Yield %"}

func yieldRows(s *analysis.Summary) [][]string {
	var rows [][]string
	for _, p := range s.Params {
		for _, y := range p.Yield {
			rows = append(rows, []string{p.Parameter, y.Key, optNum(p.Limits.Lower), optNum(p.Limits.Upper),
				itoa(y.Total), itoa(y.Passed), itoa(y.Failed), pct(y.YieldPct)})
		}
	}
	return rows
}

// WriteYieldCSV writes per-group yield for every parameter.
func WriteYieldCSV(path string, s *analysis.Summary, opt CSVOptions) error {
	return writeCSV(path, yieldHeaders, yieldRows(s), opt)
}

var capabilityHeaders = []string{"Parameter", "Group", "Count", "Mean", "Std", "Cp", "Cpk"}

func capabilityRows(s *analysis.Summary) [][]string {
	var rows [][]string
	for _, p := range s.Params {
		for _, c := range p.Capability {
			rows = append(rows, []string{p.Parameter, c.Key, itoa(c.Count), num(c.Mean), num(c.Std), optNum(c.Cp), optNum(c.Cpk)})
		}
	}
	return rows
}

// WriteCapabilityCSV writes Cp/Cpk for every parameter.
func WriteCapabilityCSV(path string, s *analysis.Summary, opt CSVOptions) error {
	return writeCSV(path, capabilityHeaders, capabilityRows(s), opt)
}
