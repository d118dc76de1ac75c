package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/cplog-cli/internal/analysis"
)

// RawSheet is the name of the worksheet holding every record.
const RawSheet = "Raw Data"

const maxSheetName = 31

// WriteWorkbook writes one XLSX file with the raw records and, for each
// parameter, a statistics, a yield and a capability sheet.
func WriteWorkbook(path string, s *analysis.Summary, src analysis.Source, params []string) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}
	names := sheetNames{}
	raw := names.next(RawSheet)
	if err := f.SetSheetName(f.GetSheetName(0), raw); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	headers := append([]string{"File", "Lot", "Wafer", "Device"}, params...)
	var rows [][]any
	for _, r := range src.Records() {
		row := []any{r.File, r.Lot, r.Wafer, r.Device}
		for _, p := range params {
			v, ok := r.Value(p)
			switch {
			case !ok:
				row = append(row, "")
			case v.OK:
				row = append(row, v.Num)
			default:
				row = append(row, "NA")
			}
		}
		rows = append(rows, row)
	}
	if err := writeSheet(f, raw, headers, rows, bold); err != nil {
		return err
	}

	for _, p := range s.Params {
		var stats, yield, cpk [][]any
		for _, g := range p.Stats {
			if !g.Valid {
				stats = append(stats, []any{g.Key, 0, g.Missing})
				continue
			}
			stats = append(stats, []any{g.Key, g.Count, g.Missing, g.Mean, g.Std, g.Min, g.Max})
		}
		for _, y := range p.Yield {
			yield = append(yield, []any{y.Key, y.Total, y.Passed, y.Failed, y.YieldPct})
		}
		for _, c := range p.Capability {
			cpk = append(cpk, []any{c.Key, c.Count, c.Mean, c.Std, cellNum(c.Cp), cellNum(c.Cpk)})
		}
		sheets := []struct {
			suffix  string
			headers []string
			rows    [][]any
		}{
			{" Stats", statsHeaders[1:], stats},
			{" Yield", []string{"Group", "Total", "Passed", "Failed", "Yield %"}, yield},
			{" Cpk", capabilityHeaders[1:], cpk},
		}
		for _, sh := range sheets {
			name := names.next(p.Parameter + sh.suffix)
			if _, err := f.NewSheet(name); err != nil {
				return fmt.Errorf("new sheet %s: %w", name, err)
			}
			if err := writeSheet(f, name, sh.headers, sh.rows, bold); err != nil {
				return err
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any, headerStyle int) error {
	hdr := make([]any, len(headers))
	for i, h := range headers {
		hdr[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &hdr); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("%s header style: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func cellNum(f *float64) any {
	if f == nil {
		return ""
	}
	return *f
}

// sheetNames hands out worksheet names that are legal and unique.
type sheetNames map[string]bool

var sheetNameReplacer = strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")")

func (n sheetNames) next(want string) string {
	base := truncateRunes(sheetNameReplacer.Replace(want), maxSheetName)
	name := base
	for i := 2; n[strings.ToLower(name)]; i++ {
		sfx := fmt.Sprintf("~%d", i)
		name = truncateRunes(base, maxSheetName-len(sfx)) + sfx
	}
	n[strings.ToLower(name)] = true
	return name
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
