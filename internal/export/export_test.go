package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/cplog-cli/internal/analysis"
	"github.com/KaramelBytes/cplog-cli/internal/cplog"
	"github.com/KaramelBytes/cplog-cli/internal/dataset"
	"github.com/KaramelBytes/cplog-cli/internal/units"
)

func ptr(f float64) *float64 { return &f }

func fixture(t *testing.T) (*dataset.Dataset, *analysis.Summary) {
	t.Helper()
	mk := func(lot string, dev uint32, bv, id units.Value) cplog.Record {
		return cplog.Record{File: lot + ".txt", Lot: lot, Wafer: "W1", Device: dev,
			Values: map[string]units.Value{"BV": bv, "IDSS": id}}
	}
	res := &cplog.Result{
		File:   "a.txt",
		Params: []string{"BV", "IDSS"},
		Records: []cplog.Record{
			mk("L1", 1, units.Number(700), units.Number(1e-7)),
			mk("L1", 2, units.Number(680), units.Missing),
			mk("L1", 3, units.Number(750), units.Number(2e-7)),
			mk("L2", 1, units.Number(950), units.Number(3e-7)),
		},
		Limits: map[string]cplog.Limits{
			"BV":   {Parameter: "BV", Upper: ptr(900), Lower: ptr(660)},
			"IDSS": {Parameter: "IDSS", Upper: ptr(1e-6)},
		},
	}
	ds, conflicts := dataset.Merge([]*cplog.Result{res})
	b := &dataset.Batch{ID: uuid.New(), Dataset: ds, Parsed: []string{"a.txt"}, Conflicts: conflicts}
	return ds, analysis.BuildSummary(b, []string{"BV", "IDSS"}, analysis.SummaryOptions{GroupBy: analysis.ByLot})
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
	rows, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteRecordsCSV(t *testing.T) {
	ds, _ := fixture(t)
	path := filepath.Join(t.TempDir(), "out", "records.csv")
	require.NoError(t, WriteRecordsCSV(path, ds, []string{"BV", "IDSS", "VTH"}, CSVOptions{BOMPrefix: true}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}))

	rows := readCSV(t, path)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"File", "Lot", "Wafer", "Device", "BV", "IDSS", "VTH"}, rows[0])
	assert.Equal(t, []string{"L1.txt", "L1", "W1", "2", "680", "NA", ""}, rows[2])
}

func TestWriteSummaryCSVs(t *testing.T) {
	_, s := fixture(t)
	dir := t.TempDir()

	require.NoError(t, WriteStatsCSV(filepath.Join(dir, "stats.csv"), s, CSVOptions{}))
	stats := readCSV(t, filepath.Join(dir, "stats.csv"))
	assert.Equal(t, statsHeaders, stats[0])
	assert.Equal(t, []string{"BV", "L1", "3", "0", "710"}, stats[1][:5])

	require.NoError(t, WriteYieldCSV(filepath.Join(dir, "yield.csv"), s, CSVOptions{}))
	yield := readCSV(t, filepath.Join(dir, "yield.csv"))
	assert.Equal(t, []string{"BV", "L1", "660", "900", "3", "3", "0", "100.00"}, yield[1])
	assert.Equal(t, []string{"BV", "L2", "660", "900", "1", "0", "1", "0.00"}, yield[2])
	assert.Equal(t, []string{"IDSS", "L1", "", "1e-06", "3", "2", "1", "66.67"}, yield[3])

	require.NoError(t, WriteCapabilityCSV(filepath.Join(dir, "cpk.csv"), s, CSVOptions{}))
	cpk := readCSV(t, filepath.Join(dir, "cpk.csv"))
	require.Len(t, cpk, 3, "header, BV/L1, IDSS/L1")
	assert.Equal(t, "", cpk[2][5], "one-sided limits have no Cp")
}

func TestWriteWorkbook(t *testing.T) {
	ds, s := fixture(t)
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteWorkbook(path, s, ds, []string{"BV", "IDSS"}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{RawSheet, "BV Stats", "BV Yield", "BV Cpk", "IDSS Stats", "IDSS Yield", "IDSS Cpk"}, f.GetSheetList())

	rows, err := f.GetRows(RawSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "NA", rows[2][5])

	yield, err := f.GetRows("BV Yield")
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "3", "3", "0", "100"}, yield[1])
}

func TestSheetNames(t *testing.T) {
	n := sheetNames{}
	long := strings.Repeat("P", 40) + " Stats"
	a := n.next(long)
	b := n.next(long)
	assert.Len(t, []rune(a), maxSheetName)
	assert.Len(t, []rune(b), maxSheetName)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "I_O (x) Yield", n.next("I/O [x] Yield"))
}

func TestWriteYieldChart(t *testing.T) {
	_, s := fixture(t)
	p, _ := s.Param("BV")
	var buf bytes.Buffer
	require.NoError(t, WriteYieldChart(&buf, "BV", p.Yield))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
	assert.Error(t, WriteYieldChart(&buf, "BV", nil))
}

func TestWriteMetrics(t *testing.T) {
	_, s := fixture(t)
	path := filepath.Join(t.TempDir(), "cplog.prom")
	require.NoError(t, WriteMetrics(path, s))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)
	assert.Contains(t, text, `cplog_yield_percent{group="L1",parameter="BV"} 100`)
	assert.Contains(t, text, `cplog_yield_percent{group="L2",parameter="BV"} 0`)
	assert.Contains(t, text, "cplog_records_total 4")
	assert.Contains(t, text, "cplog_files_skipped_total 0")
	assert.Contains(t, text, `cplog_cpk{group="L1",parameter="BV"}`)
}
