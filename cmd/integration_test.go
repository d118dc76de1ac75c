package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/cplog-cli/internal/run"
)

const logTemplate = `Program name	CP_TEST
Lot number	%s
Wafer number	%s
Date	2024-05-01
No.U	X	Y	BVDSS1	IDSS1
LimitU	-	-	%s	1.000uA
LimitL	-	-	660.0V	
1	1	1	700.0V	0.100uA
2	2	1	680.0V	999.9
3	3	1	750.0V	0.200uA
Total	3
`

// resetFlags clears values and Changed state left by earlier invocations.
func resetFlags(c *cobra.Command) {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(fl *pflag.Flag) {
			if sv, ok := fl.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = fl.Value.Set(fl.DefValue)
			}
			fl.Changed = false
		})
	}
	reset(c.Flags())
	reset(c.PersistentFlags())
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd executes the root command with args and returns its output.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg, cfgErr = nil, nil
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func setupLogs(t *testing.T) (home, logs string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	logs = filepath.Join(home, "logs")
	require.NoError(t, os.MkdirAll(logs, 0o755))
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(logs, name), []byte(body), 0o644))
	}
	write("w01.txt", fmt.Sprintf(logTemplate, "LOT1", "W01", "900.0V"))
	write("w02.txt", fmt.Sprintf(logTemplate, "LOT1", "W02", "850.0V"))
	write("notes.txt", "operator notes, not a log\n")
	return home, logs
}

func TestCLI_AnalyzeMarkdownToStdout(t *testing.T) {
	_, logs := setupLogs(t)
	out, err := runCmd(t, "analyze", logs, "-p", "BVDSS1", "-g", "wafer")
	require.NoError(t, err)
	assert.Contains(t, out, "[3/3]")
	assert.Contains(t, out, "[YIELD] BVDSS1")
	assert.Contains(t, out, "| W01 | 3 | 3 | 0 | 100.00 |")
	assert.Contains(t, out, "[CONFLICTS]")
	assert.Contains(t, out, "✓ Parsed 2 files (1 skipped), 6 records, 1 limit conflicts")
}

func TestCLI_AnalyzeWritesFiles(t *testing.T) {
	home, logs := setupLogs(t)
	outDir := filepath.Join(home, "out")
	db := filepath.Join(home, "runs.db")
	metrics := filepath.Join(home, "cplog.prom")
	out, err := runCmd(t, "analyze", logs, "-f", "markdown,csv,xlsx", "-o", outDir, "--chart",
		"--metrics", metrics, "--db", db, "-q")
	require.NoError(t, err)
	assert.NotContains(t, out, "[1/3]", "quiet suppresses progress")

	for _, name := range []string{"report.md", "records.csv", "stats.csv", "yield.csv", "capability.csv",
		"report.xlsx", "yield_BVDSS1.png", "yield_IDSS1.png", "manifest.json"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(metrics)
	assert.NoError(t, err)

	m, err := run.Load(outDir)
	require.NoError(t, err)
	assert.Equal(t, 6, m.Records)
	assert.Len(t, m.Skipped, 1)
	assert.Len(t, m.Conflicts, 1)

	f, err := excelize.OpenFile(filepath.Join(outDir, "report.xlsx"))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "BVDSS1 Yield")

	hist, err := runCmd(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, hist, m.ID)

	hist, err = runCmd(t, "history", "--db", db, "--run", m.ID, "--param", "BVDSS1")
	require.NoError(t, err)
	assert.Contains(t, hist, "LOT1")
}

func TestCLI_AnalyzeOverridesAndStrict(t *testing.T) {
	_, logs := setupLogs(t)
	out, err := runCmd(t, "analyze", logs, "-p", "BVDSS1", "--upper", "720", "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "| LOT1 | 6 | 4 | 2 | 66.67 |")
	assert.Contains(t, out, "| BVDSS1 | 660 | 720 |", "declared lower limit survives an upper override")

	out, err = runCmd(t, "analyze", logs, "-p", "BVDSS1", "--lower", "690", "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "| BVDSS1 | 690 | 900 |")

	_, err = runCmd(t, "analyze", logs, "--upper", "720")
	assert.ErrorContains(t, err, "exactly one")

	_, err = runCmd(t, "analyze", logs, "--strict-conflicts", "-q")
	assert.ErrorContains(t, err, "limit conflicts")
}

func TestCLI_AnalyzeNothingParsed(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	bad := filepath.Join(home, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("nothing\n"), 0o644))
	out, err := runCmd(t, "analyze", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files parsed")
	assert.Contains(t, out, "Skipped")
}

func TestCLI_InspectAndLimits(t *testing.T) {
	_, logs := setupLogs(t)
	out, err := runCmd(t, "inspect", filepath.Join(logs, "w01.txt"))
	require.NoError(t, err)
	assert.Contains(t, out, "Lot: LOT1")
	assert.Contains(t, out, "Records: 3")
	assert.True(t, strings.Contains(out, "BVDSS1") && strings.Contains(out, "660"))

	_, err = runCmd(t, "inspect", filepath.Join(logs, "notes.txt"))
	assert.Error(t, err)

	out, err = runCmd(t, "limits", logs, "-p", "BVDSS1")
	require.NoError(t, err)
	assert.Contains(t, out, "900")
	assert.Contains(t, out, "limit conflict")
	assert.Contains(t, out, "✓ 2 files, 1 limit conflicts")
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	_, err := runCmd(t, "config", "set", "group_by", "wafer")
	require.NoError(t, err)
	_, err = runCmd(t, "config", "set", "group_by", "die")
	assert.Error(t, err)

	out, err := runCmd(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "group_by: wafer")
	_, err = os.Stat(filepath.Join(home, ".cplog", "config.yaml"))
	assert.NoError(t, err)
}
