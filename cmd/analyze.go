package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/KaramelBytes/cplog-cli/internal/analysis"
	cfgpkg "github.com/KaramelBytes/cplog-cli/internal/config"
	"github.com/KaramelBytes/cplog-cli/internal/cplog"
	"github.com/KaramelBytes/cplog-cli/internal/dataset"
	"github.com/KaramelBytes/cplog-cli/internal/export"
	"github.com/KaramelBytes/cplog-cli/internal/run"
	"github.com/KaramelBytes/cplog-cli/internal/store"
	"github.com/spf13/cobra"
)

// defaultOutputDir is used when a file output is requested without --output.
const defaultOutputDir = "cplog-output"

var (
	anaParams     []string
	anaGroup      string
	anaLower      float64
	anaUpper      float64
	anaFormats    []string
	anaOutput     string
	anaChart      bool
	anaMetrics    string
	anaDB         string
	anaWorkers    int
	anaEncoding   string
	anaSniff      bool
	anaExtensions []string
	anaStrict     bool
	anaOutlierThr float64
	anaQuiet      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <dir|files...>",
	Short: "Parse CP logs and report statistics, yield and Cp/Cpk",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		o := *c
		f := cmd.Flags()
		if f.Changed("params") {
			o.Params = anaParams
		}
		if f.Changed("group") {
			o.GroupBy = anaGroup
		}
		if f.Changed("format") {
			o.Formats = nil
			for _, fm := range anaFormats {
				o.Formats = append(o.Formats, strings.ToLower(strings.TrimSpace(fm)))
			}
		}
		if f.Changed("output") {
			o.OutputDir = anaOutput
		}
		if f.Changed("db") {
			o.DBPath = anaDB
		}
		if f.Changed("workers") {
			o.Workers = anaWorkers
		}
		if f.Changed("encoding") {
			o.Encoding = anaEncoding
		}
		if f.Changed("sniff") {
			o.Sniff = anaSniff
		}
		if f.Changed("ext") {
			o.Extensions = anaExtensions
		}
		if f.Changed("outlier-threshold") {
			o.OutlierThreshold = anaOutlierThr
		}
		if err := o.Validate(); err != nil {
			return err
		}
		by, err := analysis.ParseGroupBy(o.GroupBy)
		if err != nil {
			return err
		}
		overrides, err := limitOverrides(f.Changed("lower"), f.Changed("upper"), o.Params)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		files, err := collectInputs(args, dataset.DiscoverOptions{Extensions: o.Extensions, Sniff: o.Sniff})
		if err != nil {
			return err
		}

		total := len(files)
		var mu sync.Mutex
		done := 0
		batch, err := dataset.Load(cmd.Context(), files, dataset.LoadOptions{
			Targets:  o.Params,
			Encoding: o.Encoding,
			MaxBytes: int64(o.MaxFileMB) << 20,
			Workers:  o.Workers,
			Root:     commonRoot(args),
			Logger:   logger,
			Progress: func(path string, perr error) {
				if anaQuiet {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				done++
				if perr != nil {
					fmt.Fprintf(out, "[%d/%d] ⚠ %s: %v\n", done, total, filepath.Base(path), perr)
					return
				}
				fmt.Fprintf(out, "[%d/%d] ✓ %s\n", done, total, filepath.Base(path))
			},
		})
		if err != nil {
			if errors.Is(err, dataset.ErrNoFilesParsed) && batch != nil {
				for _, sk := range batch.Skipped {
					fmt.Fprintf(out, "⚠ Skipped %s: %v\n", sk.File, sk.Err)
				}
			}
			return err
		}
		if len(overrides) > 0 {
			batch.Dataset = batch.Dataset.WithOverrides(overrides)
		}
		if anaStrict && len(batch.Conflicts) > 0 {
			for _, cf := range batch.Conflicts {
				fmt.Fprintf(out, "⚠ %v\n", cf)
			}
			return fmt.Errorf("%d limit conflicts (--strict-conflicts)", len(batch.Conflicts))
		}

		sum := analysis.BuildSummary(batch, o.Params, analysis.SummaryOptions{
			GroupBy:          by,
			OutlierThreshold: o.OutlierThreshold,
		})
		outputs, err := writeOutputs(out, &o, batch, sum)
		if err != nil {
			return err
		}

		if o.DBPath != "" {
			st, err := store.Open(o.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.SaveBatch(cmd.Context(), batch, sum); err != nil {
				return fmt.Errorf("save run: %w", err)
			}
			if !anaQuiet {
				fmt.Fprintf(out, "✓ Stored run %s in %s\n", batch.ID, o.DBPath)
			}
		}
		if len(outputs) > 0 {
			m := run.New(args, batch, sum)
			for _, p := range outputs {
				m.AddOutput(p)
			}
			path, err := m.Save(outputDir(&o))
			if err != nil {
				return fmt.Errorf("write manifest: %w", err)
			}
			if !anaQuiet {
				fmt.Fprintf(out, "✓ Wrote manifest to %s\n", path)
			}
		}

		fmt.Fprintf(out, "✓ Parsed %d files (%d skipped), %d records, %d limit conflicts\n",
			len(batch.Parsed), len(batch.Skipped), batch.Dataset.Len(), len(batch.Conflicts))
		return nil
	},
}

// limitOverrides builds the --lower/--upper replacement. It applies to a
// single parameter only; a bound not given on the command line keeps the
// value merged from the logs.
func limitOverrides(lowerSet, upperSet bool, params []string) (map[string]cplog.Limits, error) {
	if !lowerSet && !upperSet {
		return nil, nil
	}
	if len(params) != 1 {
		return nil, fmt.Errorf("--lower/--upper need exactly one --params entry, got %d", len(params))
	}
	l := cplog.Limits{Parameter: params[0]}
	if lowerSet {
		v := anaLower
		l.Lower = &v
	}
	if upperSet {
		v := anaUpper
		l.Upper = &v
	}
	return map[string]cplog.Limits{params[0]: l}, nil
}

func outputDir(c *cfgpkg.Global) string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return defaultOutputDir
}

// writeOutputs renders every requested format and returns the files written.
func writeOutputs(out io.Writer, c *cfgpkg.Global, b *dataset.Batch, s *analysis.Summary) ([]string, error) {
	var written []string
	dir := outputDir(c)
	csvOpt := export.CSVOptions{BOMPrefix: c.CSVBOM}
	params := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		params = append(params, p.Parameter)
	}
	note := func(path string) {
		written = append(written, path)
		if !anaQuiet {
			fmt.Fprintf(out, "✓ Wrote %s\n", path)
		}
	}

	formats := c.Formats
	if len(formats) == 0 {
		formats = []string{"markdown"}
	}
	for _, format := range formats {
		switch strings.ToLower(format) {
		case "markdown":
			md := s.Markdown()
			if c.OutputDir == "" {
				fmt.Fprintln(out, md)
				continue
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return written, fmt.Errorf("create output dir: %w", err)
			}
			path := filepath.Join(dir, "report.md")
			if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
				return written, fmt.Errorf("write output: %w", err)
			}
			note(path)
		case "csv":
			jobs := []struct {
				name  string
				write func(string) error
			}{
				{"records.csv", func(p string) error { return export.WriteRecordsCSV(p, b.Dataset, params, csvOpt) }},
				{"stats.csv", func(p string) error { return export.WriteStatsCSV(p, s, csvOpt) }},
				{"yield.csv", func(p string) error { return export.WriteYieldCSV(p, s, csvOpt) }},
				{"capability.csv", func(p string) error { return export.WriteCapabilityCSV(p, s, csvOpt) }},
			}
			for _, j := range jobs {
				path := filepath.Join(dir, j.name)
				if err := j.write(path); err != nil {
					return written, err
				}
				note(path)
			}
		case "xlsx":
			path := filepath.Join(dir, "report.xlsx")
			if err := export.WriteWorkbook(path, s, b.Dataset, params); err != nil {
				return written, err
			}
			note(path)
		default:
			return written, fmt.Errorf("unsupported --format: %s (use markdown|csv|xlsx)", format)
		}
	}

	if anaChart {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return written, fmt.Errorf("create output dir: %w", err)
		}
		for _, p := range s.Params {
			if len(p.Yield) == 0 {
				continue
			}
			path := filepath.Join(dir, "yield_"+fileSafe(p.Parameter)+".png")
			if err := writeChart(path, p); err != nil {
				return written, err
			}
			note(path)
		}
	}
	if anaMetrics != "" {
		if err := export.WriteMetrics(anaMetrics, s); err != nil {
			return written, err
		}
		note(anaMetrics)
	}
	return written, nil
}

func writeChart(path string, p analysis.ParamSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart: %w", err)
	}
	if err := export.WriteYieldChart(f, p.Parameter, p.Yield); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fileSafe(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "param"
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringSliceVarP(&anaParams, "params", "p", nil, "parameters to analyze (comma-separated; default all)")
	analyzeCmd.Flags().StringVarP(&anaGroup, "group", "g", "", "group by: lot|wafer|lot_wafer|file|all (overrides config)")
	analyzeCmd.Flags().Float64Var(&anaLower, "lower", 0, "override the lower limit of the single --params entry (the upper limit from the logs is kept)")
	analyzeCmd.Flags().Float64Var(&anaUpper, "upper", 0, "override the upper limit of the single --params entry (the lower limit from the logs is kept)")
	analyzeCmd.Flags().StringSliceVarP(&anaFormats, "format", "f", nil, "output formats: markdown,csv,xlsx (repeatable)")
	analyzeCmd.Flags().StringVarP(&anaOutput, "output", "o", "", "output directory for report files")
	analyzeCmd.Flags().BoolVar(&anaChart, "chart", false, "write a yield bar chart (PNG) per parameter")
	analyzeCmd.Flags().StringVar(&anaMetrics, "metrics", "", "write Prometheus textfile metrics to this path")
	analyzeCmd.Flags().StringVar(&anaDB, "db", "", "store the run in this SQLite database")
	analyzeCmd.Flags().IntVar(&anaWorkers, "workers", 0, "parallel parsers (0 = number of CPUs)")
	analyzeCmd.Flags().StringVar(&anaEncoding, "encoding", "", "log encoding: utf-8|gbk|gb18030|big5|latin1")
	analyzeCmd.Flags().BoolVar(&anaSniff, "sniff", false, "only read files whose header contains No.U")
	analyzeCmd.Flags().StringSliceVar(&anaExtensions, "ext", nil, "file extensions to scan in directories")
	analyzeCmd.Flags().BoolVar(&anaStrict, "strict-conflicts", false, "fail when files declare different limits")
	analyzeCmd.Flags().Float64Var(&anaOutlierThr, "outlier-threshold", 0, "robust |z| threshold for outliers (MAD-based)")
	analyzeCmd.Flags().BoolVarP(&anaQuiet, "quiet", "q", false, "suppress progress output")
}
