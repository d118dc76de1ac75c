package cmd

import (
	"fmt"

	"github.com/KaramelBytes/cplog-cli/internal/analysis"
	"github.com/KaramelBytes/cplog-cli/internal/dataset"
	"github.com/spf13/cobra"
)

var (
	limParams []string
	limSniff  bool
)

var limitsCmd = &cobra.Command{
	Use:   "limits <dir|files...>",
	Short: "Show merged specification limits and conflicts across logs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		params := c.Params
		if cmd.Flags().Changed("params") {
			params = limParams
		}
		sniff := c.Sniff || limSniff
		files, err := collectInputs(args, dataset.DiscoverOptions{Extensions: c.Extensions, Sniff: sniff})
		if err != nil {
			return err
		}
		batch, err := dataset.Load(cmd.Context(), files, dataset.LoadOptions{
			Targets:  params,
			Encoding: c.Encoding,
			MaxBytes: int64(c.MaxFileMB) << 20,
			Workers:  c.Workers,
			Root:     commonRoot(args),
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		ds := batch.Dataset
		fmt.Fprintf(out, "%-20s %14s %14s\n", "PARAMETER", "LOWER", "UPPER")
		for _, p := range ds.Params() {
			l, ok := ds.Limits(p)
			if !ok {
				continue
			}
			fmt.Fprintf(out, "%-20s %14s %14s\n", p, analysis.FormatBound(l.Lower), analysis.FormatBound(l.Upper))
		}
		for _, l := range ds.InvertedLimits() {
			fmt.Fprintf(out, "⚠ %s: lower %s exceeds upper %s\n", l.Parameter, analysis.FormatBound(l.Lower), analysis.FormatBound(l.Upper))
		}
		for _, cf := range batch.Conflicts {
			fmt.Fprintf(out, "⚠ %v\n", cf)
		}
		for _, sk := range batch.Skipped {
			fmt.Fprintf(out, "⚠ Skipped %s: %v\n", sk.File, sk.Err)
		}
		fmt.Fprintf(out, "✓ %d files, %d limit conflicts\n", len(batch.Parsed), len(batch.Conflicts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(limitsCmd)
	limitsCmd.Flags().StringSliceVarP(&limParams, "params", "p", nil, "parameters to show (default all)")
	limitsCmd.Flags().BoolVar(&limSniff, "sniff", false, "only read files whose header contains No.U")
}
