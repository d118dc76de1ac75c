package cmd

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/cplog-cli/internal/analysis"
	"github.com/KaramelBytes/cplog-cli/internal/cplog"
	"github.com/spf13/cobra"
)

var (
	insParams   []string
	insEncoding string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show metadata, parameters and limits of a single log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		enc := c.Encoding
		if cmd.Flags().Changed("encoding") {
			enc = insEncoding
		}
		out := cmd.OutOrStdout()
		res, err := cplog.ParseFile(args[0], cplog.Options{
			Targets:  insParams,
			Encoding: enc,
			MaxBytes: int64(c.MaxFileMB) << 20,
		})
		if err != nil {
			var fe *cplog.FormatError
			if errors.As(err, &fe) {
				fmt.Fprintf(out, "⚠ Not a usable CP log: %v\n", fe)
			}
			return err
		}

		m := res.Meta
		fmt.Fprintf(out, "File: %s\n", res.File)
		fmt.Fprintf(out, "Program: %s\nLot: %s\nWafer: %s\nDate: %s %s\n", m.Program, m.Lot, m.Wafer, m.Date, m.Time)
		fmt.Fprintf(out, "Records: %d\n", len(res.Records))
		fmt.Fprintf(out, "Parameters: %d\n\n", len(res.Params))
		fmt.Fprintf(out, "%-20s %14s %14s\n", "PARAMETER", "LOWER", "UPPER")
		for _, p := range res.Params {
			l := res.Limits[p]
			fmt.Fprintf(out, "%-20s %14s %14s\n", p, analysis.FormatBound(l.Lower), analysis.FormatBound(l.Upper))
		}
		for _, re := range res.RowErrors {
			fmt.Fprintf(out, "⚠ line %d: %d fields, header has %d; row skipped\n", re.Line, re.Fields, re.Want)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringSliceVarP(&insParams, "params", "p", nil, "parameters to keep (default all)")
	inspectCmd.Flags().StringVar(&insEncoding, "encoding", "", "log encoding: utf-8|gbk|gb18030|big5|latin1")
}
