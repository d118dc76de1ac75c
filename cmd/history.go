package cmd

import (
	"fmt"

	"github.com/KaramelBytes/cplog-cli/internal/store"
	"github.com/spf13/cobra"
)

var (
	histDB    string
	histRun   string
	histParam string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored runs, or show the yield of one run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		db := c.DBPath
		if cmd.Flags().Changed("db") {
			db = histDB
		}
		if db == "" {
			return fmt.Errorf("no database: pass --db or set db_path")
		}
		st, err := store.Open(db)
		if err != nil {
			return err
		}
		defer st.Close()
		out := cmd.OutOrStdout()

		if histRun != "" {
			if histParam == "" {
				return fmt.Errorf("--run needs --param")
			}
			ys, err := st.Yield(cmd.Context(), histRun, histParam)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-24s %8s %8s %8s %8s\n", "GROUP", "TOTAL", "PASSED", "FAILED", "YIELD%")
			for _, y := range ys {
				fmt.Fprintf(out, "%-24s %8d %8d %8d %8.2f\n", y.Key, y.Total, y.Passed, y.Failed, y.YieldPct)
			}
			return nil
		}

		runs, err := st.Runs(cmd.Context())
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs stored")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s  %s  group=%s files=%d skipped=%d records=%d conflicts=%d\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.GroupBy, r.Parsed, r.Skipped, r.Records, r.Conflicts)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&histDB, "db", "", "SQLite database (overrides config db_path)")
	historyCmd.Flags().StringVar(&histRun, "run", "", "run ID to show")
	historyCmd.Flags().StringVar(&histParam, "param", "", "parameter whose yield to show (with --run)")
}
