package main

import (
	"fmt"

	"castrank/internal/logging"
	"castrank/internal/pipeline"
	"castrank/internal/report"
	"castrank/internal/store"

	"github.com/spf13/cobra"
)

func newTopCmd(a *app) *cobra.Command {
	var (
		dbPath string
		n      int
		runID  string
	)
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Print the top ranked keys of a stored run",
		Long: `Reads a ranking stored by "castrank run --sqlite <db>" and prints its first
N records. Without --run the most recent run is shown.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("limit") {
				n = a.cfg.Store.TopN
			}
			st, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			ranked, err := st.Top(cmd.Context(), runID, n)
			if err != nil {
				return err
			}
			return report.NewPrinter(cmd.OutOrStdout()).Ranking(ranked)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database (default: store.sqlite_path)")
	cmd.Flags().IntVarP(&n, "limit", "n", 10, "Number of records to print (0 = all)")
	cmd.Flags().StringVar(&runID, "run", "", "Run ID (default: latest run)")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs stored in the SQLite database, newest first",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return report.NewPrinter(cmd.OutOrStdout()).Runs(runs)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database (default: store.sqlite_path)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list (0 = all)")
	return cmd
}

func (a *app) openStore(dbPath string) (*store.Store, error) {
	if dbPath == "" {
		dbPath = a.cfg.Store.SQLitePath
	}
	if dbPath == "" {
		return nil, fmt.Errorf("%w: no database given (use --db or store.sqlite_path)", pipeline.ErrUsage)
	}
	return store.Open(a.resolve(dbPath), a.logs.Get(logging.CategoryStore))
}
