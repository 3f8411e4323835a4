package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"castrank/internal/logging"
	"castrank/internal/pipeline"
	"castrank/internal/report"
	"castrank/internal/store"
	"castrank/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runOptions are the flags shared by the root, run and watch commands. Only
// flags set on the command line override the configuration.
type runOptions struct {
	emit             string
	result           string
	root             string
	workers          int
	keepIntermediate bool
	sqlite           string
	summary          int
	dumpConfig       bool
}

func (o *runOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.emit, "emit", "key", "Second column of the result: key or sentinel")
	cmd.Flags().StringVar(&o.result, "result", "", "Result file path (default: OutputDataForPartTwo)")
	cmd.Flags().StringVar(&o.root, "root", "", "Intermediate directory root (default: output/PartTwo)")
	cmd.Flags().IntVar(&o.workers, "workers", 0, "Group-count workers (0 = one per CPU)")
	cmd.Flags().BoolVar(&o.keepIntermediate, "keep-intermediate", false, "Keep the intermediate directory after a run")
	cmd.Flags().StringVar(&o.sqlite, "sqlite", "", "Also store the ranking in this SQLite database")
	cmd.Flags().IntVar(&o.summary, "summary", 0, "Print a summary with the top N keys after each run")
	cmd.Flags().BoolVar(&o.dumpConfig, "dump-config", false, "Print the effective configuration to stderr before running")
}

// apply copies explicitly set flags into the configuration and validates it.
func (o *runOptions) apply(cmd *cobra.Command, a *app) error {
	flags := cmd.Flags()
	cfg := a.cfg
	if flags.Changed("emit") {
		cfg.RankSort.Emit = o.emit
	}
	if flags.Changed("result") {
		cfg.Workspace.ResultPath = o.result
	}
	if flags.Changed("root") {
		cfg.Workspace.Root = o.root
	}
	if flags.Changed("workers") {
		cfg.GroupCount.Workers = o.workers
	}
	if flags.Changed("keep-intermediate") {
		cfg.Workspace.KeepIntermediate = o.keepIntermediate
	}
	if flags.Changed("sqlite") {
		cfg.Store.SQLitePath = o.sqlite
	}
	if flags.Changed("summary") && o.summary > cfg.Store.TopN {
		cfg.Store.TopN = o.summary
	}

	cfg.Workspace.Root = a.resolve(cfg.Workspace.Root)
	cfg.Workspace.ResultPath = a.resolve(cfg.Workspace.ResultPath)
	cfg.Store.SQLitePath = a.resolve(cfg.Store.SQLitePath)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrUsage, err)
	}

	if o.dumpConfig {
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.ErrOrStderr(), out)
	}
	return nil
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Run the group-count and rank-sort stages once",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOnce(cmd, opts, args[0])
		},
	}
	opts.bind(cmd)
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "watch <input>",
		Short: "Run once, then again every time the input file changes",
		Long: `Runs the pipeline over <input>, then watches the file and re-runs it after
each burst of changes (see watch.debounce). Failed runs are logged and watching
continues. Stop with Ctrl+C.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd, opts, args[0])
		},
	}
	opts.bind(cmd)
	return cmd
}

// newPipeline builds a pipeline from the effective configuration. The returned
// closer releases the SQLite store when one is configured.
func (a *app) newPipeline() (*pipeline.Pipeline, func(), error) {
	var popts []pipeline.Option
	closer := func() {}
	if path := a.cfg.Store.SQLitePath; path != "" {
		st, err := store.Open(path, a.logs.Get(logging.CategoryStore))
		if err != nil {
			return nil, nil, fmt.Errorf("open result store: %w", err)
		}
		popts = append(popts, pipeline.WithExporter(st))
		closer = func() {
			if err := st.Close(); err != nil {
				a.log.Warn("failed to close result store", zap.Error(err))
			}
		}
	}
	p, err := pipeline.New(a.cfg, a.logs, popts...)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return p, closer, nil
}

func (a *app) runOnce(cmd *cobra.Command, opts *runOptions, input string) error {
	if err := opts.apply(cmd, a); err != nil {
		return err
	}
	p, closer, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer closer()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := p.Run(ctx, a.resolve(input))
	if err != nil {
		return err
	}
	return a.printSummary(cmd, opts, res)
}

func (a *app) watch(cmd *cobra.Command, opts *runOptions, input string) error {
	if err := opts.apply(cmd, a); err != nil {
		return err
	}
	p, closer, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer closer()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	input = a.resolve(input)
	runAndReport := func(ctx context.Context) error {
		res, err := p.Run(ctx, input)
		if err != nil {
			return err
		}
		return a.printSummary(cmd, opts, res)
	}

	if err := runAndReport(ctx); err != nil {
		a.log.Error("initial run failed", zap.Error(err))
	}

	w, err := watch.New(input, a.cfg.GetDebounce(), runAndReport, a.logs.Get(logging.CategoryWatch))
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func (a *app) printSummary(cmd *cobra.Command, opts *runOptions, res *pipeline.Result) error {
	if opts.summary <= 0 {
		return nil
	}
	return report.NewPrinter(cmd.OutOrStdout()).Summary(res, opts.summary)
}
