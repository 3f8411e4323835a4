package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"castrank/internal/config"
	"castrank/internal/logging"
	"castrank/internal/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the state shared by all subcommands of one invocation.
type app struct {
	// Global flags
	configPath string
	verbose    bool
	workdir    string

	cfg  *config.Config
	logs *logging.Loggers
	log  *zap.Logger

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	rootCmd := &cobra.Command{
		Use:   "castrank <input>",
		Short: "Count how many records each key has and rank keys by count",
		Long: `castrank reads tab-separated records (key, value, value), counts the
records per key, then writes "count<TAB>key" lines sorted by count, highest
first, to the result file.

Running castrank with a single input path is the same as "castrank run <input>".`,
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logs != nil {
				a.logs.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOnce(cmd, opts, args[0])
		},
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", pipeline.ErrUsage, err)
	})

	// Global flags
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: ./"+config.DefaultConfigFile+" if present)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&a.workdir, "workdir", "w", "", "Directory relative paths are resolved against (default: current)")

	opts.bind(rootCmd)

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newWatchCmd(a))
	rootCmd.AddCommand(newTopCmd(a))
	rootCmd.AddCommand(newRunsCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	return rootCmd
}

// setup loads configuration and builds the loggers.
func (a *app) setup(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = a.resolve(config.DefaultConfigFile)
	} else {
		path = a.resolve(path)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logs, err := logging.New(cfg.Logging.Options(a.verbose))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logs = logs
	a.log = logs.Get(logging.CategoryPipeline)
	a.log.Debug("configuration loaded", zap.String("path", path), zap.String("command", cmd.Name()))
	return nil
}

// resolve makes a relative path relative to --workdir.
func (a *app) resolve(path string) string {
	if path == "" || a.workdir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.workdir, path)
}

// usageArgs marks argument count errors as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", pipeline.ErrUsage, err)
		}
		return nil
	}
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)

	c, err := cmd.ExecuteC()
	if err == nil {
		return pipeline.ExitOK
	}

	if errors.Is(err, pipeline.ErrUsage) {
		fmt.Fprintln(stderr, "Error:", err)
		fmt.Fprintln(stderr, c.UsageString())
	} else {
		if a.log != nil {
			a.log.Error("castrank failed", zap.Error(err))
		}
		fmt.Fprintln(stderr, "Error:", err)
	}
	return pipeline.ExitCode(err)
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
