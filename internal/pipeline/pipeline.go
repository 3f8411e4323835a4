// Package pipeline runs the two castrank stages as one job: group-count over the
// input, rank-sort over its single output partition, then promotion of the
// ranked file to the result path and removal of the intermediate tree.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"castrank/internal/config"
	"castrank/internal/groupcount"
	"castrank/internal/logging"
	"castrank/internal/ranksort"
	"castrank/internal/record"
	"castrank/internal/workspace"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Exporter persists the ranked records of a successful run.
type Exporter interface {
	SaveRun(ctx context.Context, runID, input string, ranked []record.Ranked) error
}

// Result describes a successful run.
type Result struct {
	RunID      string
	Input      string
	ResultPath string
	GroupStats groupcount.Stats
	RankStats  ranksort.Stats
	Duration   time.Duration
	// Top holds the first store.top_n ranked records with their keys.
	Top []record.Ranked
}

// Pipeline orchestrates one or more runs with a fixed configuration.
type Pipeline struct {
	cfg      *config.Config
	logs     *logging.Loggers
	layout   workspace.Layout
	group    *groupcount.Stage
	exporter Exporter
	newID    func() string
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithExporter stores every successful run's ranking through e.
func WithExporter(e Exporter) Option {
	return func(p *Pipeline) { p.exporter = e }
}

// New validates cfg and prepares the stages.
func New(cfg *config.Config, logs *logging.Loggers, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "pipeline: invalid config")
	}
	if logs == nil {
		logs = logging.Nop()
	}
	group, err := groupcount.New(cfg.GroupCount.StageConfig(), logs.Get(logging.CategoryGroupCount))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: group count stage")
	}
	p := &Pipeline{
		cfg:    cfg,
		logs:   logs,
		layout: cfg.Workspace.Layout(),
		group:  group,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Layout returns the workspace paths this pipeline uses.
func (p *Pipeline) Layout() workspace.Layout { return p.layout }

// Run executes both stages over input. Stage 2 starts only after stage 1's
// partition is closed. On failure nothing is promoted and the intermediate tree
// is removed unless workspace.keep_intermediate is set.
func (p *Pipeline) Run(ctx context.Context, input string) (*Result, error) {
	start := time.Now()
	runID := p.newID()
	logs := p.logs.With(zap.String("run_id", runID))
	log := logs.Get(logging.CategoryPipeline)
	wsLog := logs.Get(logging.CategoryWorkspace)

	log.Info("pipeline: starting",
		zap.String("input", input),
		zap.String("root", p.layout.Root),
		zap.String("result", p.layout.ResultPath))

	if err := workspace.CheckInput(p.layout, input); err != nil {
		return nil, eris.Wrap(err, "pipeline: check input")
	}
	wsLog.Info("workspace: removing intermediate tree", zap.String("root", p.layout.Root))
	if err := workspace.Reset(p.layout); err != nil {
		wsLog.Error("workspace: reset failed", zap.Error(err))
		return nil, eris.Wrap(err, "pipeline: reset workspace")
	}

	succeeded := false
	defer func() {
		if p.cfg.Workspace.KeepIntermediate || succeeded {
			return
		}
		if err := workspace.Cleanup(p.layout); err != nil {
			wsLog.Warn("workspace: cleanup after failure", zap.Error(err))
		}
	}()

	res := &Result{RunID: runID, Input: input, ResultPath: p.layout.ResultPath}

	err := p.phase(log, "group_count", func() error {
		return runStage(input, p.layout.Stage1Dir, p.layout.PartName, func(r io.Reader, w io.Writer) error {
			stats, err := p.group.Run(ctx, r, w)
			res.GroupStats = stats
			return err
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: group count")
	}

	var ranked []record.Ranked
	observe := func(r record.Ranked) {
		if len(res.Top) < p.cfg.Store.TopN {
			res.Top = append(res.Top, r)
		}
		if p.exporter != nil {
			ranked = append(ranked, r)
		}
	}
	rankCfg := p.cfg.RankSort.StageConfig()
	rankCfg.Observe = observe
	rank, err := ranksort.New(rankCfg, logs.Get(logging.CategoryRankSort))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: rank sort stage")
	}

	err = p.phase(log, "rank_sort", func() error {
		return runStage(p.layout.Stage1Part(), p.layout.Stage2Dir, p.layout.PartName, func(r io.Reader, w io.Writer) error {
			stats, err := rank.Run(ctx, r, w)
			res.RankStats = stats
			return err
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: rank sort")
	}

	if err := workspace.Promote(p.layout.Stage2Part(), p.layout.ResultPath); err != nil {
		wsLog.Error("workspace: promote failed", zap.Error(err))
		return nil, eris.Wrap(err, "pipeline: promote result")
	}
	wsLog.Info("workspace: result promoted", zap.String("path", p.layout.ResultPath))

	if p.exporter != nil {
		err := p.phase(log, "export", func() error {
			return p.exporter.SaveRun(ctx, runID, input, ranked)
		})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: export")
		}
	}

	succeeded = true
	if !p.cfg.Workspace.KeepIntermediate {
		if err := workspace.Cleanup(p.layout); err != nil {
			wsLog.Error("workspace: cleanup failed", zap.Error(err))
			return nil, eris.Wrap(err, "pipeline: cleanup")
		}
	}

	res.Duration = time.Since(start)
	log.Info("pipeline: complete",
		zap.Int("keys", res.RankStats.Records),
		zap.Int("skipped", res.GroupStats.Skipped),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// phase times fn and logs its outcome.
func (p *Pipeline) phase(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err))
		return err
	}
	log.Info("pipeline: phase complete",
		zap.String("phase", name),
		zap.Int64("duration_ms", duration))
	return nil
}

// runStage opens inPath, creates the stage's partition file in outDir and runs
// fn between them. Both files are closed on every path; a failed close of the
// partition is reported because it may have lost buffered data.
func runStage(inPath, outDir, partName string, fn func(io.Reader, io.Writer) error) (err error) {
	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open stage input: %w", err)
	}
	defer in.Close()

	out, err := workspace.CreatePart(outDir, partName)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", out.Name(), cerr)
		}
	}()

	return fn(in, out)
}
