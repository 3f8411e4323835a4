// Package groupcount implements the first castrank stage: count how many valid
// source records share each grouping key and write the totals in ascending key
// order.
package groupcount

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"maps"
	"runtime"
	"slices"
	"strings"

	"castrank/internal/record"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkLines is the number of source lines handed to a worker at once.
const DefaultChunkLines = 8192

// Config configures a group-count stage.
type Config struct {
	// Workers bounds the goroutines aggregating chunks; 0 means GOMAXPROCS.
	Workers int
	// ChunkLines is the chunk size in lines; 0 means DefaultChunkLines.
	ChunkLines int
	// OutputPartitions must be 1: one output file, totally ordered by key.
	OutputPartitions int
}

// Stats summarises one run.
type Stats struct {
	Lines   int
	Valid   int
	Skipped int
	Keys    int
}

// Stage is a configured group-count stage.
type Stage struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and returns a stage.
func New(cfg Config, logger *zap.Logger) (*Stage, error) {
	if cfg.OutputPartitions == 0 {
		cfg.OutputPartitions = 1
	}
	if cfg.OutputPartitions != 1 {
		return nil, fmt.Errorf("group count: output partitions must be 1, got %d", cfg.OutputPartitions)
	}
	if cfg.Workers < 0 || cfg.ChunkLines < 0 {
		return nil, fmt.Errorf("group count: workers and chunk_lines must not be negative")
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.ChunkLines == 0 {
		cfg.ChunkLines = DefaultChunkLines
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{cfg: cfg, logger: logger}, nil
}

type chunk struct {
	first int // 1-based line number of lines[0]
	lines []string
}

type partial struct {
	totals  map[string]int64
	valid   int
	skipped int
}

// Run reads source records from r and writes "<count>\t<key>" lines to w, one per
// distinct key, ascending by key. Malformed source lines are skipped.
func (s *Stage) Run(ctx context.Context, r io.Reader, w io.Writer) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	chunks := make(chan chunk)
	parts := make([]partial, s.cfg.Workers)
	var lines int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(chunks)
		n, err := s.readChunks(gctx, r, chunks)
		lines = n
		return err
	})
	for i := range parts {
		p := &parts[i]
		p.totals = make(map[string]int64)
		g.Go(func() error {
			for c := range chunks {
				s.combine(c, p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	totals := make(map[string]int64)
	stats := Stats{Lines: lines}
	for _, p := range parts {
		for k, v := range p.totals {
			totals[k] += v
		}
		stats.Valid += p.valid
		stats.Skipped += p.skipped
	}
	stats.Keys = len(totals)

	if err := writeCounts(w, totals); err != nil {
		return stats, err
	}
	s.logger.Info("group count complete",
		zap.Int("lines", stats.Lines),
		zap.Int("valid", stats.Valid),
		zap.Int("skipped", stats.Skipped),
		zap.Int("keys", stats.Keys))
	return stats, nil
}

func (s *Stage) readChunks(ctx context.Context, r io.Reader, out chan<- chunk) (int, error) {
	sc := record.NewLineReader(r)
	n := 0
	cur := chunk{first: 1}
	send := func() error {
		select {
		case out <- cur:
		case <-ctx.Done():
			return ctx.Err()
		}
		cur = chunk{first: n + 1}
		return nil
	}
	for sc.Scan() {
		n++
		cur.lines = append(cur.lines, sc.Text())
		if len(cur.lines) == s.cfg.ChunkLines {
			if err := send(); err != nil {
				return n, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("read source records: %w", err)
	}
	if len(cur.lines) > 0 {
		if err := send(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// combine aggregates one chunk locally before folding it into the worker's totals.
func (s *Stage) combine(c chunk, p *partial) {
	incs := make([]record.Increment, 0, len(c.lines))
	for i, line := range c.lines {
		inc, ok := record.ParseSource(line)
		if !ok {
			p.skipped++
			s.logger.Debug("skipping malformed source record",
				zap.Int("line", c.first+i),
				zap.Int("fields", strings.Count(line, record.Delimiter)+1))
			continue
		}
		incs = append(incs, inc)
	}
	p.valid += len(incs)
	merge(p.totals, Aggregate(incs))
}

func writeCounts(w io.Writer, totals map[string]int64) error {
	bw := bufio.NewWriter(w)
	for _, k := range slices.Sorted(maps.Keys(totals)) {
		line := record.FormatRanked(record.Count{Key: k, Total: totals[k]}.Ranked())
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("write counts: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush counts: %w", err)
	}
	return nil
}
