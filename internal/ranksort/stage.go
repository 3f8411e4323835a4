// Package ranksort implements the second castrank stage: it reads the
// (count, key) records produced by the group-count stage, orders them by count
// with a pluggable comparator, and checks that what it writes really is in
// descending order.
package ranksort

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"castrank/internal/record"

	"go.uber.org/zap"
)

// EmitMode selects what is written next to each count.
type EmitMode string

const (
	// EmitKey writes the grouping key.
	EmitKey EmitMode = "key"
	// EmitSentinel writes Config.Sentinel in place of the key.
	EmitSentinel EmitMode = "sentinel"
)

// DefaultSentinel is written in EmitSentinel mode when no sentinel is configured.
const DefaultSentinel = "success"

// ParseEmitMode validates a textual emit mode.
func ParseEmitMode(s string) (EmitMode, error) {
	switch EmitMode(s) {
	case EmitKey, EmitSentinel:
		return EmitMode(s), nil
	case "":
		return EmitKey, nil
	}
	return "", fmt.Errorf("unknown emit mode %q (want %q or %q)", s, EmitKey, EmitSentinel)
}

// Config configures a rank-sort stage.
type Config struct {
	// Compare orders counts; nil means Descending.
	Compare Comparator
	Emit    EmitMode
	// Sentinel replaces the key in EmitSentinel mode.
	Sentinel string
	// OutputPartitions must be 1: the result is a single totally ordered file.
	OutputPartitions int
	// Observe, when set, receives every validated record with its grouping key.
	Observe func(record.Ranked)
}

// Stats summarises one run.
type Stats struct {
	Records int
	First   int64
	Last    int64
}

// Stage is a configured rank-sort stage. It holds no per-run state, so one
// Stage may run several times; each Run gets its own Validator.
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
		return nil, fmt.Errorf("rank sort: output partitions must be 1, got %d", cfg.OutputPartitions)
	}
	if cfg.Compare == nil {
		cfg.Compare = Descending
	}
	mode, err := ParseEmitMode(string(cfg.Emit))
	if err != nil {
		return nil, fmt.Errorf("rank sort: %w", err)
	}
	cfg.Emit = mode
	if cfg.Sentinel == "" {
		cfg.Sentinel = DefaultSentinel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{cfg: cfg, logger: logger}, nil
}

// Run reads the intermediate records from r and writes them to w in ranked
// order. A malformed input line or an order violation stops the run; nothing
// after the offending record is written.
func (s *Stage) Run(ctx context.Context, r io.Reader, w io.Writer) (Stats, error) {
	recs, err := readRanked(ctx, r)
	if err != nil {
		return Stats{}, err
	}
	s.logger.Debug("intermediate records loaded", zap.Int("records", len(recs)))

	s.sort(recs)

	var stats Stats
	v := NewValidator()
	bw := bufio.NewWriter(w)
	for i, rec := range recs {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		if err := v.Check(rec.Count); err != nil {
			s.logger.Error("descending order check failed",
				zap.Int("position", i+1),
				zap.Int64("count", rec.Count),
				zap.Int64("previous", v.Last()))
			if ferr := bw.Flush(); ferr != nil {
				return stats, errors.Join(err, fmt.Errorf("flush ranked output: %w", ferr))
			}
			return stats, err
		}
		if _, err := bw.WriteString(s.line(rec)); err != nil {
			return stats, fmt.Errorf("write ranked record: %w", err)
		}
		if s.cfg.Observe != nil {
			s.cfg.Observe(rec)
		}
		if i == 0 {
			stats.First = rec.Count
		}
		stats.Last = rec.Count
		stats.Records++
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("flush ranked output: %w", err)
	}

	s.logger.Info("rank sort complete",
		zap.Int("records", stats.Records),
		zap.Int64("max_count", stats.First),
		zap.Int64("min_count", stats.Last))
	return stats, nil
}

// sort orders recs by count only. The sort is stable, so records with equal
// counts keep the ascending key order they had in the intermediate file.
func (s *Stage) sort(recs []record.Ranked) {
	compare := s.cfg.Compare
	slices.SortStableFunc(recs, func(a, b record.Ranked) int {
		return compare(a.Count, b.Count)
	})
}

func (s *Stage) line(rec record.Ranked) string {
	if s.cfg.Emit == EmitSentinel {
		rec.Key = s.cfg.Sentinel
	}
	return record.FormatRanked(rec) + "\n"
}

func readRanked(ctx context.Context, r io.Reader) ([]record.Ranked, error) {
	var recs []record.Ranked
	sc := record.NewLineReader(r)
	line := 0
	for sc.Scan() {
		line++
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := record.ParseRanked(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("intermediate line %d: %w", line, err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read intermediate records: %w", err)
	}
	return recs, nil
}
