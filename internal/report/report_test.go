package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"castrank/internal/groupcount"
	"castrank/internal/pipeline"
	"castrank/internal/ranksort"
	"castrank/internal/record"
	"castrank/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ranked = []record.Ranked{
	{Count: 3, Key: "bob"},
	{Count: 2, Key: "alice"},
	{Count: 1, Key: "carol"},
}

func TestRanking(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf).Ranking(ranked))

	out := buf.String()
	assert.NotContains(t, out, "\x1b[", "no escape codes when not writing to a terminal")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	for i, want := range []string{"1.", "2.", "3."} {
		assert.Contains(t, lines[i], want)
	}
	assert.Contains(t, lines[0], "bob")
	assert.Contains(t, lines[1], "alice")
	assert.Contains(t, lines[2], "carol")
}

func TestRanking_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf).Ranking(nil))
	assert.Contains(t, buf.String(), "no records")
}

func TestSummary(t *testing.T) {
	res := &pipeline.Result{
		RunID:      "run-1",
		Input:      "actors.tsv",
		ResultPath: "OutputDataForPartTwo",
		GroupStats: groupcount.Stats{Lines: 7, Valid: 6, Skipped: 1, Keys: 3},
		RankStats:  ranksort.Stats{Records: 3, First: 3, Last: 1},
		Duration:   1500 * time.Millisecond,
		Top:        ranked,
	}

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf).Summary(res, 2))
	out := buf.String()

	for _, want := range []string{"run-1", "actors.tsv", "OutputDataForPartTwo", "1.5s", "1 malformed line(s) skipped", "bob", "alice"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "carol", "only topN keys are listed")
}

func TestRuns(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	require.NoError(t, p.Runs(nil))
	assert.Contains(t, buf.String(), "no runs recorded")

	buf.Reset()
	require.NoError(t, p.Runs([]store.Run{{ID: "abc", Input: "a.tsv", CreatedAt: time.Now(), Records: 3, Total: 6}}))
	assert.Contains(t, buf.String(), "abc")
	assert.Contains(t, buf.String(), "3 keys, 6 total")
}
