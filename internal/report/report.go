// Package report renders run summaries and rankings for the terminal.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"castrank/internal/pipeline"
	"castrank/internal/record"
	"castrank/internal/store"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary = lipgloss.Color("#8BC34A") // Lime Green
	Muted   = lipgloss.Color("#6B7280")
	Warning = lipgloss.Color("#FFC107")
	Info    = lipgloss.Color("#2196F3")
)

// Styles holds the lipgloss styles used by a Printer.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Warn   lipgloss.Style
	Rank   lipgloss.Style
	Count  lipgloss.Style
	Key    lipgloss.Style
	Border lipgloss.Style
}

// Printer writes styled output to w. Colors are dropped automatically when w is
// not a terminal.
type Printer struct {
	w      io.Writer
	styles Styles
}

// NewPrinter creates a Printer whose color profile is detected from w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w: w,
		styles: Styles{
			Title:  r.NewStyle().Bold(true).Foreground(Primary),
			Label:  r.NewStyle().Foreground(Muted).Width(10),
			Value:  r.NewStyle(),
			Warn:   r.NewStyle().Foreground(Warning),
			Rank:   r.NewStyle().Foreground(Muted).Align(lipgloss.Right),
			Count:  r.NewStyle().Bold(true).Foreground(Info).Align(lipgloss.Right),
			Key:    r.NewStyle().PaddingLeft(2),
			Border: r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Muted).Padding(0, 1),
		},
	}
}

// Summary prints the outcome of a pipeline run with up to topN ranked keys.
func (p *Printer) Summary(res *pipeline.Result, topN int) error {
	var b strings.Builder
	b.WriteString(p.styles.Title.Render("castrank run complete"))
	b.WriteString("\n")
	p.row(&b, "run", res.RunID)
	p.row(&b, "input", res.Input)
	p.row(&b, "result", res.ResultPath)
	p.row(&b, "lines", strconv.Itoa(res.GroupStats.Lines))
	p.row(&b, "keys", strconv.Itoa(res.RankStats.Records))
	p.row(&b, "elapsed", res.Duration.Round(time.Millisecond).String())
	if res.GroupStats.Skipped > 0 {
		b.WriteString(p.styles.Warn.Render(fmt.Sprintf("%d malformed line(s) skipped", res.GroupStats.Skipped)))
		b.WriteString("\n")
	}

	top := res.Top
	if topN >= 0 && len(top) > topN {
		top = top[:topN]
	}
	if len(top) > 0 {
		b.WriteString("\n")
		b.WriteString(p.table(top))
	}

	_, err := fmt.Fprintln(p.w, p.styles.Border.Render(strings.TrimRight(b.String(), "\n")))
	return err
}

// Ranking prints ranked records as a table.
func (p *Printer) Ranking(ranked []record.Ranked) error {
	if len(ranked) == 0 {
		_, err := fmt.Fprintln(p.w, p.styles.Warn.Render("no records"))
		return err
	}
	_, err := fmt.Fprint(p.w, p.table(ranked))
	return err
}

// Runs prints stored run metadata, newest first.
func (p *Printer) Runs(runs []store.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(p.w, p.styles.Warn.Render("no runs recorded"))
		return err
	}
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(p.styles.Title.Render(r.ID))
		b.WriteString("  ")
		b.WriteString(p.styles.Label.UnsetWidth().Render(r.CreatedAt.Local().Format(time.DateTime)))
		fmt.Fprintf(&b, "  %d keys, %d total  %s\n", r.Records, r.Total, r.Input)
	}
	_, err := fmt.Fprint(p.w, b.String())
	return err
}

func (p *Printer) row(b *strings.Builder, label, value string) {
	b.WriteString(p.styles.Label.Render(label))
	b.WriteString(p.styles.Value.Render(value))
	b.WriteString("\n")
}

func (p *Printer) table(ranked []record.Ranked) string {
	rankWidth := len(strconv.Itoa(len(ranked))) + 1
	countWidth := 0
	for _, r := range ranked {
		countWidth = max(countWidth, len(strconv.FormatInt(r.Count, 10)))
	}
	rank := p.styles.Rank.Width(rankWidth)
	count := p.styles.Count.Width(countWidth + 1)

	var b strings.Builder
	for i, r := range ranked {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			rank.Render(strconv.Itoa(i+1)+"."),
			count.Render(strconv.FormatInt(r.Count, 10)),
			p.styles.Key.Render(r.Key),
		))
		b.WriteString("\n")
	}
	return b.String()
}
