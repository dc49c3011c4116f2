// Package report composes per-run markdown reports from a run's record,
// resolved options, episode metrics, and event timeline.
package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/errors"
	"github.com/polonav/igpctl/internal/events"
	"github.com/polonav/igpctl/internal/health"
	"github.com/polonav/igpctl/internal/overrides"
	"github.com/polonav/igpctl/internal/results"
	"github.com/polonav/igpctl/internal/runner"
)

const timestampLayout = "2006-01-02 15:04:05"

// Generator composes reports for runs under a state layout.
type Generator struct {
	paths   *config.Paths
	checker *health.Checker
	events  *events.Logger
}

// New creates a report generator.
func New(paths *config.Paths, run runner.Runner) *Generator {
	return &Generator{
		paths:   paths,
		checker: health.NewChecker(paths, run),
		events:  events.NewLogger(paths),
	}
}

// Compose builds the markdown report for a run.
func (g *Generator) Compose(name string) (string, error) {
	record, err := config.LoadRunRecord(g.paths.RunsDir, name)
	if err != nil {
		return "", errors.RunNotFound(name)
	}
	runDir, err := g.paths.RunDir(name)
	if err != nil {
		return "", errors.ValidationError(err.Error())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", record.Name)
	fmt.Fprintf(&b, "Health: **%s**\n\n", g.checker.Summary(record))

	g.writeDetails(&b, record)
	g.writeOptions(&b, runDir)
	g.writeResults(&b, record, runDir)
	g.writeEvents(&b, record.Name)

	return b.String(), nil
}

// Write composes the report and saves it as report.md in the run
// directory, returning the file path.
func (g *Generator) Write(name string) (string, error) {
	markdown, err := g.Compose(name)
	if err != nil {
		return "", err
	}
	runDir, err := g.paths.RunDir(name)
	if err != nil {
		return "", errors.ValidationError(err.Error())
	}

	path := config.ReportPath(runDir)
	if err := os.WriteFile(path, []byte(markdown), 0644); err != nil {
		return "", errors.DataError("failed to write report", err)
	}
	return path, nil
}

func (g *Generator) writeDetails(b *strings.Builder, record *config.RunRecord) {
	b.WriteString("## Details\n\n")
	b.WriteString("| Field | Value |\n|-------|-------|\n")

	row := func(field, value string) {
		if value != "" {
			fmt.Fprintf(b, "| %s | %s |\n", field, value)
		}
	}

	row("Experiment", record.Experiment)
	row("Program", record.Program)
	row("Status", record.Status)
	row("Created", record.CreatedAt)
	row("GPU", fmt.Sprintf("%d", record.GPU))
	if record.PID > 0 {
		row("PID", fmt.Sprintf("%d", record.PID))
	}
	if record.ExitCode != nil {
		row("Exit code", fmt.Sprintf("%d", *record.ExitCode))
	}
	if record.Restarts > 0 {
		row("Restarts", fmt.Sprintf("%d", record.Restarts))
	}
	row("Manifest", record.Manifest)
	row("Policy", record.Policy)
	if record.Episodes > 0 {
		row("Episodes requested", fmt.Sprintf("%d", record.Episodes))
	}
	if record.GitRevision != "" {
		rev := record.GitRevision
		if record.GitDirty {
			rev += " (dirty)"
		}
		row("Git revision", rev)
	}
	row("Environment hash", record.EnvHash)
	b.WriteString("\n")
}

func (g *Generator) writeOptions(b *strings.Builder, runDir string) {
	data, err := os.ReadFile(config.OptionsPath(runDir))
	if err != nil {
		return
	}
	tree, err := overrides.LoadYAML(data)
	if err != nil {
		return
	}
	set, err := overrides.FromMap(tree)
	if err != nil || set.Len() == 0 {
		return
	}

	b.WriteString("## Options\n\n")
	b.WriteString("| Key | Value |\n|-----|-------|\n")
	for _, pair := range set.Pairs() {
		fmt.Fprintf(b, "| %s | %s |\n", pair.Key, pair.Raw)
	}
	b.WriteString("\n")
}

func (g *Generator) writeResults(b *strings.Builder, record *config.RunRecord, runDir string) {
	if record.Program != config.ProgramEval {
		return
	}
	episodes, err := results.ReadEpisodes(config.EpisodesPath(runDir))
	if err != nil || len(episodes) == 0 {
		return
	}
	summary := results.Summarize(episodes)

	b.WriteString("## Results\n\n")
	b.WriteString("| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(b, "| Episodes | %d |\n", summary.Episodes)
	fmt.Fprintf(b, "| Success rate | %.1f%% |\n", summary.SuccessRate*100)
	fmt.Fprintf(b, "| Mean SPL | %.3f |\n", summary.MeanSPL)
	fmt.Fprintf(b, "| Mean distance to goal | %.2f m |\n", summary.MeanDistance)
	fmt.Fprintf(b, "| Mean steps | %.0f |\n", summary.MeanSteps)
	if summary.MeanCheckedArea > 0 {
		fmt.Fprintf(b, "| Mean checked area | %.1f m2 |\n", summary.MeanCheckedArea)
	}
	b.WriteString("\n")
}

func (g *Generator) writeEvents(b *strings.Builder, name string) {
	evs, err := g.events.Events(name)
	if err != nil || len(evs) == 0 {
		return
	}

	b.WriteString("## Timeline\n\n")
	for _, ev := range evs {
		line := fmt.Sprintf("- %s `%s`", ev.Timestamp.Format(timestampLayout), ev.Type)
		if ev.Details != "" {
			line += ": " + ev.Details
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
}

// Render formats markdown for the terminal. Rendering problems fall
// back to the raw markdown so the report always prints.
func Render(markdown string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}
