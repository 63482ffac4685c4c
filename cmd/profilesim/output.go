package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/profilesim/internal/evaluation"
	"github.com/kalambet/profilesim/internal/session"
	"github.com/kalambet/profilesim/internal/storage"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func styled(s lipgloss.Style, text string) string {
	if noColor {
		return text
	}
	return s.Render(text)
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, styled(successStyle, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, styled(errorStyle, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, styled(warningStyle, "⚠ "+msg))
}

func printStatus(w io.Writer, label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := styled(boldStyle, label+":")
	fmt.Fprintf(w, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, styled(stepStyle, "→ "+msg))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatTurn renders one turn as a single line.
func formatTurn(t session.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "turn %2d  accuracy %.3f  recall %.3f  disclosed %d",
		t.Number, t.Report.OverallAccuracy, t.Report.Recall, len(t.Plan.Facts))
	if t.Plan.Forgotten > 0 {
		fmt.Fprintf(&b, "  forgotten %d", t.Plan.Forgotten)
	}
	if n := len(t.Conflicts); n > 0 {
		fmt.Fprintf(&b, "  conflicts %d", n)
	}
	if t.ExtractionError != "" {
		b.WriteString("  " + styled(errorStyle, "extraction failed: "+t.ExtractionError))
	}
	return b.String()
}

func printResult(w io.Writer, res *session.Result, verbose bool) {
	fmt.Fprintf(w, "%s %s  persona %s  seed %d\n",
		styled(boldStyle, "Session"), shortID(res.ID), res.Persona, res.Seed)
	for _, t := range res.Turns {
		fmt.Fprintln(w, "  "+formatTurn(t))
		if verbose && t.Text != "" {
			for _, line := range strings.Split(t.Text, "\n") {
				fmt.Fprintln(w, "      "+styled(dimStyle, line))
			}
		}
	}
	final := res.FinalReport()
	switch {
	case res.Converged:
		fmt.Fprintln(w, styled(successStyle, fmt.Sprintf("✓ converged at turn %d, accuracy %.3f", res.ConvergedTurn, final.OverallAccuracy)))
	case len(res.Turns) == 0:
		fmt.Fprintln(w, styled(warningStyle, "⚠ no turns ran"))
	default:
		fmt.Fprintln(w, styled(warningStyle, fmt.Sprintf("⚠ did not converge after %d turns, accuracy %.3f", len(res.Turns), final.OverallAccuracy)))
	}
}

func printSummary(w io.Writer, s evaluation.Summary) {
	fmt.Fprintln(w, styled(boldStyle, "Summary"))
	printStatus(w, "Runs", "%d", s.Runs)
	printStatus(w, "Accuracy", "mean %.3f  sd %.3f  min %.3f  max %.3f", s.MeanAccuracy, s.StdDevAccuracy, s.MinAccuracy, s.MaxAccuracy)
	printStatus(w, "Recall", "mean %.3f", s.MeanRecall)
	printStatus(w, "Converged", "%d (%.0f%%)", s.ConvergedRuns, s.ConvergedRate*100)
	if s.ConvergedRuns > 0 {
		printStatus(w, "Turns to converge", "median %.1f  p90 %.1f", s.MedianTurns, s.P90Turns)
	}
	for _, kind := range []evaluation.ErrorKind{evaluation.Missed, evaluation.Hallucinated, evaluation.WrongValue} {
		if n := s.ErrorCounts[kind]; n > 0 {
			printStatus(w, string(kind), "%d", n)
		}
	}
}

func formatRun(r storage.Run) string {
	converged := "no"
	if r.Converged {
		converged = fmt.Sprintf("turn %d", r.ConvergedTurn)
	}
	return fmt.Sprintf("%s  %-20s seed %-6d turns %-3d accuracy %.3f  converged %-8s %s",
		styled(stepStyle, shortID(r.ID)),
		r.Persona,
		r.Seed,
		r.Turns,
		r.FinalAccuracy,
		converged,
		r.StartedAt.Local().Format("2006-01-02 15:04"),
	)
}
