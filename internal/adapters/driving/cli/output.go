package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	nameStyle   = lipgloss.NewStyle().Width(24)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true)
)

func statusLabel(s domain.CheckStatus) string {
	switch s {
	case domain.CheckPass:
		return passStyle.Render("PASS")
	case domain.CheckWarn:
		return warnStyle.Render("WARN")
	default:
		return failStyle.Render("FAIL")
	}
}

// printResult writes one check row: status, name, message and duration
func printResult(cmd *cobra.Command, r *domain.CheckResult) {
	cmd.Printf("  %s  %s %s %s\n",
		statusLabel(r.Status),
		nameStyle.Render(r.Name),
		r.Message,
		mutedStyle.Render("("+r.Duration.Round(time.Millisecond).String()+")"))
	if r.Status == domain.CheckFail && r.Error != "" && r.Error != r.Message {
		cmd.Printf("        %s\n", mutedStyle.Render(r.Error))
	}
}

// printReport writes every row followed by a summary line
func printReport(cmd *cobra.Command, title string, report *domain.Report) {
	cmd.Println(headerStyle.Render(title))
	for _, c := range report.Checks {
		printResult(cmd, c)
	}
	cmd.Println()
	cmd.Printf("%d passed, %d warnings, %d failed\n",
		report.Count(domain.CheckPass), report.Count(domain.CheckWarn), report.Count(domain.CheckFail))
}

// finish returns ErrCommandFailed when the report did not pass
func finish(report *domain.Report) error {
	if report.Passed() {
		return nil
	}
	return ErrCommandFailed
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal output")
	}
	cmd.Println(string(data))
	return nil
}

// singleReport wraps one check result so it reports like a full run
func singleReport(r *domain.CheckResult, started time.Time) *domain.Report {
	report := &domain.Report{StartedAt: started}
	report.Add(r)
	report.FinishedAt = time.Now()
	return report
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
