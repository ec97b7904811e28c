package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/binary-install/vsci/pkg/fetch"
	"github.com/binary-install/vsci/pkg/installer"
	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
)

// ReportFormat selects how a successful install is printed
type ReportFormat string

const (
	// ReportText prints styled label/value rows
	ReportText ReportFormat = "text"
	// ReportYAML prints the installer.Result as YAML
	ReportYAML ReportFormat = "yaml"
)

// Style definitions
var (
	// Color profile detection
	profile = colorprofile.Detect(os.Stdout, os.Environ())

	// Styles with adaptive colors based on terminal capabilities
	headerStyle = func() lipgloss.Style {
		if profile == colorprofile.TrueColor || profile == colorprofile.ANSI256 {
			return lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("42"))
		}
		return lipgloss.NewStyle().Bold(true)
	}()

	labelStyle = func() lipgloss.Style {
		if profile == colorprofile.TrueColor || profile == colorprofile.ANSI256 {
			return lipgloss.NewStyle().
				Foreground(lipgloss.Color("241")).
				Width(14)
		}
		return lipgloss.NewStyle().Width(14)
	}()
)

func parseReportFormat(s string) (ReportFormat, error) {
	switch ReportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case ReportText:
		return ReportText, nil
	case ReportYAML:
		return ReportYAML, nil
	}
	return "", fmt.Errorf("invalid --report %q: must be text or yaml", s)
}

// writeReport prints the result of a successful install
func writeReport(w io.Writer, format ReportFormat, res *installer.Result) error {
	if format == ReportYAML {
		out, err := yaml.Marshal(res)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = w.Write(out)
		return err
	}

	rows := [][2]string{
		{"install dir", res.InstallDir},
		{"executable", res.Executable},
		{"downloaded", formatBytes(res.Bytes)},
		{"entries", fmt.Sprint(res.Entries)},
	}

	fmt.Fprintln(w, headerStyle.Render("Installed vscode-server "+res.Version))
	for _, row := range rows {
		fmt.Fprintln(w, "  "+labelStyle.Render(row[0])+row[1])
	}
	return nil
}

// newProgressPrinter reports download progress on a single line of w
func newProgressPrinter(w io.Writer) fetch.ProgressFunc {
	lastPercent := -1
	return func(downloaded, total int64) {
		if total <= 0 {
			return
		}
		percent := int(downloaded * 100 / total)
		if percent == lastPercent {
			return
		}
		lastPercent = percent
		fmt.Fprintf(w, "\r%3d%% (%s/%s)", percent, formatBytes(downloaded), formatBytes(total))
		if downloaded >= total {
			fmt.Fprintln(w)
		}
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
