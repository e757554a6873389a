package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/enescakir/emoji"

	"github.com/workflow-cli/workflow/internal/jira"
)

type OutputOptions struct {
	Format string
}

type OutputManager struct {
	w io.Writer
}

func NewOutputManager(w io.Writer) *OutputManager {
	return &OutputManager{w: w}
}

// Output renders a download result as table, json or csv.
func (om *OutputManager) Output(result *jira.DownloadResult, options OutputOptions) error {
	var output string
	var err error

	switch options.Format {
	case "json":
		output, err = om.JSON(result)
	case "csv":
		output = om.CSV(result)
	case "table", "":
		output = om.Table(result)
	default:
		return fmt.Errorf("unsupported output format: %s", options.Format)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(om.w, output)
	return err
}

func (om *OutputManager) JSON(result *jira.DownloadResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

func (om *OutputManager) CSV(result *jira.DownloadResult) string {
	lines := []string{"Status,File,Error"}
	for _, path := range result.Downloaded {
		lines = append(lines, fmt.Sprintf("ok,%s,", escapeCSV(filepath.Base(path))))
	}
	for _, f := range result.Failed {
		lines = append(lines, fmt.Sprintf("failed,%s,%s", escapeCSV(f.Filename), escapeCSV(f.Error)))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (om *OutputManager) Table(result *jira.DownloadResult) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("%-8s %-40s %-60s", "STATUS", "FILE", "ERROR"))
	lines = append(lines, strings.Repeat("-", 110))

	for _, path := range result.Downloaded {
		lines = append(lines, fmt.Sprintf("%-8s %-40s %-60s", "ok", truncateString(filepath.Base(path), 40), ""))
	}
	for _, f := range result.Failed {
		lines = append(lines, fmt.Sprintf("%-8s %-40s %-60s", "failed",
			truncateString(f.Filename, 40),
			truncateString(f.Error, 60)))
	}

	return strings.Join(lines, "\n") + "\n"
}

// AttachmentTable lists attachments with their size and whether they count
// as log files.
func (om *OutputManager) AttachmentTable(attachments []jira.Attachment) error {
	var lines []string
	lines = append(lines, fmt.Sprintf("%-40s %-10s %-5s %-30s", "FILENAME", "SIZE", "LOG", "TYPE"))
	lines = append(lines, strings.Repeat("-", 90))

	for _, att := range attachments {
		isLog := ""
		if jira.IsLogFile(att.Filename) {
			isLog = "yes"
		}
		lines = append(lines, fmt.Sprintf("%-40s %-10s %-5s %-30s",
			truncateString(att.Filename, 40),
			FormatSize(att.Size),
			isLog,
			truncateString(att.MimeType, 30)))
	}

	_, err := fmt.Fprintln(om.w, strings.Join(lines, "\n"))
	return err
}

type SummaryPrinter struct {
	w io.Writer
}

func NewSummaryPrinter(w io.Writer) *SummaryPrinter {
	return &SummaryPrinter{w: w}
}

// PrintSummary prints a summary of a download run
func (sp *SummaryPrinter) PrintSummary(result *jira.DownloadResult) {
	ok := len(result.Downloaded)
	failed := len(result.Failed)
	total := ok + failed

	fmt.Fprintln(sp.w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintf(sp.w, "SUMMARY %s\n", result.Key)
	fmt.Fprintln(sp.w, strings.Repeat("=", 50))
	fmt.Fprintf(sp.w, "Attachments: %d\n", total)
	fmt.Fprintf(sp.w, "%s Downloaded: %d (%.1f%%)\n", emoji.CheckMarkButton, ok, percent(ok, total))
	if failed > 0 {
		fmt.Fprintf(sp.w, "%s Failed: %d of %d\n", emoji.CrossMark, failed, total)
		for _, f := range result.Failed {
			fmt.Fprintf(sp.w, "  - %s: %s\n", f.Filename, f.Error)
		}
	}
	if result.Extracted > 0 {
		fmt.Fprintf(sp.w, "%s Extracted files: %d\n", emoji.OpenFileFolder, result.Extracted)
	}
	fmt.Fprintf(sp.w, "Location: %s\n", result.BaseDir)
	fmt.Fprintf(sp.w, "Took: %s\n", result.Duration.Round(1e6))
}

// PrintClean reports what a clean run did.
func (sp *SummaryPrinter) PrintClean(result *jira.CleanResult) {
	if !result.DirExists {
		fmt.Fprintf(sp.w, "%s Nothing to clean\n", emoji.Information)
		return
	}

	info := result.DirInfo
	fmt.Fprintf(sp.w, "%s %s (%d files, %s)\n", emoji.FileFolder, info.Path, info.FileCount, FormatSize(info.Size))
	for _, e := range info.Entries {
		if e.IsDir {
			fmt.Fprintf(sp.w, "  %s/\n", e.Name)
		} else {
			fmt.Fprintf(sp.w, "  %s (%s)\n", e.Name, FormatSize(e.Size))
		}
	}

	switch {
	case result.ListOnly:
	case result.DryRun:
		fmt.Fprintf(sp.w, "[DRY RUN] Would delete %s\n", info.Path)
	case result.Deleted:
		fmt.Fprintf(sp.w, "%s Deleted %s\n", emoji.Wastebasket, info.Path)
	}
}

// ProgressPrinter returns a progress callback that writes one line per message.
func ProgressPrinter(w io.Writer) jira.ProgressFunc {
	return func(msg string) {
		fmt.Fprintln(w, msg)
	}
}

// FormatSize renders a byte count with binary units.
func FormatSize(n int64) string {
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

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Utility functions
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func escapeCSV(s string) string {
	if strings.Contains(s, ",") || strings.Contains(s, "\"") || strings.Contains(s, "\n") {
		s = strings.ReplaceAll(s, "\"", "\"\"")
		return "\"" + s + "\""
	}
	return s
}
