package notify

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiscus-tools/tr-hibiscus/internal/export"
)

// FormatSuccessMessage creates a success notification body.
func FormatSuccessMessage(summary *export.Summary, duration time.Duration) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Total: %d events\n", summary.Total))
	sb.WriteString(fmt.Sprintf("Exported: %d\n", summary.Exported))
	sb.WriteString(fmt.Sprintf("Filtered: %d\n", summary.Filtered()))
	if summary.DetailIncomplete > 0 {
		sb.WriteString(fmt.Sprintf("Incomplete details: %d\n", summary.DetailIncomplete))
	}
	if summary.OutputFile != "" {
		sb.WriteString(fmt.Sprintf("File: %s\n", filepath.Base(summary.OutputFile)))
	}
	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Second)))

	return sb.String()
}

// FormatFailureMessage creates a failure notification body.
func FormatFailureMessage(duration time.Duration, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Second)))
	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nError: %v", err))
	}

	return sb.String()
}
