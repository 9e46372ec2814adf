// package formatter renders task snapshots as a text progress log, CSV, or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/shared"
)

const maxLogTitle = 60

var statusMarks = map[models.ItemStatus]string{
	models.ItemPending:     "⏳",
	models.ItemChecking:    "🔍",
	models.ItemDownloading: "⬇️",
	models.ItemCompleted:   "✅",
	models.ItemSkipped:     "⏭️",
	models.ItemFailed:      "❌",
}

// ProgressLog renders a snapshot as the multi-line text log served by the progress endpoint.
func ProgressLog(snap models.Snapshot) string {
	t := snap.Task
	var b strings.Builder

	fmt.Fprintf(&b, "Task ID: %s\n", t.ID)
	fmt.Fprintf(&b, "Status: %s\n", t.Status)
	fmt.Fprintf(&b, "Progress: %d/%d\n", t.Finished(), t.Total)
	fmt.Fprintf(&b, "Current: %s\n", t.Activity)
	b.WriteString("\n")

	for i, it := range snap.Items {
		mark, ok := statusMarks[it.Status]
		if !ok {
			mark = "❓"
		}
		fmt.Fprintf(&b, "%2d. %s %s\n", i+1, mark, truncate(it.Title, maxLogTitle))

		switch {
		case it.Status == models.ItemDownloading && it.Progress > 0:
			fmt.Fprintf(&b, "     📊 %.1f%% | %s | ETA: %s\n", it.Progress, it.Rate, it.ETA)
		case it.Status == models.ItemFailed && it.Error != "":
			fmt.Fprintf(&b, "     ❌ Error: %s\n", it.Error)
		case it.Status == models.ItemSkipped && it.SkipReason != "":
			fmt.Fprintf(&b, "     ⏭️ %s\n", it.SkipReason)
		}
	}

	switch t.Status {
	case models.TaskCompleted:
		b.WriteString("\n🎉 All downloads finished! You can download the ZIP file now.\n")
	case models.TaskFailed:
		msg := t.ErrorMessage
		if msg == "" {
			msg = "Unknown error"
		}
		fmt.Fprintf(&b, "\n❌ Task failed: %s\n", msg)
	}

	return strings.TrimRight(b.String(), "\n")
}

// ExportToCSV converts a snapshot to CSV with one row per item:
// Index, Title, URL, Status, Filename, Size, Error
func ExportToCSV(snap models.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Index", "Title", "URL", "Status", "Filename", "Size", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, it := range snap.Items {
		detail := it.Error
		if it.Status == models.ItemSkipped {
			detail = it.SkipReason
		}
		record := []string{
			strconv.Itoa(it.Index + 1),
			it.Title,
			it.SourceRef,
			string(it.Status),
			it.Filename,
			strconv.FormatInt(it.TotalBytes, 10),
			detail,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// TasksToCSV converts task summaries to CSV with columns:
// ID, Target, Status, Total, Completed, Skipped, Failed, Created
func TasksToCSV(tasks []models.Task) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Target", "Status", "Total", "Completed", "Skipped", "Failed", "Created"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, t := range tasks {
		record := []string{
			t.ID,
			t.Target,
			string(t.Status),
			strconv.Itoa(t.Total),
			strconv.Itoa(t.Completed),
			strconv.Itoa(t.Skipped),
			strconv.Itoa(t.Failed),
			t.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// Summary renders a one-line description of a task, e.g. "completed 3/3 (1 skipped, 0 failed)".
func Summary(t models.Task) string {
	return fmt.Sprintf("%s %d/%d (%d skipped, %d failed)", t.Status, t.Finished(), t.Total, t.Skipped, t.Failed)
}

// ExportResult contains the paths of files created by [WriteExport]
type ExportResult struct {
	ItemsFile    string
	SnapshotFile string
}

// WriteExport writes a snapshot as {base}_items.csv and {base}_snapshot.json.
//
// Defaults to the task ID as the base filename.
func WriteExport(snap models.Snapshot, baseFilepath string) (*ExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = snap.Task.ID
	}

	csvData, err := ExportToCSV(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	itemsFile := baseFilepath + "_items.csv"
	if err := os.WriteFile(itemsFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	snapshotJSON, err := shared.MarshalJSON(snap, true)
	if err != nil {
		return nil, fmt.Errorf("failed to generate snapshot JSON: %w", err)
	}

	snapshotFile := baseFilepath + "_snapshot.json"
	if err := os.WriteFile(snapshotFile, snapshotJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot file: %w", err)
	}

	return &ExportResult{ItemsFile: itemsFile, SnapshotFile: snapshotFile}, nil
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
