package tasks

import (
	"fmt"
	"strings"
)

// Human-readable activity strings shown as a task's current activity.

const (
	startingActivity = "Starting..."
	fetchingActivity = "Fetching video information..."
	noItemsActivity  = "No videos found"
	unknownTitle     = "Unknown Video"
	maxTitleRunes    = 120
)

func startDownloadActivity(total int, audioOnly, checking bool) string {
	kind := "video"
	if audioOnly {
		kind = "audio"
	}
	suffix := ""
	if checking {
		suffix = " (checking for duplicates)"
	}
	return fmt.Sprintf("Starting download of %d %s files%s...", total, kind, suffix)
}

func waveActivity(downloading, completed, failed int) string {
	return fmt.Sprintf("%d downloading, %d completed, %d failed", downloading, completed, failed)
}

// completedActivity summarizes a finished wave. successful includes skipped duplicates.
func completedActivity(successful, skipped, failed int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Download completed! %d successful", successful)
	if skipped > 0 {
		fmt.Fprintf(&sb, ", %d skipped (duplicates)", skipped)
	}
	if failed > 0 {
		fmt.Fprintf(&sb, ", %d failed", failed)
	}
	return sb.String()
}

func failedActivity(err error) string {
	return fmt.Sprintf("Error: %v", err)
}

func skipReason(filename string) string {
	return fmt.Sprintf("Already exists: %s", filename)
}

func displayTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return unknownTitle
	}
	if r := []rune(title); len(r) > maxTitleRunes {
		return string(r[:maxTitleRunes])
	}
	return title
}
