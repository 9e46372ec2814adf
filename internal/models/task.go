package models

import (
	"fmt"
	"time"
)

// TaskOptions is the per-task configuration supplied at submission.
type TaskOptions struct {
	MaxItems       int    `json:"max_items"`
	AudioOnly      bool   `json:"audio_only"`
	SkipDuplicates bool   `json:"skip_duplicates"`
	Quality        string `json:"quality"`
	ConvertToMP3   bool   `json:"convert_to_mp3"`
}

// Task is a batch request covering one or more items with aggregate progress.
//
// Counter fields are derived from item statuses by the registry and are never set independently.
type Task struct {
	ID               string      `json:"id"`
	Target           string      `json:"target"`
	Options          TaskOptions `json:"options"`
	Status           TaskStatus  `json:"status"`
	OutputDir        string      `json:"download_dir"`
	ItemIDs          []string    `json:"item_ids"`
	Total            int         `json:"total_videos"`
	Completed        int         `json:"completed"`
	Failed           int         `json:"failure_count"`
	Skipped          int         `json:"skipped_count"`
	Checking         int         `json:"checking_count"`
	Downloading      int         `json:"downloading_count"`
	SuccessCount     int         `json:"success_count"`
	ActiveDownloads  int         `json:"active_downloads"`
	Progress         float64     `json:"progress"`
	Activity         string      `json:"current_video"`
	Rate             string      `json:"download_speed"`
	ETA              string      `json:"eta"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	ArchiveAvailable bool        `json:"zip_available"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Finished returns the number of items that reached a terminal state.
func (t Task) Finished() int {
	return t.Completed + t.Failed + t.Skipped
}

// Item is one unit of fetchable content belonging to a task.
type Item struct {
	ID              string        `json:"id"`
	TaskID          string        `json:"task_id"`
	Index           int           `json:"index"`
	SourceRef       string        `json:"url"`
	Title           string        `json:"title"`
	ContentID       string        `json:"video_id_hash"`
	Status          ItemStatus    `json:"status"`
	Progress        float64       `json:"progress"` // percent, 0 to 100
	RateBytes       float64       `json:"-"`
	Rate            string        `json:"speed"`
	ETADuration     time.Duration `json:"-"`
	ETA             string        `json:"eta"`
	DownloadedBytes int64         `json:"downloaded_size"`
	TotalBytes      int64         `json:"file_size"`
	Filename        string        `json:"filename"`
	Error           string        `json:"error,omitempty"`
	SkipReason      string        `json:"skipped_reason,omitempty"`
	StartedAt       *time.Time    `json:"start_time,omitempty"`
	EndedAt         *time.Time    `json:"end_time,omitempty"`
}

// Fraction returns the item's completion in [0, 1].
func (it Item) Fraction() float64 {
	return min(max(it.Progress/100, 0), 1)
}

// ItemID formats the identifier of the item at index within task.
func ItemID(taskID string, index int) string {
	return fmt.Sprintf("%s:%d", taskID, index)
}

// Snapshot is a consistent point-in-time view of a task and its items.
type Snapshot struct {
	Task  Task   `json:"task"`
	Items []Item `json:"items"`
}

// Files returns the output filenames of items that completed or were skipped as duplicates.
func (s Snapshot) Files() []string {
	files := make([]string, 0, len(s.Items))
	for _, it := range s.Items {
		if (it.Status == ItemCompleted || it.Status == ItemSkipped) && it.Filename != "" {
			files = append(files, it.Filename)
		}
	}
	return files
}

// HasFile reports whether filename is one of the task's completed or skipped outputs.
func (s Snapshot) HasFile(filename string) bool {
	for _, f := range s.Files() {
		if f == filename {
			return true
		}
	}
	return false
}
