package models

// MessageKind enumerates live update message types.
type MessageKind string

const (
	StatusUpdate   MessageKind = "status_update"
	ProgressUpdate MessageKind = "progress_update"
)

// Message is one live update delivered to a subscriber.
//
// A status update carries only the task view in Data; a progress update carries the task view and every item.
type Message struct {
	Type       MessageKind `json:"type"`
	TaskStatus *Task       `json:"task_status,omitempty"`
	Items      []Item      `json:"video_downloads,omitempty"`
	Data       *Task       `json:"data,omitempty"`
}

// NewStatusUpdate builds a [StatusUpdate] message from a snapshot.
func NewStatusUpdate(s Snapshot) Message {
	task := s.Task
	return Message{Type: StatusUpdate, Data: &task}
}

// NewProgressUpdate builds a [ProgressUpdate] message from a snapshot.
func NewProgressUpdate(s Snapshot) Message {
	task := s.Task
	return Message{Type: ProgressUpdate, TaskStatus: &task, Items: s.Items}
}

// Task returns the task view carried by the message regardless of kind.
func (m Message) Task() *Task {
	if m.TaskStatus != nil {
		return m.TaskStatus
	}
	return m.Data
}

// Terminal reports whether the message describes a task in a terminal state.
func (m Message) Terminal() bool {
	t := m.Task()
	return t != nil && t.Status.IsTerminal()
}
