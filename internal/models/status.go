package models

// TaskStatus is the lifecycle state of a [Task].
type TaskStatus string

const (
	TaskInitializing TaskStatus = "initializing"
	TaskFetching     TaskStatus = "fetching"
	TaskDownloading  TaskStatus = "downloading"
	TaskCompleted    TaskStatus = "completed"
	TaskFailed       TaskStatus = "failed"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskInitializing: {TaskFetching, TaskFailed},
	TaskFetching:     {TaskDownloading, TaskFailed},
	TaskDownloading:  {TaskCompleted, TaskFailed},
}

// IsTerminal reports whether no further transition may leave s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition reports whether a task may move from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskInitializing, TaskFetching, TaskDownloading, TaskCompleted, TaskFailed:
		return true
	default:
		return false
	}
}

// ItemStatus is the lifecycle state of an [Item].
type ItemStatus string

const (
	ItemPending     ItemStatus = "pending"
	ItemChecking    ItemStatus = "checking"
	ItemSkipped     ItemStatus = "skipped"
	ItemDownloading ItemStatus = "downloading"
	ItemCompleted   ItemStatus = "completed"
	ItemFailed      ItemStatus = "failed"
)

// pending and checking may fail directly only when the task run is aborted before the item is fetched.
var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:     {ItemChecking, ItemFailed},
	ItemChecking:    {ItemSkipped, ItemDownloading, ItemFailed},
	ItemDownloading: {ItemCompleted, ItemFailed},
}

// IsTerminal reports whether the item has finished processing.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemSkipped || s == ItemCompleted || s == ItemFailed
}

// IsActive reports whether a worker currently owns the item.
func (s ItemStatus) IsActive() bool {
	return s == ItemChecking || s == ItemDownloading
}

// CanTransition reports whether an item may move from s to next.
func (s ItemStatus) CanTransition(next ItemStatus) bool {
	for _, allowed := range itemTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemChecking, ItemSkipped, ItemDownloading, ItemCompleted, ItemFailed:
		return true
	default:
		return false
	}
}
