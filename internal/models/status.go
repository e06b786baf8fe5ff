package models

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task lifecycle states. Transitions run pending → running → pr_open →
// merging → completed, with failed reachable from any non-terminal state.
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskPROpen    TaskStatus = "pr_open"
	TaskMerging   TaskStatus = "merging"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskStatuses lists every valid task status.
var TaskStatuses = []TaskStatus{
	TaskPending,
	TaskRunning,
	TaskPROpen,
	TaskMerging,
	TaskCompleted,
	TaskFailed,
}

// ValidTaskStatus reports whether s is one of the six known task statuses.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskPending, TaskRunning, TaskPROpen, TaskMerging, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// EpicStatus is the lifecycle state of an epic.
type EpicStatus string

// Epic lifecycle states.
const (
	EpicPending        EpicStatus = "pending"
	EpicGeneratingSpec EpicStatus = "generating_spec"
	EpicRunning        EpicStatus = "running"
	EpicPaused         EpicStatus = "paused"
	EpicCompleted      EpicStatus = "completed"
	EpicFailed         EpicStatus = "failed"
)

// ValidEpicStatus reports whether s is a known epic status.
func ValidEpicStatus(s EpicStatus) bool {
	switch s {
	case EpicPending, EpicGeneratingSpec, EpicRunning, EpicPaused, EpicCompleted, EpicFailed:
		return true
	}
	return false
}
