package model

// TaskStatus represents the lifecycle state of a download task
type TaskStatus string

const (
	// TaskStatusPending means the task is queued but not dispatched
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusDownloading means the download is in progress
	TaskStatusDownloading TaskStatus = "downloading"

	// TaskStatusCompleted means the task finished successfully
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed means the task failed and will not be retried
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusCancelled means the task was cancelled by the user
	TaskStatusCancelled TaskStatus = "cancelled"
)

// String returns the string representation of TaskStatus
func (ts TaskStatus) String() string {
	return string(ts)
}

// IsTerminal returns true if no further transitions can occur
func (ts TaskStatus) IsTerminal() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusFailed || ts == TaskStatusCancelled
}

// IsActive returns true if the task currently occupies a worker slot
func (ts TaskStatus) IsActive() bool {
	return ts == TaskStatusDownloading
}

// BatchStatus represents the state of a batch download run
type BatchStatus string

const (
	// BatchStatusIdle means the batch has not been started
	BatchStatusIdle BatchStatus = "idle"

	// BatchStatusRunning means tasks are being dispatched
	BatchStatusRunning BatchStatus = "running"

	// BatchStatusPaused means dispatch is suspended; in-flight tasks run on
	BatchStatusPaused BatchStatus = "paused"

	// BatchStatusCompleted means the queue drained and all workers settled
	BatchStatusCompleted BatchStatus = "completed"

	// BatchStatusCancelled means the batch was cancelled by the user
	BatchStatusCancelled BatchStatus = "cancelled"
)

// String returns the string representation of BatchStatus
func (bs BatchStatus) String() string {
	return string(bs)
}

// IsFinished returns true if the batch reached a terminal state
func (bs BatchStatus) IsFinished() bool {
	return bs == BatchStatusCompleted || bs == BatchStatusCancelled
}
