package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DownloadTask represents one accepted candidate's download execution and
// its mutable state. Owned by the batch manager; mutated only by the worker
// that runs it or by control operations.
type DownloadTask struct {
	ID         string
	Video      VideoCandidate
	Status     TaskStatus
	Progress   float64 // 0.0 to 1.0
	Speed      float64 // bytes per second
	ETASec     int     // ETA in seconds, -1 if unknown
	BytesDone  int64
	BytesTotal int64
	Attempts   int    // number of download attempts made
	LastError  string // last error message if any
	OutputPath string // path to downloaded file
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// ETAString returns ETA formatted as hh:mm:ss, or "—" if unknown
func (dt *DownloadTask) ETAString() string {
	if dt.ETASec <= 0 {
		return "—"
	}
	return FormatDuration(dt.ETASec)
}

// SpeedString returns the transfer speed in human readable form
func (dt *DownloadTask) SpeedString() string {
	if dt.Speed <= 0 {
		return "—"
	}
	return humanize.Bytes(uint64(dt.Speed)) + "/s"
}

// DisplayTitle returns title, filename, or URL in order of preference
func (dt *DownloadTask) DisplayTitle() string {
	if dt.Video.Title != "" {
		return dt.Video.Title
	}

	if dt.OutputPath != "" {
		parts := strings.FieldsFunc(dt.OutputPath, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}

	return dt.Video.URL()
}

// RunDuration returns how long the download ran, or 0 if it never finished
func (dt *DownloadTask) RunDuration() time.Duration {
	if dt.StartedAt.IsZero() || dt.FinishedAt.IsZero() {
		return 0
	}
	return dt.FinishedAt.Sub(dt.StartedAt)
}

// BatchProgress is a derived snapshot of a batch run, recomputed on read
// from the task set. Counts always sum to Total.
type BatchProgress struct {
	Total       int
	Completed   int
	Failed      int
	Cancelled   int
	Pending     int
	Downloading int

	CurrentVideo string  // title of the first active task, empty if none
	Fraction     float64 // overall progress, 0.0 to 1.0
	Speed        float64 // aggregate bytes per second across active tasks
	ETASec       int     // estimated seconds remaining, -1 if unknown
	Status       BatchStatus
}

// Remaining returns the number of tasks not yet in a terminal state
func (bp BatchProgress) Remaining() int {
	return bp.Pending + bp.Downloading
}

// SuccessRate returns the completed share as a percentage of the total
func (bp BatchProgress) SuccessRate() float64 {
	if bp.Total == 0 {
		return 0
	}
	return float64(bp.Completed) / float64(bp.Total) * 100
}

// SpeedString returns the aggregate speed in human readable form
func (bp BatchProgress) SpeedString() string {
	if bp.Speed <= 0 {
		return "—"
	}
	return humanize.Bytes(uint64(bp.Speed)) + "/s"
}

// Summary returns a one-line human readable summary of the snapshot
func (bp BatchProgress) Summary() string {
	return fmt.Sprintf("%d/%d completed, %d failed, %d cancelled, %d remaining",
		bp.Completed, bp.Total, bp.Failed, bp.Cancelled, bp.Remaining())
}
