package model

import (
	"fmt"
	"time"
)

// ShortDurationThreshold is the duration in seconds below which a video is
// considered a YouTube Short.
const ShortDurationThreshold = 60

// VideoCandidate represents a raw video search result before filtering.
// Produced by the search engine and read-only afterwards.
type VideoCandidate struct {
	ID          string
	Title       string
	Duration    int // duration in seconds, 0 for live streams
	Uploader    string
	UploadedAt  time.Time
	ViewCount   int64
	LikeCount   int64
	Thumbnail   string
	Description string
	IsLive      bool
}

// URL returns the watch URL for this candidate
func (v VideoCandidate) URL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", v.ID)
}

// IsLiveStream returns true if the candidate is a live stream. A zero
// duration also indicates a live stream in search results.
func (v VideoCandidate) IsLiveStream() bool {
	return v.IsLive || v.Duration == 0
}

// IsShort returns true if the candidate is a YouTube Short. Live streams
// report a zero duration but are not shorts.
func (v VideoCandidate) IsShort() bool {
	if v.IsLiveStream() {
		return false
	}
	return v.Duration < ShortDurationThreshold
}

// DurationString returns the duration in MM:SS or HH:MM:SS format, or
// "LIVE" for live streams.
func (v VideoCandidate) DurationString() string {
	if v.IsLiveStream() {
		return "LIVE"
	}
	return FormatDuration(v.Duration)
}

// FormatDuration formats a duration in seconds as MM:SS or HH:MM:SS
func FormatDuration(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
