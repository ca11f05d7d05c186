// Package filter narrows raw search candidates to the subset matching the
// configured acceptance criteria, counting rejections per reason.
package filter

import (
	"log/slog"

	"github.com/ytget/yt-search-downloader/internal/config"
	"github.com/ytget/yt-search-downloader/internal/model"
)

// RejectReason identifies which predicate rejected a candidate
type RejectReason string

const (
	ReasonShort            RejectReason = "short"
	ReasonLive             RejectReason = "live"
	ReasonDurationOutRange RejectReason = "duration_out_of_range"
	ReasonViewCountTooLow  RejectReason = "view_count_too_low"
	ReasonTooOld           RejectReason = "too_old"
)

// Stats summarizes one filtering pass
type Stats struct {
	Total    int
	Accepted int
	Rejected map[RejectReason]int
}

// RejectedTotal returns the number of rejected candidates
func (s Stats) RejectedTotal() int {
	return s.Total - s.Accepted
}

// Apply evaluates every candidate against the enabled predicates and
// returns the accepted subset plus per-reason rejection counts. A candidate
// is accepted only when it satisfies all enabled predicates; for counting,
// the first violated predicate wins. The function is pure: identical inputs
// always produce identical outputs.
func Apply(candidates []model.VideoCandidate, cfg config.FilterConfig) ([]model.VideoCandidate, Stats) {
	stats := Stats{
		Total:    len(candidates),
		Rejected: make(map[RejectReason]int),
	}

	accepted := make([]model.VideoCandidate, 0, len(candidates))
	for _, c := range candidates {
		if reason, ok := rejectReason(c, cfg); ok {
			stats.Rejected[reason]++
			slog.Debug("candidate rejected",
				slog.String("video_id", c.ID),
				slog.String("reason", string(reason)))
			continue
		}
		accepted = append(accepted, c)
	}
	stats.Accepted = len(accepted)

	slog.Debug("filtering complete",
		slog.Int("total", stats.Total),
		slog.Int("accepted", stats.Accepted))
	return accepted, stats
}

// rejectReason returns the first predicate the candidate violates.
// Evaluation order: shorts, live, duration bounds, view count, upload date.
func rejectReason(c model.VideoCandidate, cfg config.FilterConfig) (RejectReason, bool) {
	if cfg.ExcludeShorts && c.IsShort() {
		return ReasonShort, true
	}
	if cfg.ExcludeLive && c.IsLiveStream() {
		return ReasonLive, true
	}
	if cfg.MinDuration != nil && c.Duration < *cfg.MinDuration {
		return ReasonDurationOutRange, true
	}
	if cfg.MaxDuration != nil && c.Duration > *cfg.MaxDuration {
		return ReasonDurationOutRange, true
	}
	if cfg.MinViewCount != nil && c.ViewCount < *cfg.MinViewCount {
		return ReasonViewCountTooLow, true
	}
	if cfg.MinUploadDate != nil && c.UploadedAt.Before(*cfg.MinUploadDate) {
		return ReasonTooOld, true
	}
	return "", false
}
