package config

import (
	"fmt"
	"time"
)

// SortOrder selects how search results are ordered
type SortOrder string

const (
	SortByRelevance  SortOrder = "relevance"
	SortByUploadDate SortOrder = "upload_date"
	SortByViewCount  SortOrder = "view_count"
	SortByRating     SortOrder = "rating"
)

// UploadDateWindow restricts search results to a recency window
type UploadDateWindow string

const (
	UploadDateHour  UploadDateWindow = "hour"
	UploadDateToday UploadDateWindow = "today"
	UploadDateWeek  UploadDateWindow = "week"
	UploadDateMonth UploadDateWindow = "month"
	UploadDateYear  UploadDateWindow = "year"
	UploadDateAny   UploadDateWindow = "any"
)

// QualityPreset selects the download quality
type QualityPreset string

const (
	QualityBest   QualityPreset = "best"
	QualityMedium QualityPreset = "medium"
	QualityAudio  QualityPreset = "audio"
)

// Default values
const (
	DefaultMaxResults       = 10
	DefaultMaxConcurrent    = 3
	DefaultMaxRetries       = 3
	DefaultFilenameTemplate = "%(title)s.%(ext)s"
)

// ConfigurationError reports an invalid configuration value. It is raised
// at construction time, before any search or download work begins.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// SearchConfig describes one search request. Immutable once handed to the
// search engine.
type SearchConfig struct {
	Query         string
	MaxResults    int
	SortBy        SortOrder
	UploadDate    UploadDateWindow
	MaxConcurrent int  // concurrency limit for the batch built from this search
	RetryFailed   bool // retry failed downloads automatically
}

// NewSearchConfig creates a SearchConfig with defaults applied and
// validation performed.
func NewSearchConfig(query string, maxResults int) (SearchConfig, error) {
	cfg := SearchConfig{
		Query:         query,
		MaxResults:    maxResults,
		SortBy:        SortByRelevance,
		UploadDate:    UploadDateAny,
		MaxConcurrent: DefaultMaxConcurrent,
		RetryFailed:   true,
	}
	if err := cfg.Validate(); err != nil {
		return SearchConfig{}, err
	}
	return cfg, nil
}

// Validate checks bounds and enum values
func (c SearchConfig) Validate() error {
	if c.MaxResults <= 0 {
		return &ConfigurationError{Field: "max_results", Reason: "must be positive"}
	}
	if c.MaxConcurrent <= 0 {
		return &ConfigurationError{Field: "max_concurrent_downloads", Reason: "must be positive"}
	}
	switch c.SortBy {
	case SortByRelevance, SortByUploadDate, SortByViewCount, SortByRating:
	default:
		return &ConfigurationError{Field: "sort_by", Reason: fmt.Sprintf("unrecognized value %q", c.SortBy)}
	}
	switch c.UploadDate {
	case UploadDateHour, UploadDateToday, UploadDateWeek, UploadDateMonth, UploadDateYear, UploadDateAny:
	default:
		return &ConfigurationError{Field: "upload_date", Reason: fmt.Sprintf("unrecognized value %q", c.UploadDate)}
	}
	return nil
}

// FilterConfig describes acceptance criteria for search candidates.
// The zero-value-with-defaults instance applies no filtering beyond the
// short/live exclusions. Optional bounds are nil when unset.
type FilterConfig struct {
	MinDuration   *int // seconds
	MaxDuration   *int // seconds
	MinViewCount  *int64
	ExcludeShorts bool
	ExcludeLive   bool
	MinUploadDate *time.Time
}

// DefaultFilterConfig returns the default criteria: shorts and live
// streams excluded, no other bounds.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		ExcludeShorts: true,
		ExcludeLive:   true,
	}
}

// Validate checks configured bounds for consistency
func (c FilterConfig) Validate() error {
	if c.MinDuration != nil && *c.MinDuration < 0 {
		return &ConfigurationError{Field: "min_duration", Reason: "must be non-negative"}
	}
	if c.MaxDuration != nil && *c.MaxDuration < 0 {
		return &ConfigurationError{Field: "max_duration", Reason: "must be non-negative"}
	}
	if c.MinDuration != nil && c.MaxDuration != nil && *c.MinDuration > *c.MaxDuration {
		return &ConfigurationError{Field: "min_duration", Reason: "cannot be greater than max_duration"}
	}
	if c.MinViewCount != nil && *c.MinViewCount < 0 {
		return &ConfigurationError{Field: "min_view_count", Reason: "must be non-negative"}
	}
	return nil
}

// Equal reports structural equality, comparing optional bounds by value
func (c FilterConfig) Equal(o FilterConfig) bool {
	if c.ExcludeShorts != o.ExcludeShorts || c.ExcludeLive != o.ExcludeLive {
		return false
	}
	if !intPtrEqual(c.MinDuration, o.MinDuration) || !intPtrEqual(c.MaxDuration, o.MaxDuration) {
		return false
	}
	if (c.MinViewCount == nil) != (o.MinViewCount == nil) {
		return false
	}
	if c.MinViewCount != nil && *c.MinViewCount != *o.MinViewCount {
		return false
	}
	if (c.MinUploadDate == nil) != (o.MinUploadDate == nil) {
		return false
	}
	if c.MinUploadDate != nil && !c.MinUploadDate.Equal(*o.MinUploadDate) {
		return false
	}
	return true
}

func intPtrEqual(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// BatchConfig describes how the batch manager runs downloads
type BatchConfig struct {
	MaxConcurrent int
	RetryFailed   bool
	MaxRetries    int           // additional attempts after the first failure
	TaskTimeout   time.Duration // per-task deadline, 0 disables
}

// DefaultBatchConfig returns the default batch parameters
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxConcurrent: DefaultMaxConcurrent,
		RetryFailed:   true,
		MaxRetries:    DefaultMaxRetries,
	}
}

// Validate checks bounds
func (c BatchConfig) Validate() error {
	if c.MaxConcurrent <= 0 {
		return &ConfigurationError{Field: "max_concurrent_downloads", Reason: "must be positive"}
	}
	if c.MaxRetries < 0 {
		return &ConfigurationError{Field: "max_retries", Reason: "must be non-negative"}
	}
	return nil
}

// DownloadOptions describes per-download output settings passed through to
// the download executor.
type DownloadOptions struct {
	Quality          QualityPreset
	OutputDir        string
	FilenameTemplate string
}

// DefaultDownloadOptions returns the default output settings
func DefaultDownloadOptions(outputDir string) DownloadOptions {
	return DownloadOptions{
		Quality:          QualityBest,
		OutputDir:        outputDir,
		FilenameTemplate: DefaultFilenameTemplate,
	}
}

// Validate checks the quality preset
func (o DownloadOptions) Validate() error {
	switch o.Quality {
	case QualityBest, QualityMedium, QualityAudio:
	default:
		return &ConfigurationError{Field: "quality", Reason: fmt.Sprintf("unrecognized value %q", o.Quality)}
	}
	return nil
}
