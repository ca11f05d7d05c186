package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// dateLayout is the on-disk format of the min_upload_date field
const dateLayout = "2006-01-02"

// Settings is the flat on-disk configuration document. It round-trips
// through Save/Load into equal SearchConfig/FilterConfig/BatchConfig
// values.
type Settings struct {
	Search   searchBlock   `yaml:"search"`
	Filter   filterBlock   `yaml:"filter"`
	Download downloadBlock `yaml:"download"`
	Batch    batchBlock    `yaml:"batch"`
}

type searchBlock struct {
	Query      string `yaml:"query"`
	MaxResults int    `yaml:"max_results"`
	SortBy     string `yaml:"sort_by"`
	UploadDate string `yaml:"upload_date"`
}

type filterBlock struct {
	MinDuration   *int   `yaml:"min_duration"`
	MaxDuration   *int   `yaml:"max_duration"`
	MinViewCount  *int64 `yaml:"min_view_count"`
	ExcludeShorts bool   `yaml:"exclude_shorts"`
	ExcludeLive   bool   `yaml:"exclude_live"`
	MinUploadDate string `yaml:"min_upload_date,omitempty"`
}

type downloadBlock struct {
	Quality          string `yaml:"quality"`
	OutputDirectory  string `yaml:"output_directory"`
	FilenameTemplate string `yaml:"naming_pattern"`
}

type batchBlock struct {
	MaxConcurrentDownloads int  `yaml:"max_concurrent_downloads"`
	RetryFailedDownloads   bool `yaml:"retry_failed_downloads"`
}

// NewSettings builds a Settings document from validated config values
func NewSettings(sc SearchConfig, fc FilterConfig, do DownloadOptions) Settings {
	s := Settings{
		Search: searchBlock{
			Query:      sc.Query,
			MaxResults: sc.MaxResults,
			SortBy:     string(sc.SortBy),
			UploadDate: string(sc.UploadDate),
		},
		Filter: filterBlock{
			MinDuration:   fc.MinDuration,
			MaxDuration:   fc.MaxDuration,
			MinViewCount:  fc.MinViewCount,
			ExcludeShorts: fc.ExcludeShorts,
			ExcludeLive:   fc.ExcludeLive,
		},
		Download: downloadBlock{
			Quality:          string(do.Quality),
			OutputDirectory:  do.OutputDir,
			FilenameTemplate: do.FilenameTemplate,
		},
		Batch: batchBlock{
			MaxConcurrentDownloads: sc.MaxConcurrent,
			RetryFailedDownloads:   sc.RetryFailed,
		},
	}
	if fc.MinUploadDate != nil {
		s.Filter.MinUploadDate = fc.MinUploadDate.Format(dateLayout)
	}
	return s
}

// SearchConfig reconstructs the SearchConfig described by the document
func (s Settings) SearchConfig() (SearchConfig, error) {
	cfg := SearchConfig{
		Query:         s.Search.Query,
		MaxResults:    s.Search.MaxResults,
		SortBy:        SortOrder(s.Search.SortBy),
		UploadDate:    UploadDateWindow(s.Search.UploadDate),
		MaxConcurrent: s.Batch.MaxConcurrentDownloads,
		RetryFailed:   s.Batch.RetryFailedDownloads,
	}
	if err := cfg.Validate(); err != nil {
		return SearchConfig{}, err
	}
	return cfg, nil
}

// FilterConfig reconstructs the FilterConfig described by the document
func (s Settings) FilterConfig() (FilterConfig, error) {
	cfg := FilterConfig{
		MinDuration:   s.Filter.MinDuration,
		MaxDuration:   s.Filter.MaxDuration,
		MinViewCount:  s.Filter.MinViewCount,
		ExcludeShorts: s.Filter.ExcludeShorts,
		ExcludeLive:   s.Filter.ExcludeLive,
	}
	if s.Filter.MinUploadDate != "" {
		d, err := time.Parse(dateLayout, s.Filter.MinUploadDate)
		if err != nil {
			return FilterConfig{}, &ConfigurationError{
				Field:  "min_upload_date",
				Reason: fmt.Sprintf("expected %s format: %v", dateLayout, err),
			}
		}
		cfg.MinUploadDate = &d
	}
	if err := cfg.Validate(); err != nil {
		return FilterConfig{}, err
	}
	return cfg, nil
}

// DownloadOptions reconstructs the DownloadOptions described by the document
func (s Settings) DownloadOptions() (DownloadOptions, error) {
	opts := DownloadOptions{
		Quality:          QualityPreset(s.Download.Quality),
		OutputDir:        s.Download.OutputDirectory,
		FilenameTemplate: s.Download.FilenameTemplate,
	}
	if err := opts.Validate(); err != nil {
		return DownloadOptions{}, err
	}
	return opts, nil
}

// Save writes the document to path as YAML
func (s Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// LoadSettings reads a settings document from path
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}
