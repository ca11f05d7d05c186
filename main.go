package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ytget/yt-search-downloader/internal/config"
	"github.com/ytget/yt-search-downloader/internal/executor"
	"github.com/ytget/yt-search-downloader/internal/history"
	"github.com/ytget/yt-search-downloader/internal/model"
	"github.com/ytget/yt-search-downloader/internal/pipeline"
	"github.com/ytget/yt-search-downloader/internal/platform"
	"github.com/ytget/yt-search-downloader/internal/search"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const progressRefresh = time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		query       = flag.String("query", "", "search query (required)")
		maxResults  = flag.Int("max-results", config.DefaultMaxResults, "maximum number of search results")
		sortBy      = flag.String("sort", string(config.SortByRelevance), "sort order: relevance, upload_date, view_count, rating")
		uploadDate  = flag.String("upload-date", "", "restrict search to an upload window: hour, today, week, month, year")
		minDuration = flag.Int("min-duration", 0, "minimum video duration in seconds")
		maxDuration = flag.Int("max-duration", 0, "maximum video duration in seconds")
		minViews    = flag.Int64("min-views", 0, "minimum view count")
		minUpload   = flag.String("min-upload-date", "", "reject videos uploaded before this date (YYYY-MM-DD)")
		withShorts  = flag.Bool("include-shorts", false, "keep videos under one minute")
		withLive    = flag.Bool("include-live", false, "keep live streams")
		quality     = flag.String("quality", string(config.QualityBest), "download quality: best, medium, audio")
		outputDir   = flag.String("output", "", "output directory (default: ~/Downloads)")
		namePattern = flag.String("name-pattern", config.DefaultFilenameTemplate, "yt-dlp output filename template")
		concurrency = flag.Int("concurrency", config.DefaultMaxConcurrent, "maximum simultaneous downloads")
		noRetry     = flag.Bool("no-retry", false, "disable retrying of failed downloads")
		maxRetries  = flag.Int("max-retries", config.DefaultMaxRetries, "retry budget per download")
		configPath  = flag.String("config", "", "load settings from a YAML file; flags override it")
		saveConfig  = flag.String("save-config", "", "write the effective settings to a YAML file and exit")
		historyDir  = flag.String("history-dir", "", "directory for the download history database (empty disables history)")
		verbose     = flag.Bool("verbose", false, "enable debug logging")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("yt-search-downloader v%s\n", version)
		return nil
	}

	setupLogging(*verbose)

	sc, fc, do, err := buildConfigs(*configPath, flagValues{
		query:       *query,
		maxResults:  *maxResults,
		sortBy:      *sortBy,
		uploadDate:  *uploadDate,
		minDuration: *minDuration,
		maxDuration: *maxDuration,
		minViews:    *minViews,
		minUpload:   *minUpload,
		withShorts:  *withShorts,
		withLive:    *withLive,
		quality:     *quality,
		outputDir:   *outputDir,
		namePattern: *namePattern,
		concurrency: *concurrency,
		noRetry:     *noRetry,
	})
	if err != nil {
		return err
	}

	if *saveConfig != "" {
		settings := config.NewSettings(sc, fc, do)
		if err := settings.Save(*saveConfig); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Printf("settings written to %s\n", *saveConfig)
		return nil
	}

	bc := config.BatchConfig{
		MaxConcurrent: sc.MaxConcurrent,
		RetryFailed:   sc.RetryFailed,
		MaxRetries:    *maxRetries,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := executor.Install(ctx); err != nil {
		return err
	}

	var store *history.Store
	if *historyDir != "" {
		store, err = history.Open(*historyDir)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
	}

	p, err := pipeline.New(pipeline.Options{
		Engine:   search.NewEngine(search.NewYouTubeProvider()),
		Executor: executor.NewYtdlpExecutor(),
		Store:    store,
		Search:   sc,
		Filter:   fc,
		Batch:    bc,
		Output:   do,
	})
	if err != nil {
		return err
	}

	fmt.Printf("searching for %q...\n", sc.Query)

	done := make(chan struct{})
	go displayProgress(p, done)

	res, err := p.Run(ctx)
	close(done)
	if err != nil {
		return err
	}

	printReport(res)
	if res.Progress.Failed > 0 {
		return fmt.Errorf("%d download(s) failed", res.Progress.Failed)
	}
	return nil
}

// flagValues carries parsed command line values into the config overlay
type flagValues struct {
	query       string
	maxResults  int
	sortBy      string
	uploadDate  string
	minDuration int
	maxDuration int
	minViews    int64
	minUpload   string
	withShorts  bool
	withLive    bool
	quality     string
	outputDir   string
	namePattern string
	concurrency int
	noRetry     bool
}

// buildConfigs merges an optional YAML settings file with command line
// flags. Flags that were set explicitly take precedence over the file.
func buildConfigs(configPath string, fv flagValues) (config.SearchConfig, config.FilterConfig, config.DownloadOptions, error) {
	var sc config.SearchConfig
	var fc config.FilterConfig
	var do config.DownloadOptions

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if configPath != "" {
		settings, err := config.LoadSettings(configPath)
		if err != nil {
			return sc, fc, do, fmt.Errorf("load config: %w", err)
		}
		if sc, err = settings.SearchConfig(); err != nil {
			return sc, fc, do, err
		}
		if fc, err = settings.FilterConfig(); err != nil {
			return sc, fc, do, err
		}
		if do, err = settings.DownloadOptions(); err != nil {
			return sc, fc, do, err
		}
	} else {
		sc = config.SearchConfig{
			MaxResults:    config.DefaultMaxResults,
			SortBy:        config.SortByRelevance,
			UploadDate:    config.UploadDateAny,
			MaxConcurrent: config.DefaultMaxConcurrent,
			RetryFailed:   true,
		}
		fc = config.DefaultFilterConfig()
		do = config.DownloadOptions{
			Quality:          config.QualityBest,
			FilenameTemplate: config.DefaultFilenameTemplate,
		}
	}

	if set["query"] || sc.Query == "" {
		sc.Query = fv.query
	}
	if set["max-results"] {
		sc.MaxResults = fv.maxResults
	}
	if set["sort"] {
		sc.SortBy = config.SortOrder(fv.sortBy)
	}
	if set["upload-date"] {
		sc.UploadDate = config.UploadDateWindow(fv.uploadDate)
	}
	if set["concurrency"] {
		sc.MaxConcurrent = fv.concurrency
	}
	if set["no-retry"] {
		sc.RetryFailed = !fv.noRetry
	}

	if set["min-duration"] {
		v := fv.minDuration
		fc.MinDuration = &v
	}
	if set["max-duration"] {
		v := fv.maxDuration
		fc.MaxDuration = &v
	}
	if set["min-views"] {
		v := fv.minViews
		fc.MinViewCount = &v
	}
	if set["min-upload-date"] {
		t, err := time.Parse("2006-01-02", fv.minUpload)
		if err != nil {
			return sc, fc, do, &config.ConfigurationError{Field: "min-upload-date", Reason: "expected YYYY-MM-DD"}
		}
		fc.MinUploadDate = &t
	}
	if set["include-shorts"] {
		fc.ExcludeShorts = !fv.withShorts
	}
	if set["include-live"] {
		fc.ExcludeLive = !fv.withLive
	}

	if set["quality"] {
		do.Quality = config.QualityPreset(fv.quality)
	}
	if set["name-pattern"] {
		do.FilenameTemplate = fv.namePattern
	}
	if set["output"] {
		do.OutputDir = fv.outputDir
	}
	if do.OutputDir == "" {
		dir, err := platform.DefaultDownloadDir()
		if err != nil {
			return sc, fc, do, err
		}
		do.OutputDir = dir
	}

	if err := sc.Validate(); err != nil {
		return sc, fc, do, err
	}
	if err := fc.Validate(); err != nil {
		return sc, fc, do, err
	}
	if err := do.Validate(); err != nil {
		return sc, fc, do, err
	}
	return sc, fc, do, nil
}

// displayProgress redraws a single progress line until the run finishes
func displayProgress(p *pipeline.Pipeline, done <-chan struct{}) {
	ticker := time.NewTicker(progressRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			fmt.Print("\r\033[K")
			return
		case <-ticker.C:
			m := p.Manager()
			if m == nil {
				continue
			}
			bp := m.Progress()
			line := fmt.Sprintf("[%3.0f%%] %s", bp.Fraction*100, bp.Summary())
			if bp.Speed > 0 {
				line += " at " + bp.SpeedString()
			}
			if bp.CurrentVideo != "" {
				line += " | " + bp.CurrentVideo
			}
			fmt.Printf("\r\033[K%s", line)
		}
	}
}

// printReport writes the final per-task report to stdout
func printReport(res pipeline.Result) {
	fmt.Println(res.Summary())
	for _, task := range res.Tasks {
		switch task.Status {
		case model.TaskStatusCompleted:
			fmt.Printf("  done   %s -> %s\n", task.DisplayTitle(), task.OutputPath)
		case model.TaskStatusFailed:
			fmt.Printf("  failed %s (%d attempts): %s\n", task.DisplayTitle(), task.Attempts, task.LastError)
		case model.TaskStatusCancelled:
			fmt.Printf("  cancelled %s\n", task.DisplayTitle())
		}
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
