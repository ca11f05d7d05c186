package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ytget/yt-search-downloader/internal/batch"
	"github.com/ytget/yt-search-downloader/internal/config"
	"github.com/ytget/yt-search-downloader/internal/filter"
	"github.com/ytget/yt-search-downloader/internal/history"
	"github.com/ytget/yt-search-downloader/internal/model"
	"github.com/ytget/yt-search-downloader/internal/search"
)

// Result summarizes one completed pipeline run
type Result struct {
	Query       string
	Found       int
	FilterStats filter.Stats
	Skipped     int // accepted candidates already present in history
	Enqueued    int
	Progress    model.BatchProgress
	Tasks       []*model.DownloadTask
	Elapsed     time.Duration
}

// Summary returns a one-line human readable account of the run
func (r Result) Summary() string {
	return fmt.Sprintf("query %q: found %d, filtered out %d, skipped %d, %s",
		r.Query, r.Found, r.FilterStats.RejectedTotal(), r.Skipped, r.Progress.Summary())
}

// Pipeline orchestrates a search-filter-download run
type Pipeline struct {
	engine   *search.Engine
	executor batch.Executor
	store    *history.Store // optional

	searchCfg config.SearchConfig
	filterCfg config.FilterConfig
	batchCfg  config.BatchConfig
	opts      config.DownloadOptions

	onUpdate func(*model.DownloadTask)

	mu      sync.Mutex // guards manager, written by Run, read by pollers
	manager *batch.Manager
}

// Options configures a pipeline run
type Options struct {
	Engine   *search.Engine
	Executor batch.Executor
	Store    *history.Store // nil disables history recording

	Search config.SearchConfig
	Filter config.FilterConfig
	Batch  config.BatchConfig
	Output config.DownloadOptions

	// OnUpdate receives every task state change, for progress display.
	OnUpdate func(*model.DownloadTask)
}

// New validates the configuration and builds a pipeline
func New(o Options) (*Pipeline, error) {
	if o.Engine == nil {
		return nil, fmt.Errorf("pipeline: search engine is required")
	}
	if o.Executor == nil {
		return nil, fmt.Errorf("pipeline: download executor is required")
	}
	if err := o.Search.Validate(); err != nil {
		return nil, err
	}
	if err := o.Filter.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		engine:    o.Engine,
		executor:  o.Executor,
		store:     o.Store,
		searchCfg: o.Search,
		filterCfg: o.Filter,
		batchCfg:  o.Batch,
		opts:      o.Output,
		onUpdate:  o.OnUpdate,
	}, nil
}

// Manager exposes the batch manager of a running pipeline for pause,
// resume, cancel and progress polling. Nil until Run starts the batch.
// Safe to call from other goroutines while Run is in flight.
func (p *Pipeline) Manager() *batch.Manager {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.manager
}

// Run executes the full pipeline and blocks until the batch settles or the
// context is cancelled. A run with zero accepted candidates completes
// immediately with an empty progress report.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{Query: p.searchCfg.Query}

	candidates, err := p.engine.Search(ctx, p.searchCfg)
	if err != nil {
		return res, fmt.Errorf("search: %w", err)
	}
	res.Found = len(candidates)

	accepted, stats := filter.Apply(candidates, p.filterCfg)
	res.FilterStats = stats

	if p.store != nil {
		kept := make([]model.VideoCandidate, 0, len(accepted))
		for _, c := range accepted {
			done, err := p.store.WasDownloaded(c.ID)
			if err != nil {
				slog.Warn("history lookup failed",
					slog.String("video_id", c.ID),
					slog.String("error", err.Error()))
			}
			if done {
				res.Skipped++
				slog.Info("skipping previously downloaded video",
					slog.String("video_id", c.ID),
					slog.String("title", c.Title))
				continue
			}
			kept = append(kept, c)
		}
		accepted = kept
	}

	slog.Info("search complete",
		slog.String("query", p.searchCfg.Query),
		slog.Int("found", res.Found),
		slog.Int("accepted", len(accepted)),
		slog.Int("rejected", stats.RejectedTotal()))

	manager, err := batch.NewManager(p.executor, p.batchCfg, p.opts)
	if err != nil {
		return res, err
	}
	p.mu.Lock()
	p.manager = manager
	p.mu.Unlock()
	if p.onUpdate != nil {
		manager.SetUpdateCallback(p.onUpdate)
	}

	tasks, err := manager.Enqueue(accepted)
	if err != nil {
		return res, err
	}
	res.Enqueued = len(tasks)

	manager.Start()

	// Propagate caller cancellation into the batch.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			manager.Cancel()
		case <-watchDone:
		}
	}()
	manager.Wait()
	close(watchDone)

	res.Progress = manager.Progress()
	res.Tasks = manager.Tasks()
	res.Elapsed = time.Since(start)

	if p.store != nil {
		if err := p.store.AddBatch(res.Tasks); err != nil {
			slog.Warn("failed to record download history", slog.String("error", err.Error()))
		}
	}

	slog.Info("run finished",
		slog.Int("completed", res.Progress.Completed),
		slog.Int("failed", res.Progress.Failed),
		slog.Int("cancelled", res.Progress.Cancelled),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}
