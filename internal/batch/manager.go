package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/yt-search-downloader/internal/config"
	"github.com/ytget/yt-search-downloader/internal/model"
)

// ErrBatchFinished is returned when enqueueing into a batch that already
// reached a terminal state.
var ErrBatchFinished = errors.New("batch already finished")

// Manager owns the download queue and drives it with a bounded pool of
// workers. All queue and counter mutation is serialized through one mutex,
// which keeps dispatch atomic with respect to concurrent completions: the
// number of downloading tasks never exceeds the configured limit.
type Manager struct {
	cfg      config.BatchConfig
	opts     config.DownloadOptions
	executor Executor
	tracker  *Tracker

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	cond        *sync.Cond
	queue       []*model.DownloadTask // pending, FIFO
	tasks       []*model.DownloadTask // every task ever enqueued, in order
	active      int
	retryTimers map[*model.DownloadTask]*time.Timer
	status      model.BatchStatus
	paused      bool
	cancelled   bool
	started     bool
	startedAt   time.Time

	done       chan struct{}
	onUpdate   func(*model.DownloadTask) // callback for front-end updates
	publishing sync.WaitGroup            // publishes the tracker must see before stopping

	backoff func(attempt int) time.Duration
}

// NewManager creates a manager for one batch run
func NewManager(executor Executor, cfg config.BatchConfig, opts config.DownloadOptions) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:         cfg,
		opts:        opts,
		executor:    executor,
		tracker:     NewTracker(),
		ctx:         ctx,
		cancel:      cancel,
		retryTimers: make(map[*model.DownloadTask]*time.Timer),
		status:      model.BatchStatusIdle,
		done:        make(chan struct{}),
		backoff:     backoffDelay,
	}
	m.cond = sync.NewCond(&m.mu)
	return m, nil
}

// SetUpdateCallback sets the callback invoked on every task update
func (m *Manager) SetUpdateCallback(callback func(*model.DownloadTask)) {
	m.mu.Lock()
	m.onUpdate = callback
	m.mu.Unlock()
}

// Tracker returns the progress tracker for event subscription
func (m *Manager) Tracker() *Tracker {
	return m.tracker
}

// Enqueue appends accepted candidates as pending tasks at the queue tail.
// Safe to call while the pool is running; the batch grows incrementally.
func (m *Manager) Enqueue(accepted []model.VideoCandidate) ([]*model.DownloadTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status.IsFinished() {
		return nil, ErrBatchFinished
	}

	added := make([]*model.DownloadTask, 0, len(accepted))
	for _, video := range accepted {
		task := &model.DownloadTask{
			ID:         uuid.NewString(),
			Video:      video,
			Status:     model.TaskStatusPending,
			ETASec:     -1,
			EnqueuedAt: time.Now(),
		}
		m.tasks = append(m.tasks, task)
		m.queue = append(m.queue, task)
		added = append(added, task)
	}

	slog.Info("tasks enqueued",
		slog.Int("added", len(added)),
		slog.Int("queued", len(m.queue)))
	m.cond.Broadcast()
	return added, nil
}

// Start begins dispatching pending tasks in FIFO order
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.status.IsFinished() {
		return
	}
	m.started = true
	m.startedAt = time.Now()
	m.status = model.BatchStatusRunning

	go m.dispatchLoop()
}

// Pause stops dispatching new tasks. Tasks already downloading run to
// completion or failure.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != model.BatchStatusRunning {
		return
	}
	m.paused = true
	m.status = model.BatchStatusPaused
	slog.Info("batch paused")
}

// Resume restarts dispatching after a pause
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != model.BatchStatusPaused {
		return
	}
	m.paused = false
	m.status = model.BatchStatusRunning
	slog.Info("batch resumed")
	m.cond.Broadcast()
}

// Cancel stops dispatching, requests abort of in-flight downloads, and
// marks every remaining pending task cancelled. Cancellation is
// cooperative; Wait returns once in-flight aborts settle.
func (m *Manager) Cancel() {
	m.mu.Lock()
	if m.cancelled || m.status == model.BatchStatusCompleted {
		m.mu.Unlock()
		return
	}
	m.cancelled = true
	m.status = model.BatchStatusCancelled

	now := time.Now()
	var affected []*model.DownloadTask
	for _, task := range m.queue {
		task.Status = model.TaskStatusCancelled
		task.FinishedAt = now
		affected = append(affected, task)
	}
	m.queue = nil

	// Tasks sitting out a retry backoff are pending too.
	for task, timer := range m.retryTimers {
		timer.Stop()
		task.Status = model.TaskStatusCancelled
		task.FinishedAt = now
		affected = append(affected, task)
	}
	m.retryTimers = make(map[*model.DownloadTask]*time.Timer)

	started := m.started
	// Register the pending publishes before the dispatch loop can observe
	// the cancellation; finish waits for them before stopping the tracker.
	m.publishing.Add(len(affected))
	m.cancel() // signal in-flight executors to abort
	m.cond.Broadcast()

	if !started {
		// No dispatch loop to settle the terminal state.
		close(m.done)
	}
	m.mu.Unlock()

	slog.Info("batch cancelled", slog.Int("pending_cancelled", len(affected)))
	for _, task := range affected {
		m.publishState(task)
		m.notifyUpdate(task)
		m.publishing.Done()
	}
}

// Wait blocks until the batch reaches a terminal state
func (m *Manager) Wait() {
	<-m.done
}

// Done returns a channel closed when the batch reaches a terminal state
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Tasks returns all tasks in enqueue order
func (m *Manager) Tasks() []*model.DownloadTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.DownloadTask, len(m.tasks))
	copy(out, m.tasks)
	return out
}

// Progress returns a snapshot recomputed from the task set. Counts always
// sum to the total. Safe to call concurrently with dispatch.
func (m *Manager) Progress() model.BatchProgress {
	m.mu.Lock()
	defer m.mu.Unlock()

	bp := model.BatchProgress{
		Total:  len(m.tasks),
		Status: m.status,
		ETASec: -1,
	}

	var fraction float64
	for _, task := range m.tasks {
		switch task.Status {
		case model.TaskStatusCompleted:
			bp.Completed++
			fraction += 1
		case model.TaskStatusFailed:
			bp.Failed++
			fraction += 1
		case model.TaskStatusCancelled:
			bp.Cancelled++
			fraction += 1
		case model.TaskStatusDownloading:
			bp.Downloading++
			fraction += task.Progress
			if bp.CurrentVideo == "" {
				bp.CurrentVideo = task.DisplayTitle()
			}
		default:
			bp.Pending++
		}
	}

	if bp.Total > 0 {
		bp.Fraction = fraction / float64(bp.Total)
	}
	bp.Speed = m.tracker.AggregateSpeed()

	// Simple extrapolation from elapsed wall time.
	if m.status == model.BatchStatusRunning && bp.Fraction > 0 && bp.Fraction < 1 {
		elapsed := time.Since(m.startedAt).Seconds()
		bp.ETASec = int(elapsed * (1 - bp.Fraction) / bp.Fraction)
	}
	return bp
}

// dispatchLoop hands pending tasks to free worker slots in FIFO order.
// It owns the terminal-state transition of the batch.
func (m *Manager) dispatchLoop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if m.cancelled {
			if m.active == 0 {
				m.finish(model.BatchStatusCancelled)
				return
			}
			m.cond.Wait()
			continue
		}

		// A paused batch stays open: it must accept Resume and Enqueue
		// even after every in-flight task has settled.
		if len(m.queue) == 0 && m.active == 0 && len(m.retryTimers) == 0 && !m.paused {
			m.finish(model.BatchStatusCompleted)
			return
		}

		if m.paused || m.active >= m.cfg.MaxConcurrent || len(m.queue) == 0 {
			m.cond.Wait()
			continue
		}

		task := m.queue[0]
		m.queue = m.queue[1:]
		m.active++
		task.Status = model.TaskStatusDownloading
		task.StartedAt = time.Now()
		task.Attempts++

		go m.runTask(task)
	}
}

// finish records the terminal batch state. Caller holds the lock. The
// tracker stops only after every registered publish has been delivered.
func (m *Manager) finish(status model.BatchStatus) {
	m.status = status
	close(m.done)
	go func() {
		m.publishing.Wait()
		m.tracker.Stop()
	}()
	slog.Info("batch finished", slog.String("status", status.String()))
}

// runTask executes a single dispatched task on a worker slot
func (m *Manager) runTask(task *model.DownloadTask) {
	m.publishState(task)
	m.notifyUpdate(task)

	ctx := m.ctx
	if m.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.TaskTimeout)
		defer cancel()
	}

	outputPath, err := m.executor.Download(ctx, task.Video, m.opts, func(ev ProgressEvent) {
		m.applyProgress(task, ev)
	})

	m.mu.Lock()
	switch {
	case err == nil:
		task.Status = model.TaskStatusCompleted
		task.Progress = 1.0
		task.Speed = 0
		task.ETASec = 0
		task.OutputPath = outputPath
		task.FinishedAt = time.Now()

	case m.cancelled || errors.Is(err, context.Canceled):
		task.Status = model.TaskStatusCancelled
		task.LastError = "cancelled"
		task.FinishedAt = time.Now()

	default:
		task.LastError = err.Error()
		kind := Classify(err)
		if kind == ErrorTransient && m.cfg.RetryFailed && task.Attempts <= m.cfg.MaxRetries {
			m.scheduleRetry(task)
		} else {
			task.Status = model.TaskStatusFailed
			task.FinishedAt = time.Now()
			slog.Warn("task failed",
				slog.String("task_id", task.ID),
				slog.String("video_id", task.Video.ID),
				slog.Int("attempts", task.Attempts),
				slog.String("error", task.LastError))
		}
	}
	m.mu.Unlock()

	// Terminal state is published before the worker slot frees; the batch
	// cannot finish and stop the tracker until the publish lands.
	m.publishState(task)
	m.notifyUpdate(task)

	m.mu.Lock()
	m.active--
	m.cond.Broadcast()
	m.mu.Unlock()
}

// scheduleRetry re-appends the task to the queue tail after an exponential
// backoff. Caller holds the lock. A retried task loses its original
// position.
func (m *Manager) scheduleRetry(task *model.DownloadTask) {
	task.Status = model.TaskStatusPending
	task.Progress = 0
	task.Speed = 0
	task.ETASec = -1

	delay := m.backoff(task.Attempts)
	slog.Info("retrying task",
		slog.String("task_id", task.ID),
		slog.Int("attempt", task.Attempts),
		slog.Duration("delay", delay))

	m.retryTimers[task] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if _, ok := m.retryTimers[task]; !ok {
			// Cancelled while waiting out the backoff.
			m.mu.Unlock()
			return
		}
		delete(m.retryTimers, task)
		m.queue = append(m.queue, task)
		m.cond.Broadcast()
		m.mu.Unlock()
	})
}

// applyProgress relays one executor progress report into the task and the
// tracker.
func (m *Manager) applyProgress(task *model.DownloadTask, ev ProgressEvent) {
	m.mu.Lock()
	if task.Status != model.TaskStatusDownloading {
		m.mu.Unlock()
		return
	}
	if ev.BytesTotal > 0 {
		task.Progress = float64(ev.BytesDone) / float64(ev.BytesTotal)
	}
	task.BytesDone = ev.BytesDone
	task.BytesTotal = ev.BytesTotal
	task.Speed = ev.Speed
	task.ETASec = ev.ETASec
	m.mu.Unlock()

	m.publishState(task)
	m.notifyUpdate(task)
}

// publishState emits the task's current state to the tracker
func (m *Manager) publishState(task *model.DownloadTask) {
	m.mu.Lock()
	ev := TaskEvent{
		TaskID:     task.ID,
		VideoID:    task.Video.ID,
		Title:      task.Video.Title,
		Status:     task.Status,
		Progress:   task.Progress,
		Speed:      task.Speed,
		BytesDone:  task.BytesDone,
		BytesTotal: task.BytesTotal,
		ETASec:     task.ETASec,
		Attempts:   task.Attempts,
		Err:        task.LastError,
	}
	m.mu.Unlock()

	m.tracker.Publish(ev)
}

// notifyUpdate calls the update callback if set
func (m *Manager) notifyUpdate(task *model.DownloadTask) {
	m.mu.Lock()
	callback := m.onUpdate
	m.mu.Unlock()
	if callback != nil {
		callback(task)
	}
}

// Summary returns a human readable one-line description of the final state
func (m *Manager) Summary() string {
	bp := m.Progress()
	return fmt.Sprintf("%s: %s", bp.Status, bp.Summary())
}
