package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ytget/yt-search-downloader/internal/config"
	"github.com/ytget/yt-search-downloader/internal/model"
)

// fakeExecutor simulates downloads with configurable delay and failures
type fakeExecutor struct {
	mu            sync.Mutex
	delay         time.Duration
	concurrent    int
	maxConcurrent int
	calls         int
	order         []string
	failures      map[string]int // video ID -> number of failures to inject
	failWith      error
	waitForCancel bool
	gate          chan struct{} // when set, each call waits for one receive
}

func (f *fakeExecutor) Download(ctx context.Context, video model.VideoCandidate, opts config.DownloadOptions, progress func(ProgressEvent)) (string, error) {
	f.mu.Lock()
	f.calls++
	f.concurrent++
	if f.concurrent > f.maxConcurrent {
		f.maxConcurrent = f.concurrent
	}
	f.order = append(f.order, video.ID)
	mustFail := false
	if f.failures[video.ID] > 0 {
		f.failures[video.ID]--
		mustFail = true
	}
	gate := f.gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.concurrent--
		f.mu.Unlock()
	}()

	if f.waitForCancel {
		<-ctx.Done()
		return "", ctx.Err()
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if mustFail {
		return "", f.failWith
	}

	progress(ProgressEvent{BytesDone: 100, BytesTotal: 100, Speed: 50, ETASec: 0})
	return "/tmp/" + video.ID + ".mp4", nil
}

func candidates(n int) []model.VideoCandidate {
	out := make([]model.VideoCandidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.VideoCandidate{
			ID:       fmt.Sprintf("video-%02d", i),
			Title:    fmt.Sprintf("Video %d", i),
			Duration: 300,
		})
	}
	return out
}

func newTestManager(t *testing.T, exec Executor, cfg config.BatchConfig) *Manager {
	t.Helper()
	m, err := NewManager(exec, cfg, config.DefaultDownloadOptions(t.TempDir()))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.backoff = func(int) time.Duration { return time.Millisecond }
	return m
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestManager_AllTasksComplete(t *testing.T) {
	exec := &fakeExecutor{delay: 5 * time.Millisecond}
	cfg := config.DefaultBatchConfig()
	cfg.MaxConcurrent = 2

	m := newTestManager(t, exec, cfg)
	if _, err := m.Enqueue(candidates(5)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	m.Start()
	m.Wait()

	bp := m.Progress()
	if bp.Completed != 5 || bp.Failed != 0 || bp.Cancelled != 0 {
		t.Errorf("Expected 5 completed, got %+v", bp)
	}
	if bp.Status != model.BatchStatusCompleted {
		t.Errorf("Expected completed status, got %s", bp.Status)
	}
	if exec.maxConcurrent > 2 {
		t.Errorf("Concurrency limit violated: observed %d simultaneous downloads", exec.maxConcurrent)
	}
	if exec.calls != 5 {
		t.Errorf("Expected 5 executor calls, got %d", exec.calls)
	}
}

func TestManager_ConcurrencyLimitNeverExceeded(t *testing.T) {
	for _, limit := range []int{1, 2, 4} {
		exec := &fakeExecutor{delay: 3 * time.Millisecond}
		cfg := config.DefaultBatchConfig()
		cfg.MaxConcurrent = limit

		m := newTestManager(t, exec, cfg)
		_, _ = m.Enqueue(candidates(9))
		m.Start()
		m.Wait()

		if exec.maxConcurrent > limit {
			t.Errorf("limit %d: observed %d simultaneous downloads", limit, exec.maxConcurrent)
		}
	}
}

func TestManager_FIFODispatchOrder(t *testing.T) {
	exec := &fakeExecutor{}
	cfg := config.DefaultBatchConfig()
	cfg.MaxConcurrent = 1

	m := newTestManager(t, exec, cfg)
	_, _ = m.Enqueue(candidates(4))
	m.Start()
	m.Wait()

	expected := []string{"video-00", "video-01", "video-02", "video-03"}
	for i, id := range expected {
		if exec.order[i] != id {
			t.Errorf("Expected dispatch order %v, got %v", expected, exec.order)
			break
		}
	}
}

func TestManager_RetryTransientThenSucceed(t *testing.T) {
	// Fails twice with a transient error, succeeds on the third attempt.
	exec := &fakeExecutor{
		failures: map[string]int{"video-00": 2},
		failWith: &DownloadError{Kind: ErrorTransient, Err: errors.New("connection reset")},
	}
	cfg := config.DefaultBatchConfig()
	cfg.MaxRetries = 3

	m := newTestManager(t, exec, cfg)
	tasks, _ := m.Enqueue(candidates(1))
	m.Start()
	m.Wait()

	task := tasks[0]
	if task.Status != model.TaskStatusCompleted {
		t.Fatalf("Expected completed, got %s (%s)", task.Status, task.LastError)
	}
	if task.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", task.Attempts)
	}
}

func TestManager_RetryBudgetExhausted(t *testing.T) {
	exec := &fakeExecutor{
		failures: map[string]int{"video-00": 10},
		failWith: &DownloadError{Kind: ErrorTransient, Err: errors.New("timeout")},
	}
	cfg := config.DefaultBatchConfig()
	cfg.MaxRetries = 2

	m := newTestManager(t, exec, cfg)
	tasks, _ := m.Enqueue(candidates(1))
	m.Start()
	m.Wait()

	task := tasks[0]
	if task.Status != model.TaskStatusFailed {
		t.Fatalf("Expected failed, got %s", task.Status)
	}
	// Attempt count never exceeds max retries + 1.
	if task.Attempts != 3 {
		t.Errorf("Expected 3 attempts (1 + 2 retries), got %d", task.Attempts)
	}
}

func TestManager_PermanentErrorNotRetried(t *testing.T) {
	exec := &fakeExecutor{
		failures: map[string]int{"video-00": 10},
		failWith: &DownloadError{Kind: ErrorPermanent, Err: errors.New("video unavailable")},
	}
	cfg := config.DefaultBatchConfig() // retry enabled

	m := newTestManager(t, exec, cfg)
	tasks, _ := m.Enqueue(candidates(1))
	m.Start()
	m.Wait()

	task := tasks[0]
	if task.Status != model.TaskStatusFailed {
		t.Fatalf("Expected failed, got %s", task.Status)
	}
	if task.Attempts != 1 {
		t.Errorf("Expected a single attempt for a permanent error, got %d", task.Attempts)
	}
}

func TestManager_RetryDisabled(t *testing.T) {
	exec := &fakeExecutor{
		failures: map[string]int{"video-00": 10},
		failWith: &DownloadError{Kind: ErrorTransient, Err: errors.New("reset")},
	}
	cfg := config.DefaultBatchConfig()
	cfg.RetryFailed = false

	m := newTestManager(t, exec, cfg)
	tasks, _ := m.Enqueue(candidates(1))
	m.Start()
	m.Wait()

	if tasks[0].Status != model.TaskStatusFailed || tasks[0].Attempts != 1 {
		t.Errorf("Expected single failed attempt, got %s after %d attempts",
			tasks[0].Status, tasks[0].Attempts)
	}
}

func TestManager_FailuresDoNotAbortBatch(t *testing.T) {
	exec := &fakeExecutor{
		failures: map[string]int{"video-01": 10},
		failWith: &DownloadError{Kind: ErrorPermanent, Err: errors.New("private video")},
	}
	m := newTestManager(t, exec, config.DefaultBatchConfig())
	_, _ = m.Enqueue(candidates(3))
	m.Start()
	m.Wait()

	bp := m.Progress()
	if bp.Completed != 2 || bp.Failed != 1 {
		t.Errorf("Expected 2 completed and 1 failed, got %+v", bp)
	}
	if bp.Status != model.BatchStatusCompleted {
		t.Errorf("Expected batch completed despite task failure, got %s", bp.Status)
	}
}

func TestManager_Cancel(t *testing.T) {
	exec := &fakeExecutor{waitForCancel: true}
	cfg := config.DefaultBatchConfig()
	cfg.MaxConcurrent = 1

	m := newTestManager(t, exec, cfg)
	tasks, _ := m.Enqueue(candidates(4))
	m.Start()

	waitFor(t, time.Second, func() bool {
		return m.Progress().Downloading == 1
	})

	m.Cancel()
	m.Wait()

	bp := m.Progress()
	if bp.Downloading != 0 {
		t.Errorf("Expected no downloading tasks after cancel, got %d", bp.Downloading)
	}
	if bp.Cancelled != 4 {
		t.Errorf("Expected all 4 tasks cancelled, got %d", bp.Cancelled)
	}
	if bp.Status != model.BatchStatusCancelled {
		t.Errorf("Expected cancelled status, got %s", bp.Status)
	}
	for _, task := range tasks {
		if task.Status != model.TaskStatusCancelled {
			t.Errorf("Task %s: expected cancelled, got %s", task.ID, task.Status)
		}
	}
}

func TestManager_CancelledTaskNeverRetried(t *testing.T) {
	exec := &fakeExecutor{waitForCancel: true}
	cfg := config.DefaultBatchConfig() // retry enabled

	m := newTestManager(t, exec, cfg)
	_, _ = m.Enqueue(candidates(1))
	m.Start()

	waitFor(t, time.Second, func() bool {
		return m.Progress().Downloading == 1
	})

	m.Cancel()
	m.Wait()

	if exec.calls != 1 {
		t.Errorf("Expected no retry after cancellation, got %d calls", exec.calls)
	}
}

func TestManager_PauseStopsDispatch(t *testing.T) {
	gate := make(chan struct{})
	exec := &fakeExecutor{gate: gate}
	cfg := config.DefaultBatchConfig()
	cfg.MaxConcurrent = 1

	m := newTestManager(t, exec, cfg)
	_, _ = m.Enqueue(candidates(3))
	m.Start()

	waitFor(t, time.Second, func() bool {
		return m.Progress().Downloading == 1
	})

	m.Pause()
	gate <- struct{}{} // let the in-flight task finish

	waitFor(t, time.Second, func() bool {
		return m.Progress().Completed == 1
	})

	// Dispatch must not proceed while paused.
	time.Sleep(20 * time.Millisecond)
	if got := m.Progress().Downloading; got != 0 {
		t.Fatalf("Expected no dispatch while paused, got %d downloading", got)
	}
	if m.Progress().Status != model.BatchStatusPaused {
		t.Errorf("Expected paused status, got %s", m.Progress().Status)
	}

	m.Resume()
	gate <- struct{}{}
	gate <- struct{}{}
	m.Wait()

	if bp := m.Progress(); bp.Completed != 3 {
		t.Errorf("Expected 3 completed after resume, got %+v", bp)
	}
}

func TestManager_EnqueueWhileRunning(t *testing.T) {
	exec := &fakeExecutor{delay: 5 * time.Millisecond}
	m := newTestManager(t, exec, config.DefaultBatchConfig())

	_, _ = m.Enqueue(candidates(2))
	m.Start()

	extra := []model.VideoCandidate{{ID: "late-video", Title: "Late", Duration: 100}}
	if _, err := m.Enqueue(extra); err != nil {
		t.Fatalf("Enqueue while running failed: %v", err)
	}
	m.Wait()

	bp := m.Progress()
	if bp.Total != 3 || bp.Completed != 3 {
		t.Errorf("Expected 3 total and completed, got %+v", bp)
	}
}

func TestManager_EnqueueAfterFinish(t *testing.T) {
	exec := &fakeExecutor{}
	m := newTestManager(t, exec, config.DefaultBatchConfig())
	_, _ = m.Enqueue(candidates(1))
	m.Start()
	m.Wait()

	if _, err := m.Enqueue(candidates(1)); !errors.Is(err, ErrBatchFinished) {
		t.Errorf("Expected ErrBatchFinished, got %v", err)
	}
}

func TestManager_ProgressCountsSumToTotal(t *testing.T) {
	exec := &fakeExecutor{delay: 3 * time.Millisecond}
	cfg := config.DefaultBatchConfig()
	cfg.MaxConcurrent = 2

	m := newTestManager(t, exec, cfg)
	_, _ = m.Enqueue(candidates(8))
	m.Start()

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()

	for {
		bp := m.Progress()
		sum := bp.Completed + bp.Failed + bp.Cancelled + bp.Pending + bp.Downloading
		if sum != bp.Total {
			t.Errorf("Counts sum to %d, expected total %d (%+v)", sum, bp.Total, bp)
		}
		select {
		case <-done:
			return
		case <-time.After(time.Millisecond):
		}
	}
}

func TestManager_TaskTimeout(t *testing.T) {
	exec := &fakeExecutor{delay: 500 * time.Millisecond}
	cfg := config.DefaultBatchConfig()
	cfg.RetryFailed = false
	cfg.TaskTimeout = 10 * time.Millisecond

	m := newTestManager(t, exec, cfg)
	tasks, _ := m.Enqueue(candidates(1))
	m.Start()
	m.Wait()

	task := tasks[0]
	if task.Status != model.TaskStatusFailed {
		t.Fatalf("Expected timed-out task to fail, got %s", task.Status)
	}
	if task.LastError == "" {
		t.Error("Expected timeout error recorded on task")
	}
}

func TestManager_UpdateCallback(t *testing.T) {
	exec := &fakeExecutor{}
	m := newTestManager(t, exec, config.DefaultBatchConfig())

	var mu sync.Mutex
	statuses := make(map[model.TaskStatus]bool)
	m.SetUpdateCallback(func(task *model.DownloadTask) {
		mu.Lock()
		statuses[task.Status] = true
		mu.Unlock()
	})

	_, _ = m.Enqueue(candidates(1))
	m.Start()
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	if !statuses[model.TaskStatusDownloading] || !statuses[model.TaskStatusCompleted] {
		t.Errorf("Expected downloading and completed updates, got %v", statuses)
	}
}

func TestManager_SubscriberSeesEveryTerminalEvent(t *testing.T) {
	exec := &fakeExecutor{delay: 2 * time.Millisecond}
	cfg := config.DefaultBatchConfig()
	cfg.MaxConcurrent = 3

	m := newTestManager(t, exec, cfg)

	var mu sync.Mutex
	terminal := map[string]model.TaskStatus{}
	m.Tracker().Subscribe(func(ev TaskEvent) {
		if ev.Status.IsTerminal() {
			mu.Lock()
			terminal[ev.VideoID] = ev.Status
			mu.Unlock()
		}
	})

	_, _ = m.Enqueue(candidates(6))
	m.Start()
	m.Wait()

	// Every task's terminal transition must reach subscribers, even the
	// ones racing the batch's own completion.
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(terminal) == 6
	})
	mu.Lock()
	for id, st := range terminal {
		if st != model.TaskStatusCompleted {
			t.Errorf("Task %s: terminal status %s, expected completed", id, st)
		}
	}
	mu.Unlock()

	waitFor(t, time.Second, func() bool {
		return m.Progress().Speed == 0
	})
}

func TestManager_CancelEventsReachSubscribers(t *testing.T) {
	exec := &fakeExecutor{waitForCancel: true}
	cfg := config.DefaultBatchConfig()
	cfg.MaxConcurrent = 1

	m := newTestManager(t, exec, cfg)

	var mu sync.Mutex
	cancelled := 0
	m.Tracker().Subscribe(func(ev TaskEvent) {
		if ev.Status == model.TaskStatusCancelled {
			mu.Lock()
			cancelled++
			mu.Unlock()
		}
	})

	_, _ = m.Enqueue(candidates(3))
	m.Start()
	waitFor(t, time.Second, func() bool {
		return m.Progress().Downloading == 1
	})

	m.Cancel()
	m.Wait()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return cancelled == 3
	})
}

func TestManager_PausedBatchStaysOpen(t *testing.T) {
	gate := make(chan struct{})
	exec := &fakeExecutor{gate: gate}
	cfg := config.DefaultBatchConfig()
	cfg.MaxConcurrent = 1

	m := newTestManager(t, exec, cfg)
	_, _ = m.Enqueue(candidates(1))
	m.Start()

	waitFor(t, time.Second, func() bool {
		return m.Progress().Downloading == 1
	})

	m.Pause()
	gate <- struct{}{}

	waitFor(t, time.Second, func() bool {
		return m.Progress().Completed == 1
	})

	// Nothing is queued or in flight, but a paused batch must not settle:
	// it stays open for Resume and further Enqueue calls.
	time.Sleep(20 * time.Millisecond)
	if got := m.Progress().Status; got != model.BatchStatusPaused {
		t.Fatalf("Expected paused status with drained queue, got %s", got)
	}

	if _, err := m.Enqueue(candidates(2)[1:]); err != nil {
		t.Fatalf("Enqueue into paused batch failed: %v", err)
	}

	m.Resume()
	gate <- struct{}{}
	m.Wait()

	bp := m.Progress()
	if bp.Completed != 2 || bp.Status != model.BatchStatusCompleted {
		t.Errorf("Expected 2 completed after resume, got %+v", bp)
	}
}

func TestManager_EventSubscription(t *testing.T) {
	exec := &fakeExecutor{}
	m := newTestManager(t, exec, config.DefaultBatchConfig())

	var mu sync.Mutex
	var completed []string
	m.Tracker().Subscribe(func(ev TaskEvent) {
		if ev.Status == model.TaskStatusCompleted {
			mu.Lock()
			completed = append(completed, ev.VideoID)
			mu.Unlock()
		}
	})

	_, _ = m.Enqueue(candidates(2))
	m.Start()
	m.Wait()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(completed) == 2
	})
}
