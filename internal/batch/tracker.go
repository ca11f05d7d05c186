package batch

import (
	"sync"

	"github.com/ytget/yt-search-downloader/internal/model"
)

// TaskEvent is one task-state transition or progress report published by a
// worker. Front ends may subscribe to the raw stream; the tracker also
// folds events into the aggregate read model.
type TaskEvent struct {
	TaskID     string
	VideoID    string
	Title      string
	Status     model.TaskStatus
	Progress   float64
	Speed      float64 // bytes per second
	BytesDone  int64
	BytesTotal int64
	ETASec     int
	Attempts   int
	Err        string
}

// Tracker aggregates worker events into per-task rates consumed by the
// batch progress snapshot. Workers publish; a single run loop applies, so
// aggregation needs no wide locks.
type Tracker struct {
	events chan TaskEvent
	done   chan struct{}

	stopMu  sync.Mutex
	stopped bool

	mu    sync.RWMutex
	rates map[string]float64 // bytes/sec of in-flight tasks

	subMu       sync.Mutex
	subscribers []func(TaskEvent)
}

// NewTracker creates a tracker with its aggregation loop running
func NewTracker() *Tracker {
	t := &Tracker{
		events: make(chan TaskEvent, 64),
		done:   make(chan struct{}),
		rates:  make(map[string]float64),
	}
	go t.run()
	return t
}

// Stop terminates the aggregation loop after draining queued events
func (t *Tracker) Stop() {
	t.stopMu.Lock()
	if t.stopped {
		t.stopMu.Unlock()
		return
	}
	t.stopped = true
	close(t.events)
	t.stopMu.Unlock()
	<-t.done
}

// Publish delivers one event to the aggregation loop. Events arriving
// after Stop are dropped.
func (t *Tracker) Publish(ev TaskEvent) {
	t.stopMu.Lock()
	defer t.stopMu.Unlock()
	if t.stopped {
		return
	}
	t.events <- ev
}

// Subscribe registers a callback invoked from the aggregation loop for
// every event. Callbacks must be fast; they run serially.
func (t *Tracker) Subscribe(fn func(TaskEvent)) {
	t.subMu.Lock()
	t.subscribers = append(t.subscribers, fn)
	t.subMu.Unlock()
}

// AggregateSpeed returns the summed transfer rate of in-flight tasks
func (t *Tracker) AggregateSpeed() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total float64
	for _, r := range t.rates {
		total += r
	}
	return total
}

func (t *Tracker) run() {
	defer close(t.done)
	for ev := range t.events {
		t.mu.Lock()
		if ev.Status.IsTerminal() || ev.Status == model.TaskStatusPending {
			delete(t.rates, ev.TaskID)
		} else if ev.Speed > 0 {
			t.rates[ev.TaskID] = ev.Speed
		}
		t.mu.Unlock()

		t.subMu.Lock()
		subs := t.subscribers
		t.subMu.Unlock()
		for _, fn := range subs {
			fn(ev)
		}
	}
}
