package bridge

import (
	"log"
	"sync"
	"time"
)

// Surface is any sink that can show the latest result: a text widget,
// an embedded browser's navigation call, a log line.
type Surface interface {
	SetResponse(text string)
	SetFeedback(text string)
}

// DisplayAdapter copies the store's display state into a Surface on a
// fixed tick. Pure read-and-assign, idempotent; repeated ticks with an
// unchanged store are harmless.
type DisplayAdapter struct {
	store    *Store
	surface  Surface
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewDisplayAdapter creates an adapter ticking at the given interval.
func NewDisplayAdapter(store *Store, surface Surface, interval time.Duration) *DisplayAdapter {
	if interval <= 0 {
		interval = time.Second
	}
	return &DisplayAdapter{
		store:    store,
		surface:  surface,
		interval: interval,
	}
}

// Tick copies the current display state into the surface once.
// Exported so hosts that drive their own frame loop can call it
// directly instead of using Start.
func (d *DisplayAdapter) Tick() {
	state := d.store.Display()
	d.surface.SetResponse(state.ResponseText)
	d.surface.SetFeedback(state.FeedbackText)
}

// Start launches the tick loop, stopping a previous one first.
func (d *DisplayAdapter) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopCh != nil {
		close(d.stopCh)
	}
	stopCh := make(chan struct{})
	d.stopCh = stopCh

	go func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				d.Tick()
			}
		}
	}()
}

// Stop cancels the tick loop. Safe to call when nothing is running.
func (d *DisplayAdapter) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopCh != nil {
		close(d.stopCh)
		d.stopCh = nil
	}
}

// LogSurface writes display updates to the log, deduplicating so an
// unchanged store does not flood the output.
type LogSurface struct {
	mu           sync.Mutex
	lastResponse string
	lastFeedback string
}

// SetResponse logs the response text when it changes.
func (l *LogSurface) SetResponse(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if text == l.lastResponse {
		return
	}
	l.lastResponse = text
	log.Printf("Display response: %s", text)
}

// SetFeedback logs the feedback text when it changes.
func (l *LogSurface) SetFeedback(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if text == l.lastFeedback {
		return
	}
	l.lastFeedback = text
	log.Printf("Display feedback: %s", text)
}
