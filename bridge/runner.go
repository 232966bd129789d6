package bridge

import (
	"context"
	"log"
	"sync"
	"time"
)

// CycleConfig controls the upload/poll cadence.
type CycleConfig struct {
	// UploadInterval is the outer re-arm period between upload cycles.
	UploadInterval time.Duration
	// PollDelay is the wait between a successful upload and the first
	// poll, giving the relay time to render the tick.
	PollDelay time.Duration
	// PollInterval is the wait between polls inside one cycle.
	PollInterval time.Duration
	// PollsPerCycle bounds the poll sub-loop; the next cycle starts a
	// fresh one anyway.
	PollsPerCycle int
}

// withDefaults fills zero fields with the cadence the original
// deployment used: re-upload every minute, first poll 40s later,
// then poll every second.
func (c CycleConfig) withDefaults() CycleConfig {
	if c.UploadInterval <= 0 {
		c.UploadInterval = 60 * time.Second
	}
	if c.PollDelay <= 0 {
		c.PollDelay = 40 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PollsPerCycle <= 0 {
		c.PollsPerCycle = 15
	}
	return c
}

// Transport is the subset of Client the runner needs.
type Transport interface {
	Upload(ctx context.Context, payload []byte) (*UploadResult, error)
	Poll(ctx context.Context, url string) ([]byte, error)
}

// FrameSource supplies the payload for each upload cycle.
type FrameSource interface {
	NextFrame() ([]byte, error)
}

// Runner drives the upload/poll cycle against one inference endpoint.
// Start replaces any cycle already in flight, so duplicate loops never
// race on the store, and Stop gives the owner a real cancellation
// handle.
type Runner struct {
	transport Transport
	source    FrameSource
	store     *Store
	cfg       CycleConfig

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewRunner creates a runner. The config's zero fields fall back to
// the default cadence.
func NewRunner(transport Transport, source FrameSource, store *Store, cfg CycleConfig) *Runner {
	return &Runner{
		transport: transport,
		source:    source,
		store:     store,
		cfg:       cfg.withDefaults(),
	}
}

// Start launches the cycle loop, stopping a previous one first.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopCh != nil {
		close(r.stopCh)
	}
	stopCh := make(chan struct{})
	r.stopCh = stopCh
	go r.run(stopCh)
}

// Stop cancels the running cycle loop. Safe to call when nothing is
// running.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopCh != nil {
		close(r.stopCh)
		r.stopCh = nil
	}
}

// run fires one cycle immediately, then re-arms on the ticker until
// stopped. Cycle failures never disable the re-arm.
func (r *Runner) run(stop chan struct{}) {
	r.cycle(stop)

	ticker := time.NewTicker(r.cfg.UploadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.cycle(stop)
		}
	}
}

// cycle performs one upload followed by the poll sub-loop. An upload
// failure skips the sub-loop for this cycle; a poll failure halts the
// sub-loop only.
func (r *Runner) cycle(stop chan struct{}) {
	frame, err := r.source.NextFrame()
	if err != nil {
		log.Printf("No frame available, skipping cycle: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := r.transport.Upload(ctx, frame)
	if err != nil {
		log.Printf("Upload failed: %v", err)
		r.store.SetFeedback("upload failed")
		return
	}

	r.store.Update(result, "caption received")
	log.Printf("Upload accepted: id=%s caption=%q", result.ID, result.Caption)

	if result.URL == "" {
		// Nothing to poll; the server gave no render URL.
		return
	}

	if !waitOrStop(stop, r.cfg.PollDelay) {
		return
	}

	for i := 0; i < r.cfg.PollsPerCycle; i++ {
		if _, err := r.transport.Poll(ctx, result.URL); err != nil {
			log.Printf("Poll failed, halting sub-loop for this cycle: %v", err)
			return
		}
		if !waitOrStop(stop, r.cfg.PollInterval) {
			return
		}
	}
}

// waitOrStop sleeps for d, returning false if stop closes first.
func waitOrStop(stop chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
