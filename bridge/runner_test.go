package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport counts calls and can be told to fail.
type fakeTransport struct {
	mu        sync.Mutex
	uploads   int
	polls     int
	uploadErr error
	pollErr   error
	result    UploadResult
}

func (f *fakeTransport) Upload(ctx context.Context, payload []byte) (*UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	copied := f.result
	return &copied, nil
}

func (f *fakeTransport) Poll(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return []byte("ok"), nil
}

func (f *fakeTransport) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.polls
}

// staticFrames always hands back the same frame.
type staticFrames struct{ err error }

func (s staticFrames) NextFrame() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("frame"), nil
}

// fastConfig keeps test cycles in the millisecond range.
func fastConfig() CycleConfig {
	return CycleConfig{
		UploadInterval: 30 * time.Millisecond,
		PollDelay:      5 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
		PollsPerCycle:  2,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestRunner_UploadThenPoll(t *testing.T) {
	transport := &fakeTransport{result: UploadResult{ID: "t1", URL: "https://x/y", Caption: "a cat"}}
	store := NewStore()
	runner := NewRunner(transport, staticFrames{}, store, fastConfig())

	runner.Start()
	defer runner.Stop()

	if !waitFor(t, 2*time.Second, func() bool {
		uploads, polls := transport.counts()
		return uploads >= 1 && polls >= 1
	}) {
		uploads, polls := transport.counts()
		t.Fatalf("Expected at least one upload and one poll, got %d/%d", uploads, polls)
	}

	display := store.Display()
	if display.ResponseText != "a cat" {
		t.Errorf("Expected response text 'a cat', got '%s'", display.ResponseText)
	}
	if store.PollTarget() != "https://x/y" {
		t.Errorf("Expected poll target set, got '%s'", store.PollTarget())
	}
}

func TestRunner_UploadFailureSkipsPolls(t *testing.T) {
	transport := &fakeTransport{
		uploadErr: &TransportError{Kind: KindNetwork, Op: "upload", Err: errors.New("connection refused")},
	}
	store := NewStore()
	runner := NewRunner(transport, staticFrames{}, store, fastConfig())

	runner.Start()
	defer runner.Stop()

	if !waitFor(t, 2*time.Second, func() bool {
		uploads, _ := transport.counts()
		return uploads >= 2
	}) {
		t.Fatal("Expected the re-arm to keep firing after failed uploads")
	}

	_, polls := transport.counts()
	if polls != 0 {
		t.Errorf("Expected no polls after failed uploads, got %d", polls)
	}
	if store.PollTarget() != "" {
		t.Errorf("Expected poll target to stay unset, got '%s'", store.PollTarget())
	}
	if store.Display().ResponseText != "" {
		t.Errorf("Expected response text untouched, got '%s'", store.Display().ResponseText)
	}
}

func TestRunner_StatusFailureKeepsPriorCaption(t *testing.T) {
	transport := &fakeTransport{result: UploadResult{URL: "https://x/y", Caption: "a cat"}}
	store := NewStore()
	runner := NewRunner(transport, staticFrames{}, store, fastConfig())

	runner.Start()
	if !waitFor(t, 2*time.Second, func() bool {
		return store.Display().ResponseText == "a cat"
	}) {
		t.Fatal("First cycle never stored a caption")
	}
	runner.Stop()

	// Next cycles fail with HTTP 500; the stale caption must persist.
	transport.mu.Lock()
	transport.uploadErr = &TransportError{Kind: KindStatus, Op: "upload", StatusCode: 500, Err: errors.New("server said: boom")}
	transport.mu.Unlock()

	runner.Start()
	defer runner.Stop()

	if !waitFor(t, 2*time.Second, func() bool {
		return store.Display().FeedbackText == "upload failed"
	}) {
		t.Fatal("Failed upload never reported feedback")
	}
	if store.Display().ResponseText != "a cat" {
		t.Errorf("Expected stale caption to persist through HTTP 500, got '%s'", store.Display().ResponseText)
	}
}

func TestRunner_PollFailureHaltsSubLoopOnly(t *testing.T) {
	transport := &fakeTransport{
		result:  UploadResult{URL: "https://x/y", Caption: "a cat"},
		pollErr: &TransportError{Kind: KindNetwork, Op: "poll", Err: errors.New("reset by peer")},
	}
	store := NewStore()
	runner := NewRunner(transport, staticFrames{}, store, fastConfig())

	runner.Start()
	defer runner.Stop()

	// Two full cycles must complete even though every poll fails.
	if !waitFor(t, 2*time.Second, func() bool {
		uploads, _ := transport.counts()
		return uploads >= 2
	}) {
		t.Fatal("Runner did not survive poll failures")
	}

	uploads, polls := transport.counts()
	// Each cycle issues exactly one poll before the sub-loop halts.
	if polls > uploads {
		t.Errorf("Expected at most one poll per cycle, got %d polls for %d uploads", polls, uploads)
	}
}

func TestRunner_NoFrameSkipsCycle(t *testing.T) {
	transport := &fakeTransport{result: UploadResult{Caption: "a cat"}}
	store := NewStore()
	runner := NewRunner(transport, staticFrames{err: errors.New("no frame captured yet")}, store, fastConfig())

	runner.Start()
	defer runner.Stop()

	time.Sleep(100 * time.Millisecond)
	uploads, _ := transport.counts()
	if uploads != 0 {
		t.Errorf("Expected no uploads without frames, got %d", uploads)
	}
}

func TestRunner_StartReplacesRunningCycle(t *testing.T) {
	transport := &fakeTransport{result: UploadResult{URL: "https://x/y", Caption: "a cat"}}
	store := NewStore()
	runner := NewRunner(transport, staticFrames{}, store, fastConfig())

	runner.Start()
	runner.Start() // must stop the first loop, not stack a second one
	runner.Stop()
	runner.Stop() // idempotent

	time.Sleep(50 * time.Millisecond)
	before, _ := transport.counts()
	time.Sleep(100 * time.Millisecond)
	after, _ := transport.counts()
	if after != before {
		t.Errorf("Expected no activity after Stop, uploads went %d -> %d", before, after)
	}
}
