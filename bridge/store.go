package bridge

import "sync"

// DisplayState is what the display adapter mirrors into its surface
// on every tick.
type DisplayState struct {
	ResponseText string
	FeedbackText string
}

// Store holds the most recently received inference result. Writers
// replace the whole record under one lock so readers never observe a
// half-updated state, and a failed cycle leaves the previous result
// visible.
type Store struct {
	mu      sync.RWMutex
	result  *UploadResult
	display DisplayState
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Update replaces the stored result and display state as one unit.
func (s *Store) Update(result *UploadResult, feedback string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *result
	s.result = &copied
	s.display = DisplayState{
		ResponseText: result.Caption,
		FeedbackText: feedback,
	}
}

// SetFeedback updates the feedback line only, leaving the last good
// response text in place.
func (s *Store) SetFeedback(feedback string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.display.FeedbackText = feedback
}

// Result returns a copy of the latest upload result, if any.
func (s *Store) Result() (UploadResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.result == nil {
		return UploadResult{}, false
	}
	return *s.result, true
}

// PollTarget returns the URL the poll sub-loop should hit, or "" when
// no upload has succeeded yet.
func (s *Store) PollTarget() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.result == nil {
		return ""
	}
	return s.result.URL
}

// Display returns a snapshot of the display state.
func (s *Store) Display() DisplayState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.display
}
