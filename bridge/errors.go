package bridge

import "fmt"

// ErrorKind classifies a transport failure so callers can tell a dead
// connection apart from a server-side rejection or a garbled body.
type ErrorKind int

const (
	// KindNetwork covers connection and timeout failures.
	KindNetwork ErrorKind = iota
	// KindStatus covers non-2xx responses.
	KindStatus
	// KindParse covers response bodies that are not the expected JSON.
	KindParse
)

// String returns a short name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// TransportError is returned by Client and PromptClient operations.
// Malformed bodies are surfaced as KindParse rather than swallowed;
// the caller decides whether to tolerate them.
type TransportError struct {
	Kind       ErrorKind
	Op         string // "upload", "poll" or "prompt"
	StatusCode int    // set for KindStatus
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("%s failed: %s error (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %s error: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}
