package agent

import (
	"context"
	"time"
)

// StateEvent is one idle/active observation from an auxiliary detection
// channel. Idle means the agent is waiting for input.
type StateEvent struct {
	Idle bool
	At   time.Time
}

// StateWatcher is an auxiliary readiness source running beside the
// terminal monitor. Implementations push an event on every observed
// transition and drop events nobody is reading, never block.
type StateWatcher interface {
	// Start begins watching. Returns once watching is established; the
	// watcher stops when ctx is cancelled.
	Start(ctx context.Context) error
	// Events streams idle/active transitions.
	Events() <-chan StateEvent
	// Close releases watcher resources. Safe to call more than once.
	Close() error
}

// NewStateWatcher builds the watcher matching the profile's detection
// strategy, or nil when terminal patterns are the only source.
func NewStateWatcher(p Profile, sessionName string) (StateWatcher, error) {
	switch p.Detection {
	case DetectHooks:
		return NewHookWatcher(sessionName)
	case DetectLogTail:
		return NewLogWatcher(p.LogFile), nil
	default:
		return nil, nil
	}
}
