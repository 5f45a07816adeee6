// Package monitor watches an agent window and decides whether the agent
// is busy or ready for input. The Detector is the pure state machine;
// the Scheduler drives it on a fixed interval and turns its transitions
// into notifications.
package monitor

import (
	"crypto/sha256"
	"strings"
	"time"

	"github.com/asheshgoplani/agent-arcade/internal/agent"
	"github.com/asheshgoplani/agent-arcade/internal/logging"
	"github.com/asheshgoplani/agent-arcade/internal/tmux"
)

var monitorLog = logging.ForComponent(logging.CompMonitor)

// Status is the monitor's classification of the agent window.
type Status string

const (
	// StatusBusy means the agent is working: output still changing and
	// no ready prompt visible.
	StatusBusy Status = "BUSY"
	// StatusReady means the agent is waiting for input.
	StatusReady Status = "READY"
	// StatusUnknown means the window could not be observed.
	StatusUnknown Status = "UNKNOWN"
)

// InactivityMarker is reported as the matched pattern when the
// inactivity timeout, not a prompt pattern, drove a READY decision.
const InactivityMarker = "inactivity_timeout"

// Evaluation is the outcome of feeding one capture to the Detector.
type Evaluation struct {
	Status         Status
	Previous       Status
	Transitioned   bool
	ContentChanged bool
	// MatchedPattern is the ready pattern source that fired, or
	// InactivityMarker, or empty for BUSY and UNKNOWN.
	MatchedPattern string
}

// Detector classifies agent output as BUSY or READY.
//
// Decision order per tick:
//  1. fingerprint the capture; a change moves lastChange to now
//  2. fresh content while READY forces BUSY for this tick, before any
//     pattern or inactivity evaluation
//  3. ready patterns in configured order, first match wins, regardless
//     of elapsed time
//  4. otherwise READY only once output has been still for the
//     inactivity timeout
//
// lastChange moves only on fingerprint changes. A pattern match against
// unchanged content does not touch it, so a prompt sitting untouched
// for minutes keeps its original change time.
//
// Not safe for concurrent use: exactly one goroutine may call Observe.
type Detector struct {
	profile           *agent.CompiledProfile
	inactivityTimeout time.Duration

	status      Status
	fingerprint [sha256.Size]byte
	lastChange  time.Time
}

// NewDetector starts in BUSY with lastChange at now, as if an empty
// capture had just been seen.
func NewDetector(profile *agent.CompiledProfile, inactivityTimeout time.Duration, now time.Time) *Detector {
	return &Detector{
		profile:           profile,
		inactivityTimeout: inactivityTimeout,
		status:            StatusBusy,
		fingerprint:       sha256.Sum256(nil),
		lastChange:        now,
	}
}

// Status returns the current classification.
func (d *Detector) Status() Status {
	return d.status
}

// LastChange returns when the window content last changed.
func (d *Detector) LastChange() time.Time {
	return d.lastChange
}

// Observe feeds one captured snapshot to the state machine.
func (d *Detector) Observe(lines []string, now time.Time) Evaluation {
	content := tmux.StripANSI(strings.Join(lines, "\n"))

	fp := sha256.Sum256([]byte(content))
	changed := fp != d.fingerprint
	if changed {
		d.fingerprint = fp
		d.lastChange = now
	}

	prev := d.status

	// New output while READY means the agent resumed work. This
	// outranks everything else, including a prompt visible in the
	// fresh content; the prompt gets its chance next tick.
	if prev == StatusReady && changed {
		d.status = StatusBusy
		return Evaluation{
			Status:         StatusBusy,
			Previous:       prev,
			Transitioned:   true,
			ContentChanged: true,
		}
	}

	target := StatusBusy
	matched := ""
	if pattern, ok := d.profile.FirstMatch(content); ok {
		target = StatusReady
		matched = pattern
	} else if now.Sub(d.lastChange) >= d.inactivityTimeout {
		target = StatusReady
		matched = InactivityMarker
	}

	d.status = target
	ev := Evaluation{
		Status:         target,
		Previous:       prev,
		Transitioned:   target != prev,
		ContentChanged: changed,
	}
	if target == StatusReady {
		ev.MatchedPattern = matched
	}
	return ev
}

// ObserveUnavailable records that the window could not be captured.
// Fingerprint and lastChange are kept so a reappearing window resumes
// evaluation where it left off.
func (d *Detector) ObserveUnavailable() Evaluation {
	prev := d.status
	d.status = StatusUnknown
	return Evaluation{
		Status:       StatusUnknown,
		Previous:     prev,
		Transitioned: prev != StatusUnknown,
	}
}

// Apply forces a status decided by an auxiliary source (hook state file,
// activity log). The source string is reported as the matched pattern on
// READY so the notification names what produced it.
//
// The change clock is adjusted so the next unchanged capture reaches the
// same verdict through the inactivity rule instead of flipping straight
// back: READY backdates lastChange past the timeout, BUSY resets it to
// now. Fresh window content still forces BUSY as usual.
func (d *Detector) Apply(target Status, source string, now time.Time) Evaluation {
	prev := d.status
	d.status = target
	switch target {
	case StatusReady:
		d.lastChange = now.Add(-d.inactivityTimeout)
	case StatusBusy:
		d.lastChange = now
	}

	ev := Evaluation{
		Status:       target,
		Previous:     prev,
		Transitioned: target != prev,
	}
	if target == StatusReady {
		ev.MatchedPattern = source
	}
	return ev
}
