package monitor

import (
	"log/slog"
	"time"

	"github.com/asheshgoplani/agent-arcade/internal/logging"
	"github.com/asheshgoplani/agent-arcade/internal/tmux"
)

var notifLog = logging.ForComponent(logging.CompNotif)

// Flasher is the slice of the tmux session a FlashSink needs.
type Flasher interface {
	FlashMessage(window tmux.WindowHandle, message string, flash time.Duration) error
}

// FlashSink displays READY notifications as a transient message overlaid
// on the target window. Delivery failures are logged and swallowed; a
// lost notification must never stop the monitor.
type FlashSink struct {
	session Flasher
	flash   time.Duration
}

// NewFlashSink builds a sink flashing messages for the given duration.
func NewFlashSink(session Flasher, flash time.Duration) *FlashSink {
	return &FlashSink{session: session, flash: flash}
}

// Notify implements Sink.
func (f *FlashSink) Notify(ev Event) {
	if ev.Message == "" {
		// BUSY edges carry no display text
		return
	}

	if err := f.session.FlashMessage(ev.TargetWindow, ev.Message, f.flash); err != nil {
		notifLog.Warn("notification_failed",
			slog.Int("window", int(ev.TargetWindow)),
			slog.String("error", err.Error()))
		return
	}

	notifLog.Debug("notification_sent",
		slog.Int("window", int(ev.TargetWindow)),
		slog.String("message", ev.Message),
		slog.String("matched", ev.MatchedPattern))
}

// MultiSink fans each event out to every sink in order.
type MultiSink []Sink

// Notify implements Sink.
func (m MultiSink) Notify(ev Event) {
	for _, s := range m {
		s.Notify(ev)
	}
}
