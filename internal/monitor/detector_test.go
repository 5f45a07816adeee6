package monitor

import (
	"testing"
	"time"

	"github.com/asheshgoplani/agent-arcade/internal/agent"
)

func promptDetector(t *testing.T, timeout time.Duration, start time.Time) *Detector {
	t.Helper()
	cp := agent.Compile(agent.Profile{
		Name:          "test",
		ReadyPatterns: []string{`^> $`},
	})
	return NewDetector(cp, timeout, start)
}

func noPatternDetector(t *testing.T, timeout time.Duration, start time.Time) *Detector {
	t.Helper()
	return NewDetector(agent.Compile(agent.Profile{Name: "bare"}), timeout, start)
}

func TestDetectorInitialStatus(t *testing.T) {
	d := promptDetector(t, 2*time.Second, time.Now())
	if d.Status() != StatusBusy {
		t.Errorf("initial status = %s, want BUSY", d.Status())
	}
}

func TestPatternBeatsInactivityClock(t *testing.T) {
	// Prompt appears half a second in, well before the 2s timeout
	t0 := time.Unix(1700000000, 0)
	d := promptDetector(t, 2*time.Second, t0)

	ev := d.Observe([]string{"Thinking..."}, t0)
	if ev.Status != StatusBusy || ev.Transitioned {
		t.Fatalf("busy output: got %+v", ev)
	}

	ev = d.Observe([]string{"> "}, t0.Add(500*time.Millisecond))
	if ev.Status != StatusReady {
		t.Fatalf("prompt should mean READY regardless of elapsed time, got %s", ev.Status)
	}
	if !ev.Transitioned {
		t.Error("BUSY to READY must report a transition")
	}
	if ev.MatchedPattern != `^> $` {
		t.Errorf("matched pattern = %q, want the prompt pattern", ev.MatchedPattern)
	}
}

func TestInactivityFallback(t *testing.T) {
	// Unchanged non-prompt output goes READY exactly when elapsed
	// time first reaches the timeout
	t0 := time.Unix(1700000000, 0)
	d := promptDetector(t, 2*time.Second, t0)

	lines := []string{"Thinking..."}
	ticks := []struct {
		at   time.Duration
		want Status
	}{
		{0, StatusBusy},
		{500 * time.Millisecond, StatusBusy},
		{1 * time.Second, StatusBusy},
		{1500 * time.Millisecond, StatusBusy},
		{2 * time.Second, StatusReady},
		{2500 * time.Millisecond, StatusReady},
	}

	transitions := 0
	for _, tick := range ticks {
		ev := d.Observe(lines, t0.Add(tick.at))
		if ev.Status != tick.want {
			t.Fatalf("t=%v: status = %s, want %s", tick.at, ev.Status, tick.want)
		}
		if ev.Transitioned {
			transitions++
			if ev.MatchedPattern != InactivityMarker {
				t.Errorf("inactivity READY should report %q, got %q", InactivityMarker, ev.MatchedPattern)
			}
		}
	}
	if transitions != 1 {
		t.Errorf("expected exactly one transition, got %d", transitions)
	}
}

func TestFreshContentWhileReadyForcesBusy(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	d := promptDetector(t, 2*time.Second, t0)

	d.Observe([]string{"> "}, t0)
	if d.Status() != StatusReady {
		t.Fatal("setup: expected READY")
	}

	ev := d.Observe([]string{"> ", "running tests..."}, t0.Add(500*time.Millisecond))
	if ev.Status != StatusBusy || !ev.Transitioned {
		t.Fatalf("new output while READY must force BUSY, got %+v", ev)
	}
	if !ev.ContentChanged {
		t.Error("evaluation should record the content change")
	}
}

func TestFreshPromptWhileReadyStillForcesBusyFirst(t *testing.T) {
	// Even content that itself shows a prompt forces BUSY for the tick
	// it arrives in; the prompt wins again on the next tick
	t0 := time.Unix(1700000000, 0)
	d := promptDetector(t, 2*time.Second, t0)

	d.Observe([]string{"> "}, t0)

	ev := d.Observe([]string{"done.", "> "}, t0.Add(500*time.Millisecond))
	if ev.Status != StatusBusy {
		t.Fatalf("fresh content wins over its own prompt for one tick, got %s", ev.Status)
	}

	ev = d.Observe([]string{"done.", "> "}, t0.Add(1*time.Second))
	if ev.Status != StatusReady || !ev.Transitioned {
		t.Fatalf("unchanged prompt on the next tick should be READY, got %+v", ev)
	}
	if ev.MatchedPattern != `^> $` {
		t.Errorf("matched pattern = %q", ev.MatchedPattern)
	}
}

func TestPatternMatchDoesNotTouchChangeClock(t *testing.T) {
	// A prompt sitting unchanged keeps its original change time;
	// matching is not activity
	t0 := time.Unix(1700000000, 0)
	d := promptDetector(t, 2*time.Second, t0)

	d.Observe([]string{"> "}, t0.Add(time.Second))
	changeAt := d.LastChange()
	if !changeAt.Equal(t0.Add(time.Second)) {
		t.Fatalf("setup: lastChange = %v", changeAt)
	}

	for i := 2; i <= 5; i++ {
		d.Observe([]string{"> "}, t0.Add(time.Duration(i)*time.Second))
	}

	if !d.LastChange().Equal(changeAt) {
		t.Errorf("lastChange moved to %v on unchanged content", d.LastChange())
	}
	if d.Status() != StatusReady {
		t.Errorf("status = %s, want READY throughout", d.Status())
	}
}

func TestChangingContentHoldsBusy(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	d := noPatternDetector(t, 2*time.Second, t0)

	// Output keeps changing: never READY, no transitions at all
	for i := 0; i < 10; i++ {
		ev := d.Observe([]string{"progress", string(rune('a' + i))}, t0.Add(time.Duration(i)*time.Second))
		if ev.Status != StatusBusy {
			t.Fatalf("tick %d: status = %s, want BUSY", i, ev.Status)
		}
		if ev.Transitioned {
			t.Fatalf("tick %d: unexpected transition", i)
		}
	}
}

func TestEmptyWindowCountsFromStart(t *testing.T) {
	// A window that never prints anything is READY once the timeout
	// elapses from monitor start
	t0 := time.Unix(1700000000, 0)
	d := noPatternDetector(t, 2*time.Second, t0)

	ev := d.Observe([]string{""}, t0.Add(time.Second))
	if ev.Status != StatusBusy {
		t.Fatalf("empty capture before timeout: %s", ev.Status)
	}
	if ev.ContentChanged {
		t.Error("empty capture should match the initial fingerprint")
	}

	ev = d.Observe([]string{""}, t0.Add(2*time.Second))
	if ev.Status != StatusReady {
		t.Errorf("empty window should go READY at the timeout, got %s", ev.Status)
	}
}

func TestUnavailableAndRecovery(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	d := promptDetector(t, 2*time.Second, t0)

	d.Observe([]string{"Thinking..."}, t0)

	ev := d.ObserveUnavailable()
	if ev.Status != StatusUnknown || !ev.Transitioned {
		t.Fatalf("first unavailable: %+v", ev)
	}

	ev = d.ObserveUnavailable()
	if ev.Transitioned {
		t.Error("repeated unavailable must not transition again")
	}

	// Window returns with the same content; the old change time still
	// counts, so the inactivity rule can fire immediately
	ev = d.Observe([]string{"Thinking..."}, t0.Add(5*time.Second))
	if ev.Status != StatusReady {
		t.Errorf("recovery with stale content = %s, want READY via inactivity", ev.Status)
	}
	if ev.ContentChanged {
		t.Error("identical content after recovery should not fingerprint as new")
	}
}

func TestApplyReadySurvivesNextObserve(t *testing.T) {
	// A hook-driven READY must not flip back to BUSY on the next
	// unchanged capture
	t0 := time.Unix(1700000000, 0)
	d := noPatternDetector(t, 2*time.Second, t0)

	d.Observe([]string{"output"}, t0)

	ev := d.Apply(StatusReady, "hook_state", t0.Add(100*time.Millisecond))
	if !ev.Transitioned || ev.MatchedPattern != "hook_state" {
		t.Fatalf("apply ready: %+v", ev)
	}

	ev = d.Observe([]string{"output"}, t0.Add(600*time.Millisecond))
	if ev.Status != StatusReady {
		t.Errorf("unchanged capture after applied READY = %s, want READY", ev.Status)
	}
	if ev.Transitioned {
		t.Error("no edge expected when capture agrees with the applied state")
	}

	// Fresh output still forces BUSY as usual
	ev = d.Observe([]string{"output", "more"}, t0.Add(1100*time.Millisecond))
	if ev.Status != StatusBusy || !ev.Transitioned {
		t.Errorf("new content after applied READY: %+v", ev)
	}
}

func TestApplyBusyResetsChangeClock(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	d := noPatternDetector(t, 2*time.Second, t0)

	// Old content, timeout long passed
	d.Observe([]string{"output"}, t0)
	d.Observe([]string{"output"}, t0.Add(3*time.Second))
	if d.Status() != StatusReady {
		t.Fatal("setup: expected READY via inactivity")
	}

	ev := d.Apply(StatusBusy, "hook_state", t0.Add(4*time.Second))
	if !ev.Transitioned {
		t.Fatal("apply busy should transition")
	}

	// Unchanged capture right after must hold BUSY, not bounce READY
	ev = d.Observe([]string{"output"}, t0.Add(4100*time.Millisecond))
	if ev.Status != StatusBusy {
		t.Errorf("capture just after applied BUSY = %s, want BUSY", ev.Status)
	}
}
