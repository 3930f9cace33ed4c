package sync

import (
	"testing"
	"time"

	"github.com/nhle/uptask/internal/logging"
)

func waitTick(t *testing.T, p *Poller, timeout time.Duration) (TickMsg, bool) {
	t.Helper()
	got := make(chan any, 1)
	go func() { got <- p.Wait()() }()
	select {
	case msg := <-got:
		tick, ok := msg.(TickMsg)
		return tick, ok
	case <-time.After(timeout):
		return TickMsg{}, false
	}
}

func TestPollerTicks(t *testing.T) {
	p := New(20*time.Millisecond, logging.Discard())
	t.Cleanup(p.Stop)

	if cmd := p.Start(); cmd == nil {
		t.Fatalf("expected a wait command")
	}
	if p.Start() != nil {
		t.Fatalf("expected second Start to be a no-op")
	}

	tick, ok := waitTick(t, p, time.Second)
	if !ok || tick.Manual {
		t.Fatalf("expected a timer tick, got %+v ok=%v", tick, ok)
	}
}

func TestPollerTriggerWhilePaused(t *testing.T) {
	p := New(time.Hour, logging.Discard())
	t.Cleanup(p.Stop)
	p.Start()
	p.Pause()

	p.Trigger()
	p.Trigger()

	tick, ok := waitTick(t, p, time.Second)
	if !ok || !tick.Manual {
		t.Fatalf("expected a manual tick, got %+v ok=%v", tick, ok)
	}
}

func TestStoppedPollerWaitReturnsNil(t *testing.T) {
	p := New(time.Hour, logging.Discard())
	p.Start()
	p.Stop()
	p.Stop()

	if msg := p.Wait()(); msg != nil {
		t.Fatalf("expected nil after stop, got %#v", msg)
	}
}

func TestNonPositiveIntervalUsesDefault(t *testing.T) {
	if got := New(0, nil).Interval(); got != DefaultInterval {
		t.Fatalf("expected %s, got %s", DefaultInterval, got)
	}
}
