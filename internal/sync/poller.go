// Package sync keeps the loaded projects fresh by asking the TUI to reload
// them on an interval, so changes made by collaborators show up without a
// manual refresh.
package sync

import (
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
)

// TickMsg is a tea.Msg asking the application to reload remote data.
type TickMsg struct {
	// Manual is set when the tick came from Trigger rather than the timer.
	Manual bool
	At     time.Time
}

// DefaultInterval is used when a non-positive interval is configured with
// polling enabled.
const DefaultInterval = 60 * time.Second

// Poller emits TickMsg on an interval while running.
type Poller struct {
	interval  time.Duration
	tickCh    chan TickMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	log       logrus.FieldLogger
	now       func() time.Time

	mu      gosync.Mutex
	running bool
	paused  bool
}

// New creates a Poller. The poller does nothing until Start is called.
func New(interval time.Duration, log logrus.FieldLogger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logrus.New()
	}
	return &Poller{
		interval:  interval,
		tickCh:    make(chan TickMsg, 1),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		log:       log.WithField("component", "poller"),
		now:       time.Now,
	}
}

// Interval returns the configured polling interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start launches the polling goroutine and returns a command that waits
// for the first tick. Calling Start twice returns nil.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	go p.loop()
	p.log.WithField("interval", p.interval).Debug("poller started")
	return p.Wait()
}

// Stop halts the polling goroutine. It is idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	close(p.stopCh)
	p.running = false
}

// Pause suppresses timer ticks until Resume is called. Manual triggers
// still fire.
func (p *Poller) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume re-enables timer ticks.
func (p *Poller) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

// Trigger requests an immediate tick. It never blocks.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A trigger is already queued.
	}
}

// Wait returns a command that blocks until the next tick. The application
// re-issues it after handling each TickMsg. It returns nil once the
// poller is stopped.
func (p *Poller) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-p.tickCh:
			return msg
		case <-p.stopCh:
			return nil
		}
	}
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			p.log.Debug("poller stopped")
			return
		case <-ticker.C:
			p.mu.Lock()
			paused := p.paused
			p.mu.Unlock()
			if paused {
				continue
			}
			p.emit(TickMsg{At: p.now()})
		case <-p.triggerCh:
			p.emit(TickMsg{Manual: true, At: p.now()})
		}
	}
}

// emit delivers msg unless a tick is already waiting to be consumed.
func (p *Poller) emit(msg TickMsg) {
	select {
	case p.tickCh <- msg:
	default:
		p.log.Debug("tick dropped; previous tick not yet handled")
	}
}
