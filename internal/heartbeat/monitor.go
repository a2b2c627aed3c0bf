// Package heartbeat watches liveness of monitored targets. A target that does
// not report within the timeout is declared dead exactly once.
package heartbeat

import (
	"fmt"
	"sync"
	"time"
)

// Services holds the heartbeat settings shared by every monitor.
type Services struct {
	Interval time.Duration
	Timeout  time.Duration
}

func NewServices(interval, timeout time.Duration) (*Services, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("heartbeat interval must be > 0")
	}
	if timeout <= interval {
		return nil, fmt.Errorf("heartbeat timeout (%v) must exceed interval (%v)", timeout, interval)
	}
	return &Services{Interval: interval, Timeout: timeout}, nil
}

// NewMonitor creates a monitor that calls onTimeout for targets that go quiet.
func (s *Services) NewMonitor(onTimeout func(target string)) *Monitor {
	return &Monitor{
		timeout:   s.Timeout,
		onTimeout: onTimeout,
		timers:    make(map[string]*time.Timer),
	}
}

// Monitor tracks a set of targets, each with its own deadline.
type Monitor struct {
	timeout   time.Duration
	onTimeout func(target string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// Monitor starts watching target. The first deadline runs from now.
func (m *Monitor) Monitor(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if t, ok := m.timers[target]; ok {
		t.Reset(m.timeout)
		return
	}
	m.timers[target] = time.AfterFunc(m.timeout, func() { m.expire(target) })
}

// ReceiveHeartbeat pushes target's deadline out by one timeout. Heartbeats for
// unmonitored targets are ignored.
func (m *Monitor) ReceiveHeartbeat(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[target]; ok {
		t.Reset(m.timeout)
	}
}

// Unmonitor stops watching target.
func (m *Monitor) Unmonitor(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[target]; ok {
		t.Stop()
		delete(m.timers, target)
	}
}

// Stop unmonitors every target. The monitor cannot be reused.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for target, t := range m.timers {
		t.Stop()
		delete(m.timers, target)
	}
}

func (m *Monitor) expire(target string) {
	m.mu.Lock()
	if _, ok := m.timers[target]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.timers, target)
	m.mu.Unlock()

	if m.onTimeout != nil {
		m.onTimeout(target)
	}
}
