// Package netmon watches network connectivity and notifies subscribers
// of availability transitions.
package netmon

import (
	"net"
	"sync"
	"time"
)

// SubscribeFunc receives availability transitions. Callbacks run on
// the monitor's goroutine and must not block.
type SubscribeFunc func(online bool)

// Monitor is the connectivity collaborator consumed by the service
// manager.
type Monitor interface {
	// Online reports the last observed availability.
	Online() bool

	// Subscribe registers fn for availability transitions. The current
	// state is not replayed; only changes are reported.
	Subscribe(fn SubscribeFunc)
}

// ProbeMonitor detects connectivity by periodically dialing a probe
// address.
type ProbeMonitor struct {
	addr     string
	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	online bool
	subs   []SubscribeFunc
	stopCh chan struct{}
}

var _ Monitor = (*ProbeMonitor)(nil)

// NewProbeMonitor creates a monitor dialing addr every interval. The
// monitor starts in the online state and does not probe until Start.
func NewProbeMonitor(addr string, interval time.Duration) *ProbeMonitor {
	return &ProbeMonitor{
		addr:     addr,
		interval: interval,
		timeout:  5 * time.Second,
		online:   true,
		stopCh:   make(chan struct{}),
	}
}

func (m *ProbeMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *ProbeMonitor) Subscribe(fn SubscribeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Start launches the probe goroutine.
func (m *ProbeMonitor) Start() {
	go m.loop()
}

// Stop terminates the probe goroutine.
func (m *ProbeMonitor) Stop() {
	close(m.stopCh)
}

func (m *ProbeMonitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.set(m.probe())
		}
	}
}

func (m *ProbeMonitor) probe() bool {
	conn, err := net.DialTimeout("tcp", m.addr, m.timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (m *ProbeMonitor) set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]SubscribeFunc, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}

// ManualMonitor is a Monitor whose state is flipped by the caller,
// used for explicit offline toggles and in tests.
type ManualMonitor struct {
	mu     sync.Mutex
	online bool
	subs   []SubscribeFunc
}

var _ Monitor = (*ManualMonitor)(nil)

// NewManualMonitor creates a monitor starting in the given state.
func NewManualMonitor(online bool) *ManualMonitor {
	return &ManualMonitor{online: online}
}

func (m *ManualMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *ManualMonitor) Subscribe(fn SubscribeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline flips the state, notifying subscribers on change.
func (m *ManualMonitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]SubscribeFunc, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}
