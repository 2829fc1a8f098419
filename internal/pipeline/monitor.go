package pipeline

import (
	"sync"

	"github.com/bryanchriswhite/FlameSeg/internal/capture"
)

// Status is a point-in-time view of a run, served to the preview API
type Status struct {
	RunID        string              `json:"run_id"`
	State        string              `json:"state"`
	Input        string              `json:"input"`
	Output       string              `json:"output"`
	Properties   *capture.Properties `json:"properties,omitempty"`
	Frames       int                 `json:"frames"`
	FlameFrames  int                 `json:"flame_frames"`
	LastCoverage float64             `json:"last_coverage"`
	Error        string              `json:"error,omitempty"`
}

// Monitor holds the status of the current run and fans updates out to
// subscribers. The zero value is not usable; use NewMonitor.
type Monitor struct {
	mu        sync.RWMutex
	status    Status
	listeners []chan Status
}

// NewMonitor creates a monitor in the Opening state
func NewMonitor() *Monitor {
	return &Monitor{
		status:    Status{State: StateOpening.String()},
		listeners: make([]chan Status, 0),
	}
}

// Snapshot returns a copy of the current status
func (m *Monitor) Snapshot() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.status
	if s.Properties != nil {
		p := *s.Properties
		s.Properties = &p
	}
	return s
}

// Subscribe adds a listener for status changes
func (m *Monitor) Subscribe() chan Status {
	ch := make(chan Status, 10)
	m.mu.Lock()
	m.listeners = append(m.listeners, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel
func (m *Monitor) Unsubscribe(ch chan Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, listener := range m.listeners {
		if listener == ch {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Update applies fn to the status and notifies listeners
func (m *Monitor) Update(fn func(s *Status)) {
	m.mu.Lock()
	fn(&m.status)
	m.mu.Unlock()

	m.notifyListeners(m.Snapshot())
}

func (m *Monitor) notifyListeners(s Status) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, listener := range m.listeners {
		select {
		case listener <- s:
		default:
			// Skip if channel is full
		}
	}
}
