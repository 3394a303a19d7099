package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/camnode/internal/events"
)

// Manager subscribes to stream events and drives the tally LED from the
// aggregate state of all cameras in the process.
type Manager struct {
	controller Controller
	eventBus   *events.Bus
	logger     *slog.Logger

	mu          sync.Mutex
	streaming   map[string]bool // camera id -> committed streaming state
	failed      map[string]bool // camera id -> background failure since last transition
	pattern     string
	unsubscribe []func()
}

// NewManager creates a tally manager.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
		streaming:  make(map[string]bool),
		failed:     make(map[string]bool),
	}
}

// Start turns the LED off and begins listening for stream events.
func (m *Manager) Start() {
	m.mu.Lock()
	m.apply()
	m.mu.Unlock()

	m.unsubscribe = []func(){
		m.eventBus.Subscribe(m.handleStateChanged),
		m.eventBus.Subscribe(m.handleStreamError),
	}
	m.logger.Info("Tally manager started")
}

// Stop unsubscribes and turns the LED off.
func (m *Manager) Stop() {
	for _, unsub := range m.unsubscribe {
		unsub()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.controller.Set(TallyLED, PatternOff); err != nil {
		m.logger.Warn("Failed to turn tally LED off", "error", err)
	}
	m.pattern = PatternOff
	m.logger.Info("Tally manager stopped")
}

// Pattern returns the pattern last applied.
func (m *Manager) Pattern() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pattern
}

func (m *Manager) handleStateChanged(e events.StreamStateChangedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.streaming[e.CameraID] = e.Streaming
	delete(m.failed, e.CameraID)
	m.apply()
}

func (m *Manager) handleStreamError(e events.StreamErrorEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed[e.CameraID] = true
	m.apply()
}

// apply must be called with mu held.
func (m *Manager) apply() {
	pattern := PatternOff
	switch {
	case len(m.failed) > 0:
		pattern = PatternBlink
	case anyTrue(m.streaming):
		pattern = PatternSolid
	}
	if pattern == m.pattern {
		return
	}

	if err := m.controller.Set(TallyLED, pattern); err != nil {
		m.logger.Warn("Failed to set tally LED", "pattern", pattern, "error", err)
		return
	}
	m.logger.Debug("Tally LED updated", "pattern", pattern)
	m.pattern = pattern
}

func anyTrue(states map[string]bool) bool {
	for _, v := range states {
		if v {
			return true
		}
	}
	return false
}
