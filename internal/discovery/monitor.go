// Package discovery turns graph change notifications on the image topic into
// debounced subscriber presence transitions.
package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/camnode/internal/events"
)

// DefaultSettleDelay is how long the subscriber count must stay at zero
// before presence is reported as lost.
const DefaultSettleDelay = 500 * time.Millisecond

// Counter reports the current number of subscribers.
type Counter interface {
	SubscriberCount() (int, error)
}

// Presence is a stable has-subscribers transition.
type Presence struct {
	Present     bool
	Subscribers int
}

// Monitor recounts subscribers on every notification and emits a Presence
// only when the boolean changes. Gaining a subscriber is reported at once;
// losing the last one is reported after the settle delay unless a
// subscriber reappears first.
type Monitor struct {
	counter  Counter
	settle   time.Duration
	poll     time.Duration
	cameraID string
	bus      *events.Bus
	logger   *slog.Logger

	notify chan struct{}
	out    chan Presence
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSettleDelay sets the debounce applied before reporting presence loss.
// Zero or negative reports it immediately.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Monitor) {
		m.settle = max(d, 0)
	}
}

// WithPollInterval makes the monitor recount periodically in addition to
// notifications. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.poll = d
	}
}

// WithEventBus publishes PresenceChangedEvent for every emitted transition.
func WithEventBus(bus *events.Bus, cameraID string) Option {
	return func(m *Monitor) {
		m.bus = bus
		m.cameraID = cameraID
	}
}

// WithLogger sets the monitor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// NewMonitor creates a monitor reading counts from counter.
func NewMonitor(counter Counter, opts ...Option) *Monitor {
	m := &Monitor{
		counter: counter,
		settle:  DefaultSettleDelay,
		logger:  slog.Default(),
		notify:  make(chan struct{}, 1),
		out:     make(chan Presence, 8),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Notify signals a graph change. It never blocks; notifications that
// arrive while one is pending are coalesced.
func (m *Monitor) Notify() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Presence returns the channel of presence transitions. It is closed when
// Run returns.
func (m *Monitor) Presence() <-chan Presence {
	return m.out
}

// Run counts once immediately, then processes notifications until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.out)

	var (
		present bool
		timer   *time.Timer
		timerC  <-chan time.Time
		pollC   <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	if m.poll > 0 {
		ticker := time.NewTicker(m.poll)
		defer ticker.Stop()
		pollC = ticker.C
	}

	emit := func(p Presence) bool {
		present = p.Present
		m.logger.Debug("Subscriber presence changed", "present", p.Present, "subscribers", p.Subscribers)
		if m.bus != nil {
			m.bus.Publish(events.PresenceChangedEvent{
				CameraID:    m.cameraID,
				Present:     p.Present,
				Subscribers: p.Subscribers,
				Timestamp:   time.Now().Format(time.RFC3339),
			})
		}
		select {
		case m.out <- p:
			return true
		case <-ctx.Done():
			return false
		}
	}

	cancelPending := func() {
		if timerC != nil {
			timer.Stop()
			timerC = nil
		}
	}

	evaluate := func() bool {
		n := m.count()
		if n > 0 {
			cancelPending()
			if !present {
				return emit(Presence{Present: true, Subscribers: n})
			}
			return true
		}
		if !present || timerC != nil {
			return true
		}
		if m.settle <= 0 {
			return emit(Presence{Present: false})
		}
		timer = time.NewTimer(m.settle)
		timerC = timer.C
		return true
	}

	if !evaluate() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-m.notify:
			if !evaluate() {
				return nil
			}

		case <-pollC:
			if !evaluate() {
				return nil
			}

		case <-timerC:
			timerC = nil
			n := m.count()
			if n > 0 {
				// Subscriber came back without a notification reaching us yet.
				continue
			}
			if !emit(Presence{Present: false}) {
				return nil
			}
		}
	}
}

// count degrades counter failures to zero subscribers.
func (m *Monitor) count() int {
	n, err := m.counter.SubscriberCount()
	if err != nil {
		m.logger.Warn("Failed to count subscribers", "error", err)
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}
