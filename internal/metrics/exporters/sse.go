package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/metrics"
)

// DefaultInterval is the snapshot period of the SSE exporter.
const DefaultInterval = time.Second

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes a CameraMetricsEvent per camera.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// previous FramesPublished per camera, for the rate
	last     map[string]uint64
	lastTick time.Time
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher, interval time.Duration) *SSEExporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &SSEExporter{
		eventBus: eventBus,
		interval: interval,
		last:     make(map[string]uint64),
	}
}

// Start begins the export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.lastTick = time.Now()
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the exporter and waits for the goroutine to finish. It is safe
// to call more than once.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.publish(now)
		}
	}
}

func (s *SSEExporter) publish(now time.Time) {
	elapsed := now.Sub(s.lastTick).Seconds()
	s.lastTick = now

	all := metrics.GetAllCameraMetrics()
	for id := range s.last {
		if _, ok := all[id]; !ok {
			delete(s.last, id)
		}
	}

	for id, m := range all {
		var rate float64
		if prev, ok := s.last[id]; ok && elapsed > 0 && m.FramesPublished >= prev {
			rate = float64(m.FramesPublished-prev) / elapsed
		}
		s.last[id] = m.FramesPublished

		s.eventBus.Publish(events.CameraMetricsEvent{
			CameraID:        id,
			Streaming:       m.Streaming,
			Subscribers:     m.Subscribers,
			FrameRate:       rate,
			FramesPublished: m.FramesPublished,
			FramesDropped:   m.FramesDropped,
			BackendFailures: m.BackendFailures,
			Timestamp:       now.Format(time.RFC3339),
		})
	}
}
