package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/camnode/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint for node events.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of presence changes, committed stream transitions, background failures, feature changes and periodic camera metrics. The current stream state is sent first.",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"presence-changed":     events.PresenceChangedEvent{},
		"stream-state-changed": events.StreamStateChangedEvent{},
		"stream-error":         events.StreamErrorEvent{},
		"feature-changed":      events.FeatureChangedEvent{},
		"camera-metrics":       events.CameraMetricsEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.PresenceChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FeatureChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraMetricsEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Snapshot so clients do not have to wait for the next transition.
		status := s.node.Controller().Status()
		snapshot := events.StreamStateChangedEvent{
			CameraID:  s.node.ID(),
			Streaming: status.Streaming,
			Trigger:   "snapshot",
			Timestamp: time.Now().Format(time.RFC3339),
		}
		if status.Streaming {
			snapshot.Source = status.Source.String()
		}
		if err := send.Data(snapshot); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
