package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/logging"
)

// LogStreamInput selects which log entries a stream client receives.
type LogStreamInput struct {
	Since    uint64 `query:"since" doc:"Replay only buffered entries with a greater sequence number"`
	Module   string `query:"module" doc:"Only entries from this module" example:"stream"`
	CameraID string `query:"camera_id" doc:"Only entries about this camera" example:"cam0"`
}

func (in *LogStreamInput) match(module, cameraID string) bool {
	return (in.Module == "" || in.Module == module) && (in.CameraID == "" || in.CameraID == cameraID)
}

// registerLogRoutes registers the log streaming SSE endpoint.
func (s *Server) registerLogRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends buffered logs first, then streams new logs. Reconnecting clients pass the last seen seq as since.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, input *LogStreamInput, send sse.Sender) {
		// Subscribe before replaying so nothing logged in between is lost.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		last := input.Since
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.Since(input.Since) {
				last = entry.Seq
				if !input.match(entry.Module, entry.CameraID) {
					continue
				}
				if err := send.Data(LogEntryEvent(entry)); err != nil {
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				entry, ok := event.(events.LogEntryEvent)
				// Already replayed from the buffer.
				if !ok || entry.Seq <= last || !input.match(entry.Module, entry.CameraID) {
					continue
				}
				if err := send.Data(entry); err != nil {
					return
				}
			}
		}
	})
}

// LogEntryEvent converts a buffered log entry into its bus event. main
// installs it as the logging callback so the stream receives new entries.
func LogEntryEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		CameraID:   entry.CameraID,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}
