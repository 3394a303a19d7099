package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camnode/internal/api/models"
	"github.com/smazurov/camnode/internal/metrics"
)

// registerStreamRoutes registers the explicit stream commands and status.
func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "stream-start",
		Method:      http.MethodPost,
		Path:        "/api/stream/start",
		Summary:     "Start Stream",
		Description: "Start acquisition explicitly. Succeeds without a backend call when already streaming; an automatic stream becomes explicit and is no longer stopped when subscribers leave.",
		Tags:        []string{"stream"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.CommandResponse, error) {
		return &models.CommandResponse{Body: s.node.Gateway().StreamStart(ctx)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stream-stop",
		Method:      http.MethodPost,
		Path:        "/api/stream/stop",
		Summary:     "Stop Stream",
		Description: "Stop acquisition regardless of what started it. Succeeds when already idle.",
		Tags:        []string{"stream"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.CommandResponse, error) {
		return &models.CommandResponse{Body: s.node.Gateway().StreamStop(ctx)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stream-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Stream Status",
		Description: "Report whether the camera is streaming, what started it, and image topic counters",
		Tags:        []string{"stream"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.StatusResponse, error) {
		res := s.node.Gateway().Status(ctx)
		data := models.StatusData{
			CameraID:  s.node.ID(),
			Streaming: res.Streaming,
			Source:    res.Source,
			Autostart: s.node.Autostart(),
			Error:     res.Error,
		}
		if count, err := s.node.Topic().SubscriberCount(); err == nil {
			data.Subscribers = count
		}
		if m := metrics.GetCameraMetrics(s.node.ID()); m != nil {
			data.FramesPublished = m.FramesPublished
			data.FramesDropped = m.FramesDropped
			data.BackendFailures = m.BackendFailures
		}
		return &models.StatusResponse{Body: data}, nil
	})
}
