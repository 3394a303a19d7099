package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/camnode/internal/api/models"
	"github.com/smazurov/camnode/internal/topic"
)

const imageStreamBuffer = 2

// registerImageRoutes registers the image topic SSE endpoint. Every open
// connection is one topic subscriber, so with autostart enabled the first
// client starts acquisition and the last one to leave stops it.
func (s *Server) registerImageRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "image-stream",
		Method:      http.MethodGet,
		Path:        "/api/" + s.node.Topic().Name(),
		Summary:     "Image Stream",
		Description: "Subscribe to the image topic. Events carry frame metadata and, with data=true, the base64 payload.",
		Tags:        []string{"stream"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"image": models.ImageEvent{},
	}, func(ctx context.Context, input *models.ImageStreamInput, send sse.Sender) {
		sub := s.node.Topic().Subscribe(imageStreamBuffer)
		defer sub.Close()

		s.logger.Debug("Image subscriber attached", "subscriber", sub.ID())
		defer s.logger.Debug("Image subscriber detached", "subscriber", sub.ID())

		for {
			select {
			case <-ctx.Done():
				return
			case img, ok := <-sub.C():
				if !ok {
					return
				}
				if err := send.Data(imageEvent(img, sub.Dropped(), input.IncludeData)); err != nil {
					return
				}
			}
		}
	})
}

func imageEvent(img topic.Image, dropped uint64, includeData bool) models.ImageEvent {
	ev := models.ImageEvent{
		Seq:      img.Header.Seq,
		Stamp:    img.Header.Stamp.Format(time.RFC3339Nano),
		FrameID:  img.Header.FrameID,
		Width:    img.Width,
		Height:   img.Height,
		Encoding: img.Encoding,
		Step:     img.Step,
		Size:     len(img.Data),
		Dropped:  dropped,
	}
	if includeData {
		ev.Data = base64.StdEncoding.EncodeToString(img.Data)
	}
	return ev
}
