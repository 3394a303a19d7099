// Package gateway exposes the synchronous command surface of a camera
// node. Every operation blocks until the stream controller has applied it,
// bounded by a timeout, and reports the outcome as a {code, text} status.
package gateway

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/smazurov/camnode/internal/camerr"
	"github.com/smazurov/camnode/internal/features"
	"github.com/smazurov/camnode/internal/metrics"
	"github.com/smazurov/camnode/internal/stream"
)

// DefaultTimeout bounds how long a command waits for the controller.
const DefaultTimeout = 5 * time.Second

// Controller is the stream controller as seen by the gateway.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() stream.Status
	FeatureInfo(ctx context.Context, name string) (features.Descriptor, error)
	SetFeature(ctx context.Context, name, value string) error
}

// StatusResult is the response of Status.
type StatusResult struct {
	Streaming bool          `json:"streaming" example:"true" doc:"Whether the camera is acquiring"`
	Source    string        `json:"source,omitempty" example:"automatic" enum:"explicit,automatic" doc:"What started the stream, set while streaming"`
	Error     camerr.Status `json:"error" doc:"Command outcome"`
}

// EnumInfoResult is the response of FeatureEnumInfoGet.
type EnumInfoResult struct {
	AvailableValues []string      `json:"available_values" doc:"Values accepted by the feature"`
	Current         string        `json:"current,omitempty" example:"Mono8" doc:"Current value"`
	Error           camerr.Status `json:"error" doc:"Command outcome"`
}

// Gateway serializes client commands into one stream controller.
type Gateway struct {
	ctrl     Controller
	cameraID string
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout sets the per-command bound.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithCameraID labels logs and metrics.
func WithCameraID(id string) Option {
	return func(g *Gateway) {
		g.cameraID = id
	}
}

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// New creates a gateway in front of ctrl.
func New(ctrl Controller, opts ...Option) *Gateway {
	g := &Gateway{
		ctrl:    ctrl,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// StreamStart starts acquisition explicitly.
func (g *Gateway) StreamStart(ctx context.Context) camerr.Status {
	return g.do(ctx, "stream_start", func(ctx context.Context) error {
		return g.ctrl.Start(ctx)
	})
}

// StreamStop stops acquisition explicitly.
func (g *Gateway) StreamStop(ctx context.Context) camerr.Status {
	return g.do(ctx, "stream_stop", func(ctx context.Context) error {
		return g.ctrl.Stop(ctx)
	})
}

// Status reports whether the camera is streaming and, if so, what started
// it. Both come from one snapshot. It never waits on the backend.
func (g *Gateway) Status(ctx context.Context) StatusResult {
	var snap stream.Status
	status := g.do(ctx, "status", func(context.Context) error {
		snap = g.ctrl.Status()
		return nil
	})
	res := StatusResult{Streaming: snap.Streaming, Error: status}
	if snap.Streaming {
		res.Source = snap.Source.String()
	}
	return res
}

// FeatureEnumInfoGet lists the values accepted by an enumeration feature.
func (g *Gateway) FeatureEnumInfoGet(ctx context.Context, name string) EnumInfoResult {
	var desc features.Descriptor
	status := g.do(ctx, "feature_enum_info_get", func(ctx context.Context) error {
		var err error
		desc, err = g.ctrl.FeatureInfo(ctx, name)
		return err
	})
	values := desc.Allowed
	if values == nil {
		values = []string{}
	}
	return EnumInfoResult{AvailableValues: values, Current: desc.Current, Error: status}
}

// FeatureEnumSet writes an enumeration feature. It fails while streaming.
func (g *Gateway) FeatureEnumSet(ctx context.Context, name, value string) camerr.Status {
	return g.do(ctx, "feature_enum_set", func(ctx context.Context) error {
		return g.ctrl.SetFeature(ctx, name, value)
	})
}

func (g *Gateway) do(ctx context.Context, operation string, fn func(context.Context) error) camerr.Status {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	status := camerr.ToStatus(err)
	metrics.ObserveGatewayRequest(g.cameraID, operation, strconv.Itoa(status.Code), elapsed.Seconds())

	if err != nil {
		g.logger.Warn("Command failed", "operation", operation, "code", status.Code, "error", err, "duration", elapsed)
	} else {
		g.logger.Debug("Command completed", "operation", operation, "duration", elapsed)
	}
	return status
}
