// Package node wires one camera instance: acquisition backend, feature
// store, image topic, discovery monitor, stream controller and command
// gateway. Several nodes can run in one process.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smazurov/camnode/internal/acquisition"
	"github.com/smazurov/camnode/internal/discovery"
	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/features"
	"github.com/smazurov/camnode/internal/gateway"
	"github.com/smazurov/camnode/internal/logging"
	"github.com/smazurov/camnode/internal/metrics"
	"github.com/smazurov/camnode/internal/stream"
	"github.com/smazurov/camnode/internal/topic"
)

// ImageTopic is the name of the image output channel.
const ImageTopic = "image_raw"

// Config holds the per-camera settings fixed at startup.
//
// Zero timeouts fall back to the package defaults. SettleDelay is taken as
// given: zero reports the last subscriber leaving immediately.
type Config struct {
	CameraID       string
	Autostart      bool
	PixelFormat    string
	Width          int
	Height         int
	FrameRate      float64
	CommandTimeout time.Duration
	BackendTimeout time.Duration
	SettleDelay    time.Duration
	PollInterval   time.Duration
}

// Node is one running camera instance.
type Node struct {
	cfg     Config
	backend acquisition.Backend
	store   *features.Store
	topic   *topic.Topic
	monitor *discovery.Monitor
	ctrl    *stream.Controller
	gateway *gateway.Gateway
	logger  *slog.Logger
}

// Option configures a Node.
type Option func(*options)

type options struct {
	backend acquisition.Backend
}

// WithBackend replaces the simulated backend.
func WithBackend(backend acquisition.Backend) Option {
	return func(o *options) {
		o.backend = backend
	}
}

// New builds a node. The initial pixel format, when set, is applied before
// the node starts so the first stream already uses it.
func New(ctx context.Context, cfg Config, bus *events.Bus, opts ...Option) (*Node, error) {
	if cfg.CameraID == "" {
		return nil, fmt.Errorf("camera id is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.GetLogger("node").With("camera_id", cfg.CameraID)

	backend := o.backend
	if backend == nil {
		simOpts := []acquisition.SimulatorOption{
			acquisition.WithLogger(logging.GetLogger("acquisition").With("camera_id", cfg.CameraID)),
		}
		if cfg.Width > 0 && cfg.Height > 0 {
			simOpts = append(simOpts, acquisition.WithResolution(cfg.Width, cfg.Height))
		}
		if cfg.FrameRate > 0 {
			simOpts = append(simOpts, acquisition.WithFrameRate(cfg.FrameRate))
		}
		backend = acquisition.NewSimulator(simOpts...)
	}

	n := &Node{
		cfg:     cfg,
		backend: backend,
		topic:   topic.New(ImageTopic, cfg.CameraID),
		logger:  logger,
	}

	if src, ok := backend.(acquisition.FrameSource); ok {
		src.SetFrameSink(func(f acquisition.Frame) {
			if err := n.topic.PublishFrame(f); err != nil {
				logger.Warn("Dropping frame", "error", err)
			}
		})
	}

	n.store = features.NewStore(backend, n.streaming,
		features.WithEventBus(bus, cfg.CameraID),
		features.WithLogger(logging.GetLogger("features").With("camera_id", cfg.CameraID)),
	)

	n.monitor = discovery.NewMonitor(n.topic,
		discovery.WithEventBus(bus, cfg.CameraID),
		discovery.WithLogger(logging.GetLogger("discovery").With("camera_id", cfg.CameraID)),
		discovery.WithPollInterval(cfg.PollInterval),
		discovery.WithSettleDelay(cfg.SettleDelay),
	)

	n.ctrl = stream.NewController(backend, n.store,
		stream.WithCameraID(cfg.CameraID),
		stream.WithAutostart(cfg.Autostart),
		stream.WithEventBus(bus),
		stream.WithBackendTimeout(cfg.BackendTimeout),
		stream.WithLogger(logging.GetLogger("stream").With("camera_id", cfg.CameraID)),
	)

	n.gateway = gateway.New(n.ctrl,
		gateway.WithCameraID(cfg.CameraID),
		gateway.WithTimeout(cfg.CommandTimeout),
		gateway.WithLogger(logging.GetLogger("gateway").With("camera_id", cfg.CameraID)),
	)

	if cfg.PixelFormat != "" {
		if err := n.store.SetEnum(ctx, acquisition.FeaturePixelFormat, cfg.PixelFormat); err != nil {
			return nil, fmt.Errorf("apply pixel format %q: %w", cfg.PixelFormat, err)
		}
	}

	return n, nil
}

// Run drives the discovery monitor and stream controller until ctx is
// cancelled. A running stream is stopped before Run returns.
func (n *Node) Run(ctx context.Context) error {
	unregister := n.topic.OnGraphChange(n.monitor.Notify)
	defer unregister()

	n.logger.Info("Camera node started", "autostart", n.cfg.Autostart, "topic", n.topic.Name())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.monitor.Run(ctx)
	})
	g.Go(func() error {
		return n.ctrl.Run(ctx, n.monitor.Presence())
	})

	err := g.Wait()
	n.topic.Close()
	metrics.DeleteCameraMetrics(n.cfg.CameraID)
	n.logger.Info("Camera node stopped")
	return err
}

// ID returns the camera identifier.
func (n *Node) ID() string {
	return n.cfg.CameraID
}

// Autostart reports whether presence drives the stream.
func (n *Node) Autostart() bool {
	return n.cfg.Autostart
}

// Gateway returns the command surface.
func (n *Node) Gateway() *gateway.Gateway {
	return n.gateway
}

// Topic returns the image output channel.
func (n *Node) Topic() *topic.Topic {
	return n.topic
}

// Controller returns the stream controller.
func (n *Node) Controller() *stream.Controller {
	return n.ctrl
}

// Backend returns the acquisition backend.
func (n *Node) Backend() acquisition.Backend {
	return n.backend
}

func (n *Node) streaming() bool {
	return n.ctrl != nil && n.ctrl.Streaming()
}
