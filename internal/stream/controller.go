// Package stream owns the camera stream state machine. Explicit commands,
// subscriber presence and feature writes are all applied by a single
// goroutine so the acquisition backend never sees overlapping or repeated
// start/stop calls.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/smazurov/camnode/internal/camerr"
	"github.com/smazurov/camnode/internal/discovery"
	"github.com/smazurov/camnode/internal/events"
	"github.com/smazurov/camnode/internal/features"
	"github.com/smazurov/camnode/internal/metrics"
)

// DefaultBackendTimeout bounds backend calls that no caller waits for.
const DefaultBackendTimeout = 10 * time.Second

// Transition triggers.
const (
	TriggerExplicitStart = "explicit_start"
	TriggerExplicitStop  = "explicit_stop"
	TriggerPresence      = "presence"
	TriggerShutdown      = "shutdown"
)

// ErrStopped is returned for commands submitted after the controller exited.
var ErrStopped = camerr.New(camerr.CodeBackendUnavailable, "stream controller stopped")

// Backend is the exclusive acquisition resource. Only the controller calls it.
type Backend interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Features is the feature store consulted for reconfiguration.
type Features interface {
	EnumInfo(ctx context.Context, name string) (features.Descriptor, error)
	SetEnum(ctx context.Context, name, value string) error
}

type requestKind int

const (
	reqStart requestKind = iota
	reqStop
	reqPresence
	reqFeatureInfo
	reqFeatureSet
)

type request struct {
	kind    requestKind
	ctx     context.Context
	present bool
	name    string
	value   string
	reply   chan result
}

type result struct {
	err  error
	desc features.Descriptor
}

// Controller is the single owner of one camera's stream state.
type Controller struct {
	cameraID       string
	autostart      bool
	backend        Backend
	features       Features
	bus            *events.Bus
	logger         *slog.Logger
	backendTimeout time.Duration
	autoFailureLog rate.Sometimes

	requests chan request
	done     chan struct{}
	started  atomic.Bool

	mu    sync.RWMutex
	state State
}

// Option configures a Controller.
type Option func(*Controller)

// WithCameraID labels logs, events and metrics.
func WithCameraID(id string) Option {
	return func(c *Controller) {
		c.cameraID = id
	}
}

// WithAutostart enables starting and stopping on subscriber presence.
func WithAutostart(enabled bool) Option {
	return func(c *Controller) {
		c.autostart = enabled
	}
}

// WithEventBus publishes state transitions and background failures.
func WithEventBus(bus *events.Bus) Option {
	return func(c *Controller) {
		c.bus = bus
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithBackendTimeout bounds presence-driven and shutdown backend calls.
// Non-positive values keep DefaultBackendTimeout.
func WithBackendTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.backendTimeout = d
		}
	}
}

// NewController creates an Idle controller. Call Run to start processing.
func NewController(backend Backend, feats Features, opts ...Option) *Controller {
	c := &Controller{
		backend:        backend,
		features:       feats,
		logger:         slog.Default(),
		backendTimeout: DefaultBackendTimeout,
		autoFailureLog: rate.Sometimes{First: 3, Interval: 30 * time.Second},
		requests:       make(chan request),
		done:           make(chan struct{}),
		state:          Idle{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run applies commands and presence transitions until ctx is cancelled.
// A stream still running at that point is stopped once. presence may be nil.
func (c *Controller) Run(ctx context.Context, presence <-chan discovery.Presence) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("stream controller already running")
	}
	defer close(c.done)

	c.logger.Info("Stream controller started", "autostart", c.autostart)
	metrics.SetStreaming(c.cameraID, false)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil

		case p, ok := <-presence:
			if !ok {
				presence = nil
				continue
			}
			c.applyPresence(ctx, p.Present)

		case req := <-c.requests:
			req.reply <- c.handle(ctx, req)
		}
	}
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Start requests an explicit stream start and waits for the backend.
func (c *Controller) Start(ctx context.Context) error {
	return c.submit(ctx, request{kind: reqStart}).err
}

// Stop requests an explicit stream stop and waits for the backend.
func (c *Controller) Stop(ctx context.Context) error {
	return c.submit(ctx, request{kind: reqStop}).err
}

// Presence injects a presence transition and waits until it was applied.
// Failures are handled like any presence-driven transition and not returned.
func (c *Controller) Presence(ctx context.Context, present bool) error {
	return c.submit(ctx, request{kind: reqPresence, present: present}).err
}

// FeatureInfo reads an enumeration feature through the serialization point.
func (c *Controller) FeatureInfo(ctx context.Context, name string) (features.Descriptor, error) {
	res := c.submit(ctx, request{kind: reqFeatureInfo, name: name})
	return res.desc, res.err
}

// SetFeature writes an enumeration feature. It fails with InvalidOperation
// while streaming.
func (c *Controller) SetFeature(ctx context.Context, name, value string) error {
	return c.submit(ctx, request{kind: reqFeatureSet, name: name, value: value}).err
}

// Status returns the last committed state. It never blocks on the backend.
func (c *Controller) Status() Status {
	return statusOf(c.State())
}

// State returns the last committed state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Streaming reports whether the last committed state is Streaming.
func (c *Controller) Streaming() bool {
	return c.Status().Streaming
}

func (c *Controller) submit(ctx context.Context, req request) result {
	req.ctx = ctx
	req.reply = make(chan result, 1)

	select {
	case c.requests <- req:
	case <-ctx.Done():
		return result{err: camerr.Wrap(camerr.CodeTimeout, "command not accepted", ctx.Err())}
	case <-c.done:
		return result{err: ErrStopped}
	}

	select {
	case res := <-req.reply:
		return res
	case <-ctx.Done():
		return result{err: camerr.Wrap(camerr.CodeTimeout, "command did not complete", ctx.Err())}
	case <-c.done:
		select {
		case res := <-req.reply:
			return res
		default:
			return result{err: ErrStopped}
		}
	}
}

func (c *Controller) handle(ctx context.Context, req request) result {
	switch req.kind {
	case reqStart:
		return result{err: c.explicitStart(req.ctx)}
	case reqStop:
		return result{err: c.explicitStop(req.ctx)}
	case reqPresence:
		c.applyPresence(ctx, req.present)
		return result{}
	case reqFeatureInfo:
		desc, err := c.features.EnumInfo(req.ctx, req.name)
		return result{desc: desc, err: err}
	case reqFeatureSet:
		return result{err: c.features.SetEnum(req.ctx, req.name, req.value)}
	default:
		return result{err: camerr.New(camerr.CodeInternalFault, "unknown request")}
	}
}

func (c *Controller) explicitStart(ctx context.Context) error {
	if s, ok := c.State().(Streaming); ok {
		if s.Source != SourceExplicit {
			c.commit(Streaming{Source: SourceExplicit}, TriggerExplicitStart)
		}
		return nil
	}

	if err := c.callBackend(ctx, "start", c.backend.Start); err != nil {
		return err
	}
	c.commit(Streaming{Source: SourceExplicit}, TriggerExplicitStart)
	return nil
}

func (c *Controller) explicitStop(ctx context.Context) error {
	if _, ok := c.State().(Streaming); !ok {
		return nil
	}

	if err := c.callBackend(ctx, "stop", c.backend.Stop); err != nil {
		return err
	}
	c.commit(Idle{}, TriggerExplicitStop)
	return nil
}

func (c *Controller) applyPresence(ctx context.Context, present bool) {
	if !c.autostart {
		c.logger.Debug("Ignoring presence change, autostart disabled", "present", present)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.backendTimeout)
	defer cancel()

	switch s := c.State().(type) {
	case Idle:
		if !present {
			return
		}
		if err := c.callBackend(ctx, "start", c.backend.Start); err != nil {
			c.backgroundFailure("start", err)
			return
		}
		c.commit(Streaming{Source: SourceAutomatic}, TriggerPresence)

	case Streaming:
		if present || s.Source != SourceAutomatic {
			return
		}
		if err := c.callBackend(ctx, "stop", c.backend.Stop); err != nil {
			c.backgroundFailure("stop", err)
			return
		}
		c.commit(Idle{}, TriggerPresence)
	}
}

func (c *Controller) shutdown() {
	if _, ok := c.State().(Streaming); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.backendTimeout)
	defer cancel()

	if err := c.callBackend(ctx, "stop", c.backend.Stop); err != nil {
		c.logger.Error("Failed to stop stream on shutdown", "error", err)
		return
	}
	c.commit(Idle{}, TriggerShutdown)
}

func (c *Controller) callBackend(ctx context.Context, action string, call func(context.Context) error) error {
	start := time.Now()
	err := call(ctx)
	metrics.RecordBackendCall(c.cameraID, action, err)
	if err != nil {
		c.logger.Debug("Backend call failed", "action", action, "error", err, "duration", time.Since(start))
		return err
	}
	c.logger.Debug("Backend call completed", "action", action, "duration", time.Since(start))
	return nil
}

// backgroundFailure reports a failed presence-driven call. Nobody waits for
// the result, so the error is logged (throttled) and published.
func (c *Controller) backgroundFailure(action string, err error) {
	c.autoFailureLog.Do(func() {
		c.logger.Error("Automatic stream transition failed", "action", action, "error", err)
	})
	if c.bus != nil {
		c.bus.Publish(events.StreamErrorEvent{
			CameraID:  c.cameraID,
			Action:    action,
			Code:      int(camerr.CodeOf(err)),
			Error:     err.Error(),
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}

func (c *Controller) commit(next State, trigger string) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()

	status := statusOf(next)
	metrics.SetStreaming(c.cameraID, status.Streaming)
	metrics.RecordTransition(c.cameraID, next.String(), trigger)
	c.logger.Info("Stream state changed", "from", prev.String(), "to", next.String(), "trigger", trigger)

	if c.bus != nil {
		c.bus.Publish(events.StreamStateChangedEvent{
			CameraID:  c.cameraID,
			Streaming: status.Streaming,
			Source:    status.Source.String(),
			Trigger:   trigger,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}
