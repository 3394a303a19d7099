// Package features gates device feature access on the stream state.
package features

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/camnode/internal/acquisition"
	"github.com/smazurov/camnode/internal/camerr"
	"github.com/smazurov/camnode/internal/events"
)

// Device is the part of the acquisition backend the store talks to.
type Device interface {
	EnumInfo(ctx context.Context, name string) (acquisition.EnumInfo, error)
	SetEnum(ctx context.Context, name, value string) error
}

// Descriptor is the last known state of an enumeration feature.
type Descriptor struct {
	Name    string   `json:"name" example:"PixelFormat" doc:"Feature name"`
	Current string   `json:"current" example:"Mono8" doc:"Current value"`
	Allowed []string `json:"allowed" doc:"Values accepted by the device"`
}

// Store validates and applies feature writes. It never writes a feature
// while the stream reports Streaming.
type Store struct {
	device    Device
	streaming func() bool
	cameraID  string
	bus       *events.Bus
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]Descriptor
}

// Option configures a Store.
type Option func(*Store)

// WithEventBus publishes FeatureChangedEvent after successful writes.
func WithEventBus(bus *events.Bus, cameraID string) Option {
	return func(s *Store) {
		s.bus = bus
		s.cameraID = cameraID
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a feature store. streaming reports the authoritative
// stream state and is consulted on every write.
func NewStore(device Device, streaming func() bool, opts ...Option) *Store {
	s := &Store{
		device:    device,
		streaming: streaming,
		logger:    slog.Default(),
		cache:     make(map[string]Descriptor),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnumInfo queries the device for the current and allowed values. The
// allowed set is refreshed on every call since it may depend on other
// features.
func (s *Store) EnumInfo(ctx context.Context, name string) (Descriptor, error) {
	info, err := s.device.EnumInfo(ctx, name)
	if err != nil {
		return Descriptor{}, err
	}

	desc := Descriptor{Name: name, Current: info.Current, Allowed: slices.Clone(info.Allowed)}
	s.mu.Lock()
	s.cache[name] = desc
	s.mu.Unlock()
	return desc, nil
}

// SetEnum applies value to the named feature.
func (s *Store) SetEnum(ctx context.Context, name, value string) error {
	if s.streaming != nil && s.streaming() {
		return camerr.Newf(camerr.CodeInvalidOperation, "cannot change %s while streaming", name)
	}

	desc, err := s.EnumInfo(ctx, name)
	if err != nil {
		return err
	}
	if value == "" || !slices.Contains(desc.Allowed, value) {
		return camerr.Newf(camerr.CodeInvalidValue, "invalid value %q for %s", value, name)
	}

	if err := s.device.SetEnum(ctx, name, value); err != nil {
		// Coded and context errors say nothing about the value itself.
		var cerr *camerr.Error
		if errors.As(err, &cerr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return camerr.Wrap(camerr.CodeInvalidValue, "device rejected "+name, err)
	}

	desc.Current = value
	s.mu.Lock()
	s.cache[name] = desc
	s.mu.Unlock()

	s.logger.Info("Feature changed", "feature", name, "value", value)
	if s.bus != nil {
		s.bus.Publish(events.FeatureChangedEvent{
			CameraID:  s.cameraID,
			Feature:   name,
			Value:     value,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	return nil
}

// Cached returns the last descriptor seen for name without touching the
// device.
func (s *Store) Cached(name string) (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	desc, ok := s.cache[name]
	return desc, ok
}
