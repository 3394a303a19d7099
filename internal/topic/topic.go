// Package topic implements the image output channel: a publish/subscribe
// fan-out that counts its subscribers and reports every subscribe and
// unsubscribe as a graph change.
package topic

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/camnode/internal/acquisition"
	"github.com/smazurov/camnode/internal/metrics"
	"github.com/smazurov/camnode/internal/pixfmt"
)

// DefaultBuffer is the per-subscriber queue length used when Subscribe is
// given a non-positive size.
const DefaultBuffer = 4

// Header carries frame metadata.
type Header struct {
	Seq     uint64    `json:"seq"`
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
}

// Image is one message on the image topic.
type Image struct {
	Header   Header `json:"header"`
	Height   int    `json:"height"`
	Width    int    `json:"width"`
	Encoding string `json:"encoding"`
	Step     int    `json:"step"`
	Data     []byte `json:"data,omitempty"`
}

// FromFrame converts an acquired frame into an image message, translating
// the native pixel format into the output encoding.
func FromFrame(frameID string, f acquisition.Frame) (Image, error) {
	encoding, ok := pixfmt.Encoding(f.PixelFormat)
	if !ok {
		return Image{}, fmt.Errorf("no output encoding for pixel format %q", f.PixelFormat)
	}
	return Image{
		Header:   Header{Seq: f.Sequence, Stamp: f.Timestamp, FrameID: frameID},
		Height:   f.Height,
		Width:    f.Width,
		Encoding: encoding,
		Step:     f.Step,
		Data:     f.Data,
	}, nil
}

// Topic fans images out to subscribers. Publishing never blocks: a
// subscriber whose queue is full misses the frame.
type Topic struct {
	name     string
	cameraID string

	mu        sync.RWMutex
	subs      map[uuid.UUID]*Subscription
	listeners map[uuid.UUID]func()

	published atomic.Uint64
}

// New creates a topic. cameraID labels metrics and becomes the image
// frame_id.
func New(name, cameraID string) *Topic {
	return &Topic{
		name:      name,
		cameraID:  cameraID,
		subs:      make(map[uuid.UUID]*Subscription),
		listeners: make(map[uuid.UUID]func()),
	}
}

// Name returns the topic name.
func (t *Topic) Name() string {
	return t.name
}

// Subscribe attaches a new subscriber with a queue of the given size.
func (t *Topic) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		id:    uuid.New(),
		ch:    make(chan Image, buffer),
		topic: t,
	}

	t.mu.Lock()
	t.subs[sub.id] = sub
	count := len(t.subs)
	t.mu.Unlock()

	metrics.SetSubscribers(t.cameraID, count)
	t.notify()
	return sub
}

// SubscriberCount returns the number of attached subscribers.
func (t *Topic) SubscriberCount() (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs), nil
}

// OnGraphChange registers fn to be called after every subscribe or
// unsubscribe. fn must not block. Returns an unregister function.
func (t *Topic) OnGraphChange(fn func()) func() {
	id := uuid.New()
	t.mu.Lock()
	t.listeners[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// Publish delivers img to every subscriber that has room for it.
func (t *Topic) Publish(img Image) {
	dropped := 0

	t.mu.RLock()
	for _, sub := range t.subs {
		select {
		case sub.ch <- img:
		default:
			sub.dropped.Add(1)
			dropped++
		}
	}
	t.mu.RUnlock()

	t.published.Add(1)
	metrics.AddFramesPublished(t.cameraID, 1)
	if dropped > 0 {
		metrics.AddFramesDropped(t.cameraID, dropped)
	}
}

// PublishFrame translates and publishes an acquired frame. It matches
// acquisition.FrameSink once the error is discarded.
func (t *Topic) PublishFrame(f acquisition.Frame) error {
	img, err := FromFrame(t.cameraID, f)
	if err != nil {
		return err
	}
	t.Publish(img)
	return nil
}

// Published returns how many images were published.
func (t *Topic) Published() uint64 {
	return t.published.Load()
}

// Close detaches every subscriber without notifying listeners.
func (t *Topic) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, sub := range t.subs {
		close(sub.ch)
		delete(t.subs, id)
	}
	metrics.SetSubscribers(t.cameraID, 0)
}

func (t *Topic) remove(id uuid.UUID) {
	t.mu.Lock()
	sub, ok := t.subs[id]
	if ok {
		delete(t.subs, id)
		close(sub.ch)
	}
	count := len(t.subs)
	t.mu.Unlock()

	if !ok {
		return
	}
	metrics.SetSubscribers(t.cameraID, count)
	t.notify()
}

func (t *Topic) notify() {
	t.mu.RLock()
	listeners := make([]func(), 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	t.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

// Subscription is one consumer of a topic.
type Subscription struct {
	id      uuid.UUID
	ch      chan Image
	topic   *Topic
	once    sync.Once
	dropped atomic.Uint64
}

// ID returns the subscriber identifier.
func (s *Subscription) ID() string {
	return s.id.String()
}

// C returns the image channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Image {
	return s.ch
}

// Dropped returns how many images this subscriber missed.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscriber. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.topic.remove(s.id)
	})
}
