// Package acquisition defines the camera acquisition backend used by the
// stream controller and ships a simulated implementation.
package acquisition

import (
	"context"
	"time"
)

// Well-known enumeration features.
const (
	FeaturePixelFormat = "PixelFormat"
	FeatureTestPattern = "TestPattern"
)

// Frame is one acquired image in the device's native layout.
type Frame struct {
	Sequence    uint64
	Timestamp   time.Time
	Width       int
	Height      int
	PixelFormat string
	Step        int
	Data        []byte
}

// FrameSink receives acquired frames. It is called from the acquisition
// goroutine and must not block.
type FrameSink func(Frame)

// EnumInfo describes an enumeration feature as reported by the device.
type EnumInfo struct {
	Current string
	Allowed []string
}

// Backend performs the actual acquisition. Start and Stop are only ever
// called by the stream controller, one at a time.
type Backend interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	EnumInfo(ctx context.Context, name string) (EnumInfo, error)
	SetEnum(ctx context.Context, name, value string) error
}

// FrameSource is implemented by backends that push frames to a sink.
type FrameSource interface {
	SetFrameSink(sink FrameSink)
}
