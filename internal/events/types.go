package events

// Event type constants for kelindar/event.
const (
	TypePresenceChanged uint32 = iota + 1
	TypeStreamStateChanged
	TypeStreamError
	TypeFeatureChanged
	TypeLogEntry
	TypeCameraMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// PresenceChangedEvent is published when the image topic gains its first
// subscriber or loses its last one (after the settle delay).
type PresenceChangedEvent struct {
	CameraID    string `json:"camera_id" example:"cam0" doc:"Camera node identifier"`
	Present     bool   `json:"present" example:"true" doc:"Whether at least one subscriber is attached"`
	Subscribers int    `json:"subscribers" example:"1" doc:"Subscriber count when the change was detected"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PresenceChangedEvent.
func (e PresenceChangedEvent) Type() uint32 { return TypePresenceChanged }

// StreamStateChangedEvent represents a committed stream state transition.
type StreamStateChangedEvent struct {
	CameraID  string `json:"camera_id" example:"cam0" doc:"Camera node identifier"`
	Streaming bool   `json:"streaming" example:"true" doc:"Whether the camera is acquiring"`
	Source    string `json:"source,omitempty" example:"automatic" doc:"What started the stream: explicit or automatic"`
	Trigger   string `json:"trigger" example:"presence" doc:"Event that caused the transition"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStateChangedEvent.
func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }

// StreamErrorEvent is published when a transition attempt fails and no
// caller is waiting for the result (automatic starts and stops).
type StreamErrorEvent struct {
	CameraID  string `json:"camera_id" example:"cam0" doc:"Camera node identifier"`
	Action    string `json:"action" example:"start" doc:"Backend action that failed"`
	Code      int    `json:"code" example:"-5" doc:"Vendor error code"`
	Error     string `json:"error" doc:"Error description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamErrorEvent.
func (e StreamErrorEvent) Type() uint32 { return TypeStreamError }

// FeatureChangedEvent is published after a feature value was applied.
type FeatureChangedEvent struct {
	CameraID  string `json:"camera_id" example:"cam0" doc:"Camera node identifier"`
	Feature   string `json:"feature" example:"PixelFormat" doc:"Feature name"`
	Value     string `json:"value" example:"BayerRG8" doc:"New value"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FeatureChangedEvent.
func (e FeatureChangedEvent) Type() uint32 { return TypeFeatureChanged }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Sequence number, usable as the since parameter to resume"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"stream" doc:"Source module"`
	CameraID   string         `json:"camera_id,omitempty" example:"cam0" doc:"Camera the entry concerns"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// CameraMetricsEvent is a periodic snapshot of one camera's counters.
type CameraMetricsEvent struct {
	CameraID        string  `json:"camera_id" example:"cam0" doc:"Camera node identifier"`
	Streaming       bool    `json:"streaming" example:"true" doc:"Whether the camera is acquiring"`
	Subscribers     int     `json:"subscribers" example:"1" doc:"Current image topic subscribers"`
	FrameRate       float64 `json:"frame_rate" example:"15" doc:"Frames published per second since the previous snapshot"`
	FramesPublished uint64  `json:"frames_published" example:"1200" doc:"Frames published on the image topic"`
	FramesDropped   uint64  `json:"frames_dropped" example:"3" doc:"Frames dropped for slow subscribers"`
	BackendFailures uint64  `json:"backend_failures" example:"0" doc:"Failed backend start/stop calls"`
	Timestamp       string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraMetricsEvent.
func (e CameraMetricsEvent) Type() uint32 { return TypeCameraMetrics }
