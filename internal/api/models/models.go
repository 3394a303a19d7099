package models

import (
	"github.com/smazurov/camnode/internal/camerr"
	"github.com/smazurov/camnode/internal/gateway"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// CommandResponse carries the vendor status of a stream command. Command
// failures are reported in the body with HTTP 200.
type CommandResponse struct {
	Body camerr.Status
}

// Status models
type StatusData struct {
	CameraID        string        `json:"camera_id" example:"cam0" doc:"Camera node identifier"`
	Streaming       bool          `json:"streaming" example:"true" doc:"Whether the camera is acquiring"`
	Source          string        `json:"source,omitempty" example:"automatic" doc:"What started the current stream"`
	Autostart       bool          `json:"autostart" example:"true" doc:"Whether subscribers drive the stream"`
	Subscribers     int           `json:"subscribers" example:"1" doc:"Current image topic subscribers"`
	FramesPublished uint64        `json:"frames_published" example:"1200" doc:"Frames published on the image topic"`
	FramesDropped   uint64        `json:"frames_dropped" example:"3" doc:"Frames dropped for slow subscribers"`
	BackendFailures uint64        `json:"backend_failures" example:"0" doc:"Failed backend start/stop calls"`
	Error           camerr.Status `json:"error" doc:"Command outcome"`
}

type StatusResponse struct {
	Body StatusData
}

// Feature models
type FeatureInput struct {
	FeatureName string `path:"feature_name" example:"PixelFormat" doc:"Enumeration feature name"`
}

type EnumInfoResponse struct {
	Body gateway.EnumInfoResult
}

type EnumSetData struct {
	Value string `json:"value" example:"BayerRG8" doc:"Value to apply; rejected while streaming"`
}

type EnumSetRequest struct {
	FeatureName string `path:"feature_name" example:"PixelFormat" doc:"Enumeration feature name"`
	Body        EnumSetData
}

// Image stream models
type ImageStreamInput struct {
	IncludeData bool `query:"data" default:"false" doc:"Include base64 pixel data in each event"`
}

// ImageEvent is one image_raw message as delivered over SSE.
type ImageEvent struct {
	Seq      uint64 `json:"seq" example:"42" doc:"Frame sequence number"`
	Stamp    string `json:"stamp" example:"2025-01-27T10:30:00.123456Z" doc:"Acquisition timestamp"`
	FrameID  string `json:"frame_id" example:"cam0" doc:"Frame identifier"`
	Width    int    `json:"width" example:"640" doc:"Image width in pixels"`
	Height   int    `json:"height" example:"480" doc:"Image height in pixels"`
	Encoding string `json:"encoding" example:"bayer_rggb16" doc:"Output encoding"`
	Step     int    `json:"step" example:"1280" doc:"Row length in bytes"`
	Size     int    `json:"size" example:"614400" doc:"Payload size in bytes"`
	Data     string `json:"data,omitempty" doc:"Base64 payload when requested"`
	Dropped  uint64 `json:"dropped" example:"0" doc:"Frames dropped for this connection so far"`
}
