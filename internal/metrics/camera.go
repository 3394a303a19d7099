// Package metrics provides Prometheus metrics for camera nodes.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "camnode"

var (
	streamStreaming = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "streaming",
		Help:      "1 while the camera is acquiring, 0 otherwise",
	}, []string{"camera_id"})

	streamTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "transitions_total",
		Help:      "Committed stream state transitions",
	}, []string{"camera_id", "to", "trigger"})

	backendCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "calls_total",
		Help:      "Acquisition backend start/stop calls by result",
	}, []string{"camera_id", "action", "result"})

	subscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "topic",
		Name:      "subscribers",
		Help:      "Current image topic subscribers",
	}, []string{"camera_id"})

	framesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "topic",
		Name:      "frames_published_total",
		Help:      "Frames published on the image topic",
	}, []string{"camera_id"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "topic",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped because a subscriber was not keeping up",
	}, []string{"camera_id"})

	gatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Command gateway requests by operation and result code",
	}, []string{"camera_id", "operation", "code"})

	gatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Command gateway request latency",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"camera_id", "operation"})

	// Local cache for the status endpoint.
	cameraCache   = make(map[string]*CameraMetrics)
	cameraCacheMu sync.RWMutex
)

// CameraMetrics holds current values for one camera.
type CameraMetrics struct {
	Streaming       bool
	Subscribers     int
	FramesPublished uint64
	FramesDropped   uint64
	BackendFailures uint64
}

// SetStreaming records the committed stream state.
func SetStreaming(cameraID string, streaming bool) {
	v := 0.0
	if streaming {
		v = 1
	}
	streamStreaming.WithLabelValues(cameraID).Set(v)
	updateCache(cameraID, func(m *CameraMetrics) { m.Streaming = streaming })
}

// RecordTransition counts a committed transition.
func RecordTransition(cameraID, to, trigger string) {
	streamTransitions.WithLabelValues(cameraID, to, trigger).Inc()
}

// RecordBackendCall counts a backend start or stop call.
func RecordBackendCall(cameraID, action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		updateCache(cameraID, func(m *CameraMetrics) { m.BackendFailures++ })
	}
	backendCalls.WithLabelValues(cameraID, action, result).Inc()
}

// SetSubscribers records the current image topic subscriber count.
func SetSubscribers(cameraID string, count int) {
	subscribers.WithLabelValues(cameraID).Set(float64(count))
	updateCache(cameraID, func(m *CameraMetrics) { m.Subscribers = count })
}

// AddFramesPublished counts published frames.
func AddFramesPublished(cameraID string, n int) {
	framesPublished.WithLabelValues(cameraID).Add(float64(n))
	updateCache(cameraID, func(m *CameraMetrics) { m.FramesPublished += uint64(n) })
}

// AddFramesDropped counts frames skipped for slow subscribers.
func AddFramesDropped(cameraID string, n int) {
	framesDropped.WithLabelValues(cameraID).Add(float64(n))
	updateCache(cameraID, func(m *CameraMetrics) { m.FramesDropped += uint64(n) })
}

// ObserveGatewayRequest records one command gateway call.
func ObserveGatewayRequest(cameraID, operation, code string, seconds float64) {
	gatewayRequests.WithLabelValues(cameraID, operation, code).Inc()
	gatewayDuration.WithLabelValues(cameraID, operation).Observe(seconds)
}

// DeleteCameraMetrics removes gauges and cached values for a camera.
func DeleteCameraMetrics(cameraID string) {
	streamStreaming.DeleteLabelValues(cameraID)
	subscribers.DeleteLabelValues(cameraID)
	framesPublished.DeleteLabelValues(cameraID)
	framesDropped.DeleteLabelValues(cameraID)

	cameraCacheMu.Lock()
	delete(cameraCache, cameraID)
	cameraCacheMu.Unlock()
}

// GetCameraMetrics returns a copy of the current values for a camera.
func GetCameraMetrics(cameraID string) *CameraMetrics {
	cameraCacheMu.RLock()
	defer cameraCacheMu.RUnlock()
	if m, ok := cameraCache[cameraID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func updateCache(cameraID string, update func(*CameraMetrics)) {
	cameraCacheMu.Lock()
	defer cameraCacheMu.Unlock()
	m, ok := cameraCache[cameraID]
	if !ok {
		m = &CameraMetrics{}
		cameraCache[cameraID] = m
	}
	update(m)
}

// GetAllCameraMetrics returns a copy of the current values for every camera.
func GetAllCameraMetrics() map[string]CameraMetrics {
	cameraCacheMu.RLock()
	defer cameraCacheMu.RUnlock()
	all := make(map[string]CameraMetrics, len(cameraCache))
	for id, m := range cameraCache {
		all[id] = *m
	}
	return all
}
