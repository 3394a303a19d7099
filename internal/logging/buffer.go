package logging

import (
	"sync"
	"time"
)

// LogEntry is one record kept for the log stream. Seq increases by one per
// entry written to a buffer, so clients can resume after the last one seen.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	CameraID   string         `json:"camera_id,omitempty"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries in a fixed slice.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    uint64 // seq assigned to the next write
}

// NewRingBuffer returns a buffer holding at most capacity entries.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{entries: make([]LogEntry, capacity), next: 1}
}

// Write stores entry, evicting the oldest one when full, and returns the
// entry with its sequence number set.
func (rb *RingBuffer) Write(entry LogEntry) LogEntry {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	entry.Seq = rb.next
	rb.entries[rb.slot(entry.Seq)] = entry
	rb.next++
	return entry
}

// Since returns the buffered entries with Seq > after, oldest first.
// Since(0) returns everything still buffered.
func (rb *RingBuffer) Since(after uint64) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	first := rb.oldest()
	if after+1 > first {
		first = after + 1
	}
	if first >= rb.next {
		return nil
	}

	out := make([]LogEntry, 0, rb.next-first)
	for seq := first; seq < rb.next; seq++ {
		out = append(out, rb.entries[rb.slot(seq)])
	}
	return out
}

// Len returns the number of buffered entries.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return int(rb.next - rb.oldest())
}

func (rb *RingBuffer) oldest() uint64 {
	capacity := uint64(len(rb.entries))
	if rb.next-1 <= capacity {
		return 1
	}
	return rb.next - capacity
}

func (rb *RingBuffer) slot(seq uint64) int {
	return int((seq - 1) % uint64(len(rb.entries)))
}
