package log

import (
	"sync"
	"time"
)

// HTTPLogEntry represents an HTTP request/response log entry
type HTTPLogEntry struct {
	Timestamp  time.Time     `json:"timestamp" msgpack:"timestamp"`
	Method     string        `json:"method" msgpack:"method"`
	Path       string        `json:"path" msgpack:"path"`
	Status     int           `json:"status" msgpack:"status"`
	Duration   time.Duration `json:"duration" msgpack:"duration"`
	Size       int           `json:"size" msgpack:"size"`
	RemoteAddr string        `json:"remote_addr" msgpack:"remote_addr"`
	UserAgent  string        `json:"user_agent" msgpack:"user_agent"`
	Error      string        `json:"error,omitempty" msgpack:"error,omitempty"`
}

// HTTPLogBuffer keeps the most recent HTTP entries in a ring
type HTTPLogBuffer struct {
	mu      sync.Mutex
	entries []HTTPLogEntry
	next    int
	full    bool
}

// NewHTTPLogBuffer creates a buffer holding up to size entries
func NewHTTPLogBuffer(size int) *HTTPLogBuffer {
	if size < 1 {
		size = 1
	}
	return &HTTPLogBuffer{entries: make([]HTTPLogEntry, size)}
}

// Add appends an entry, evicting the oldest when full
func (b *HTTPLogBuffer) Add(e HTTPLogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Entries returns the buffered entries, oldest first
func (b *HTTPLogBuffer) Entries() []HTTPLogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return append([]HTTPLogEntry(nil), b.entries[:b.next]...)
	}
	out := make([]HTTPLogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}

var httpLogBuffer *HTTPLogBuffer
var httpLogBufferOnce sync.Once

// GetHTTPLogBuffer returns the HTTP log buffer instance, creating it if necessary
func GetHTTPLogBuffer() *HTTPLogBuffer {
	httpLogBufferOnce.Do(func() {
		httpLogBuffer = NewHTTPLogBuffer(1000) // Keep last 1000 HTTP log entries
	})
	return httpLogBuffer
}

// LogHTTPRequest records a request in the HTTP buffer and the main log
func LogHTTPRequest(method, path string, status int, duration time.Duration, size int, remoteAddr, userAgent string, err error) {
	entry := HTTPLogEntry{
		Timestamp:  time.Now(),
		Method:     method,
		Path:       path,
		Status:     status,
		Duration:   duration,
		Size:       size,
		RemoteAddr: remoteAddr,
		UserAgent:  userAgent,
	}
	fields := []interface{}{
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"size", size,
		"remote_addr", remoteAddr,
	}

	if err != nil {
		entry.Error = err.Error()
		Errorw("http request failed", append(fields, "error", err)...)
	} else {
		Debugw("http request", fields...)
	}

	GetHTTPLogBuffer().Add(entry)
}
