// Package metrics collects per-server counters for the reliable
// file-transfer service: bytes/segments moved, retransmissions, NACKs,
// and a bounded rolling history of active-connection counts.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// ServerMetrics aggregates counters across every session a handler serves.
type ServerMetrics struct {
	TotalConnections  uint64 `json:"total_connections"`
	ActiveConnections int64  `json:"active_connections"`
	TotalBytesSent    uint64 `json:"total_bytes_sent"`
	TotalSegmentsSent uint64 `json:"total_segments_sent"`

	TotalErrors          uint64 `json:"total_errors"`
	TotalTimeouts        uint64 `json:"total_timeouts"`
	TotalRetransmissions uint64 `json:"total_retransmissions"`
	TotalNacksReceived   uint64 `json:"total_nacks_received"`

	Uptime    time.Duration `json:"uptime"`
	StartTime time.Time     `json:"start_time"`

	AverageConnections float64 `json:"average_connections"`
	PeakConnections    int64   `json:"peak_connections"`

	ConnectionHistory []ConnectionPoint `json:"connection_history"`

	mu sync.RWMutex
}

// ConnectionPoint is one sample in a server's active-connection history.
type ConnectionPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int64     `json:"count"`
}

// NewServerMetrics starts a fresh server-wide metrics accumulator.
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{
		StartTime:         time.Now(),
		ConnectionHistory: make([]ConnectionPoint, 0),
	}
}

// AddConnection records a new session becoming active.
func (m *ServerMetrics) AddConnection() {
	atomic.AddUint64(&m.TotalConnections, 1)
	active := atomic.AddInt64(&m.ActiveConnections, 1)
	if active > atomic.LoadInt64(&m.PeakConnections) {
		atomic.StoreInt64(&m.PeakConnections, active)
	}
	m.recordConnectionCount(active)
}

// RemoveConnection records a session ending.
func (m *ServerMetrics) RemoveConnection() {
	active := atomic.AddInt64(&m.ActiveConnections, -1)
	if active < 0 {
		active = 0
		atomic.StoreInt64(&m.ActiveConnections, 0)
	}
	m.recordConnectionCount(active)
}

func (m *ServerMetrics) AddBytesSent(bytes uint64) { atomic.AddUint64(&m.TotalBytesSent, bytes) }
func (m *ServerMetrics) AddSegmentsSent(n uint64)  { atomic.AddUint64(&m.TotalSegmentsSent, n) }
func (m *ServerMetrics) AddError()                 { atomic.AddUint64(&m.TotalErrors, 1) }
func (m *ServerMetrics) AddTimeout()               { atomic.AddUint64(&m.TotalTimeouts, 1) }
func (m *ServerMetrics) AddRetransmission()        { atomic.AddUint64(&m.TotalRetransmissions, 1) }
func (m *ServerMetrics) AddNack()                  { atomic.AddUint64(&m.TotalNacksReceived, 1) }

func (m *ServerMetrics) recordConnectionCount(count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConnectionHistory = append(m.ConnectionHistory, ConnectionPoint{Timestamp: time.Now(), Count: count})
	if len(m.ConnectionHistory) > 1000 {
		m.ConnectionHistory = m.ConnectionHistory[len(m.ConnectionHistory)-1000:]
	}
}

// GetSnapshot returns a point-in-time copy safe to read concurrently.
func (m *ServerMetrics) GetSnapshot() ServerMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return ServerMetrics{
		TotalConnections:     atomic.LoadUint64(&m.TotalConnections),
		ActiveConnections:    atomic.LoadInt64(&m.ActiveConnections),
		TotalBytesSent:       atomic.LoadUint64(&m.TotalBytesSent),
		TotalSegmentsSent:    atomic.LoadUint64(&m.TotalSegmentsSent),
		TotalErrors:          atomic.LoadUint64(&m.TotalErrors),
		TotalTimeouts:        atomic.LoadUint64(&m.TotalTimeouts),
		TotalRetransmissions: atomic.LoadUint64(&m.TotalRetransmissions),
		TotalNacksReceived:   atomic.LoadUint64(&m.TotalNacksReceived),
		Uptime:               time.Since(m.StartTime),
		StartTime:            m.StartTime,
		AverageConnections:   m.calculateAverageConnections(),
		PeakConnections:      atomic.LoadInt64(&m.PeakConnections),
		ConnectionHistory:    append([]ConnectionPoint(nil), m.ConnectionHistory...),
	}
}

func (m *ServerMetrics) calculateAverageConnections() float64 {
	if len(m.ConnectionHistory) == 0 {
		return 0
	}
	var sum int64
	for _, point := range m.ConnectionHistory {
		sum += point.Count
	}
	return float64(sum) / float64(len(m.ConnectionHistory))
}
