package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks relay runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime TCP connections accepted
	ActiveConnections atomic.Int64 // current open connections
	SuccessfulAuths   atomic.Int64 // successful credential handshakes
	FailedAuths       atomic.Int64 // failed credential handshakes
	NameConflicts     atomic.Int64 // admissions rejected for a taken name
	TotalDisconnects  atomic.Int64 // total disconnects (clean + unclean)

	// Routing counters
	GroupMessages  atomic.Int64 // group messages relayed
	DirectMessages atomic.Int64 // direct messages delivered
	RoutingErrors  atomic.Int64 // dm attempts to offline recipients
	ProtocolErrors atomic.Int64 // connections dropped for bad framing
}

// NewMetrics creates a Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// MetricsSnapshot is a point-in-time serializable view of all counters.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	SuccessfulAuths   int64 `json:"successful_auths"`
	FailedAuths       int64 `json:"failed_auths"`
	NameConflicts     int64 `json:"name_conflicts"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	GroupMessages  int64 `json:"group_messages"`
	DirectMessages int64 `json:"direct_messages"`
	RoutingErrors  int64 `json:"routing_errors"`
	ProtocolErrors int64 `json:"protocol_errors"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		SuccessfulAuths:   m.SuccessfulAuths.Load(),
		FailedAuths:       m.FailedAuths.Load(),
		NameConflicts:     m.NameConflicts.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		GroupMessages:     m.GroupMessages.Load(),
		DirectMessages:    m.DirectMessages.Load(),
		RoutingErrors:     m.RoutingErrors.Load(),
		ProtocolErrors:    m.ProtocolErrors.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"group_msgs", s.GroupMessages,
		"direct_msgs", s.DirectMessages,
		"routing_errors", s.RoutingErrors,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
