package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors exported on /metrics.
type Metrics struct {
	Scans             *prometheus.CounterVec
	SessionsActive    prometheus.Gauge
	SessionsCompleted prometheus.Counter
	RecordsWritten    prometheus.Counter
	ScannerState      *prometheus.CounterVec
	Reconnects        *prometheus.CounterVec
}

// New builds and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labattend",
			Name:      "scans_total",
			Help:      "Scan submissions by outcome.",
		}, []string{"outcome"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "labattend",
			Name:      "sessions_active",
			Help:      "1 while a scan session is open.",
		}),
		SessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "labattend",
			Name:      "sessions_completed_total",
			Help:      "Sessions ended and materialized.",
		}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "labattend",
			Name:      "attendance_records_written_total",
			Help:      "Attendance records appended to the sink.",
		}),
		ScannerState: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labattend",
			Name:      "scanner_transitions_total",
			Help:      "Scanner connection state transitions by target state.",
		}, []string{"state"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labattend",
			Name:      "scanner_reconnect_attempts_total",
			Help:      "Automatic reconnection attempts by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Scans, m.SessionsActive, m.SessionsCompleted, m.RecordsWritten, m.ScannerState, m.Reconnects)
	}
	return m
}

// Nop returns unregistered collectors for callers that do not export metrics.
func Nop() *Metrics {
	return New(nil)
}
