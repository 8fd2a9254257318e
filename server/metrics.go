package server

import "time"

// MetricsCollector is an optional hook for exporting server activity to a
// monitoring system. The metrics package provides a Prometheus
// implementation.
//
// Methods are called inline from session goroutines and should not block.
type MetricsCollector interface {
	// RecordCommand records one handled command. cmd is the upper-cased verb
	// (or the raw verb for unknown commands); success is false when the final
	// reply was a 4xx or 5xx.
	RecordCommand(cmd string, success bool, duration time.Duration)

	// RecordTransfer records a completed data transfer. operation is "RETR",
	// "STOR" or "LIST".
	RecordTransfer(operation string, bytes int64, duration time.Duration)

	// RecordConnection records a control connection attempt. reason is
	// "accepted" or the rejection cause, e.g. "global_limit_reached".
	RecordConnection(accepted bool, reason string)

	// RecordAuthentication records a login attempt for user.
	RecordAuthentication(success bool, user string)
}
