package api

import (
	"io"
	"log"
	"os"
	"time"
)

// AuditLogger records state-changing and rejected operations.
type AuditLogger struct {
	logger *log.Logger
}

// NewAuditLogger creates an audit logger writing to stdout.
func NewAuditLogger() *AuditLogger {
	return NewAuditLoggerTo(os.Stdout)
}

// NewAuditLoggerTo creates an audit logger writing to w.
func NewAuditLoggerTo(w io.Writer) *AuditLogger {
	return &AuditLogger{logger: log.New(w, "[AUDIT] ", log.LstdFlags|log.LUTC)}
}

// LogEvent logs one audit event.
func (al *AuditLogger) LogEvent(
	requestID string,
	action string,
	resource string,
	outcome string,
	details map[string]interface{},
) {
	al.logger.Printf(
		"audit_event request_id=%s action=%s resource=%s outcome=%s details=%+v engine_version=%s timestamp=%s",
		requestID,
		action,
		resource,
		outcome,
		details,
		EngineVersion,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogStartup logs the server configuration once at boot.
func (al *AuditLogger) LogStartup(details map[string]interface{}) {
	al.LogEvent("startup", "system_startup", "system", "success", details)
}

// LogPerformance logs how long an operation took and how much it covered.
func (al *AuditLogger) LogPerformance(
	requestID string,
	operation string,
	duration time.Duration,
	itemsProcessed uint64,
	success bool,
) {
	status := "success"
	if !success {
		status = "failure"
	}

	al.logger.Printf(
		"performance_metrics request_id=%s operation=%s duration=%v items_processed=%d status=%s engine_version=%s",
		requestID,
		operation,
		duration,
		itemsProcessed,
		status,
		EngineVersion,
	)
}
