// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a filter value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventAdminAuthFailure is logged when an admin request has a missing or wrong API key.
	EventAdminAuthFailure SecurityEventType = "admin_auth_failure"
	// EventAdminChange is logged for every successful admin write.
	EventAdminChange SecurityEventType = "admin_change"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails contains specifics of a flagged filter value.
type SQLInjectionDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// AdminChangeDetails describes one admin write.
type AdminChangeDetails struct {
	Action   string `json:"action"`   // create, update, delete, flush
	Resource string `json:"resource"` // facility, taxonomy item type, settings, cache
	ID       int64  `json:"id,omitempty"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSecurityAuditor creates a new security auditor under the "security_audit"
// logger namespace for easy filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit"), now: time.Now}
}

func (a *SecurityAuditor) event(ctx context.Context, eventType SecurityEventType, severity string, details any) []zap.Field {
	info := logging.RequestInfoFromContext(ctx)
	event := SecurityEvent{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		RequestID: info.ID,
		ClientIP:  info.ClientIP,
		Details:   details,
		Severity:  severity,
	}

	// Marshaling known types cannot fail
	eventJSON, _ := json.Marshal(event)

	return []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", info.ID),
		zap.String("client_ip", info.ClientIP),
		zap.String("severity", severity),
	}
}

// LogInjectionAttempt records a filter value that libinjection flagged.
// The query itself stays parameterized; this exists for alerting.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, details SQLInjectionDetails) {
	details.Value = logging.SanitizeSearchTerm(details.Value)
	fields := a.event(ctx, EventSQLInjectionAttempt, "critical", details)
	a.logger.Error("SQL injection attempt detected", append(fields,
		zap.String("field", details.Field),
		zap.String("fingerprint", details.Fingerprint),
	)...)
}

// LogAdminAuthFailure records a rejected admin request.
func (a *SecurityAuditor) LogAdminAuthFailure(ctx context.Context, path, reason string) {
	fields := a.event(ctx, EventAdminAuthFailure, "warning", map[string]string{
		"path":   path,
		"reason": reason,
	})
	a.logger.Warn("Admin authentication failed", append(fields,
		zap.String("path", path),
		zap.String("reason", reason),
	)...)
}

// LogAdminChange records a successful admin write for the audit trail.
func (a *SecurityAuditor) LogAdminChange(ctx context.Context, details AdminChangeDetails) {
	fields := a.event(ctx, EventAdminChange, "info", details)
	a.logger.Info("Admin change", append(fields,
		zap.String("action", details.Action),
		zap.String("resource", details.Resource),
		zap.Int64("id", details.ID),
	)...)
}
