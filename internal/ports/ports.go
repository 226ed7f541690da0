// Package ports defines shared interfaces consumed by multiple services.
// Interfaces live here when more than one module needs them, to avoid
// duplication.
package ports

import (
	"context"
	"log/slog"

	"hemolink/pkg/attrs"
	"hemolink/pkg/platform/audit"
	"hemolink/pkg/requestcontext"
)

// AuditPublisher emits audit events for inventory- and lifecycle-relevant
// operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit is a shared helper for recording audit events across services.
// It logs to the structured logger and emits to the audit publisher if one
// is configured. The attr slice follows slog conventions
// [key1, value1, key2, value2, ...]; "subject" and "reason" keys are lifted
// into the audit event.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.AuditEvent, attrArgs ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrArgs = append(attrArgs, "request_id", requestID)
	}

	args := append(attrArgs, "event", string(event), "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, string(event), args...)
	}

	if publisher == nil {
		return
	}
	err := publisher.Emit(ctx, audit.Event{
		Category:  event.Category(),
		Timestamp: requestcontext.Now(ctx),
		Actor:     requestcontext.Principal(ctx).Subject,
		Subject:   attrs.ExtractString(attrArgs, "subject"),
		Action:    string(event),
		Reason:    attrs.ExtractString(attrArgs, "reason"),
		RequestID: requestID,
	})
	if err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}
