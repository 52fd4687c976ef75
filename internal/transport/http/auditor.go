package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"mediconnect/internal/rbac"
	audit "mediconnect/pkg/platform/audit"
	"mediconnect/pkg/platform/middleware/metadata"
	"mediconnect/pkg/requestcontext"
)

// AuditTrail is the append side of the audit trail.
type AuditTrail interface {
	Append(ctx context.Context, rec audit.Record) audit.RecordID
}

// Event describes one completed operation to be recorded.
type Event struct {
	Action       audit.Action
	ResourceType audit.ResourceType
	ResourceID   string
	Status       int
	Note         string
	// Actor overrides the principal in context. Sign-in sets it because the
	// request carried no credential.
	Actor *rbac.Principal
}

// Auditor turns completed requests into audit records. Handlers call Record
// after the operation has taken effect and before writing the response, so
// denied or failed requests are never recorded.
type Auditor struct {
	trail  AuditTrail
	logger *slog.Logger
}

func NewAuditor(trail AuditTrail, logger *slog.Logger) *Auditor {
	return &Auditor{trail: trail, logger: logger}
}

// Record appends ev for request r and returns the assigned id, or
// audit.FailedRecordID. Events without an actor are only recorded for
// sign-in and sign-out.
func (a *Auditor) Record(ctx context.Context, r *http.Request, ev Event) audit.RecordID {
	actor := ev.Actor
	if actor == nil {
		actor = requestcontext.Principal(ctx)
	}
	if actor == nil && !ev.Action.IsAuthLifecycle() {
		a.logger.WarnContext(ctx, "audit event without principal dropped",
			"action", ev.Action,
			"resource_type", ev.ResourceType,
			"request_id", requestcontext.RequestID(ctx),
		)
		return audit.FailedRecordID
	}

	rec := audit.Record{
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		ResourceID:   audit.StringPtr(ev.ResourceID),
		IPAddress:    requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		Details: audit.Details{
			Method:     r.Method,
			Path:       r.URL.Path,
			StatusCode: ev.Status,
			Note:       ev.Note,
			Device:     metadata.DeviceLabel(requestcontext.UserAgent(ctx)),
		},
	}
	if q := r.URL.Query(); len(q) > 0 {
		rec.Details.Query = q
	}
	if actor != nil {
		rec.UserID = actor.UserID
		rec.UserEmail = actor.Email
	}
	return a.trail.Append(ctx, rec)
}
