package audit

import (
	"maps"
	"slices"
	"time"
)

// RecordID is the trail-assigned sequence number of a record.
type RecordID int64

// FailedRecordID is returned by Trail.Append when the record could not be
// written or queued.
const FailedRecordID RecordID = 0

// Action is the kind of access a record describes.
type Action string

const (
	ActionView   Action = "VIEW"
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionLogin  Action = "LOGIN"
	ActionLogout Action = "LOGOUT"
	ActionExport Action = "EXPORT"
	ActionShare  Action = "SHARE"
)

var actions = []Action{
	ActionView, ActionCreate, ActionUpdate, ActionDelete,
	ActionLogin, ActionLogout, ActionExport, ActionShare,
}

// Valid reports whether a is one of the enumerated actions.
func (a Action) Valid() bool {
	return slices.Contains(actions, a)
}

// IsAuthLifecycle reports whether a is a login or logout event, the only
// actions that may be recorded for an unauthenticated caller.
func (a Action) IsAuthLifecycle() bool {
	return a == ActionLogin || a == ActionLogout
}

// ResourceType tags the kind of resource touched. The set is open; these are
// the tags used by the API.
type ResourceType string

const (
	ResourceProfile       ResourceType = "PROFILE"
	ResourceMedicalRecord ResourceType = "MEDICAL_RECORD"
	ResourceAppointment   ResourceType = "APPOINTMENT"
	ResourceUser          ResourceType = "USER"
	ResourcePermissions   ResourceType = "PERMISSIONS"
	ResourceAuditLog      ResourceType = "AUDIT_LOG"
	ResourceAuth          ResourceType = "AUTH"
)

// Details is the structured request context of a record.
type Details struct {
	Method     string              `json:"method"`
	Path       string              `json:"path"`
	Query      map[string][]string `json:"query,omitempty"`
	StatusCode int                 `json:"statusCode"`
	Note       string              `json:"note,omitempty"`
	Device     string              `json:"device,omitempty"`
}

// Record is one immutable audit trail entry. ID and Timestamp are assigned by
// the trail; values supplied by callers are overwritten.
type Record struct {
	ID           RecordID     `json:"id"`
	UserID       string       `json:"userId"`
	UserEmail    string       `json:"userEmail"`
	Action       Action       `json:"action"`
	ResourceType ResourceType `json:"resourceType"`
	ResourceID   *string      `json:"resourceId"`
	IPAddress    string       `json:"ipAddress"`
	UserAgent    string       `json:"userAgent"`
	Details      Details      `json:"details"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Clone returns a deep copy so stored records cannot be mutated through
// values handed to callers.
func (r Record) Clone() Record {
	if r.ResourceID != nil {
		id := *r.ResourceID
		r.ResourceID = &id
	}
	if r.Details.Query != nil {
		q := maps.Clone(r.Details.Query)
		for k, v := range q {
			q[k] = slices.Clone(v)
		}
		r.Details.Query = q
	}
	return r
}

// Filter selects records. Zero fields are ignored; set fields are ANDed.
// Start and End are inclusive.
type Filter struct {
	UserID       string
	Action       Action
	ResourceType ResourceType
	Start        *time.Time
	End          *time.Time
}

// Matches reports whether r satisfies every set field of f.
func (f Filter) Matches(r Record) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	if f.ResourceType != "" && r.ResourceType != f.ResourceType {
		return false
	}
	if f.Start != nil && r.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && r.Timestamp.After(*f.End) {
		return false
	}
	return true
}

// StringPtr is a helper for optional resource ids.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
