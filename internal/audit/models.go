// Package audit defines the audit event model shared by the store, the
// stream fan-out, and the HTTP layer. Events are immutable once recorded;
// corrections are recorded as new events.
package audit

import (
	"time"

	dErrors "assettrail/pkg/domain-errors"
)

// TargetKind discriminates which asset reference an event carries.
type TargetKind string

const (
	KindHardware TargetKind = "hardware"
	KindSoftware TargetKind = "software"
)

// Event is one recorded fact about an asset or assignment. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	// InternalID is store-local identity, assigned monotonically on insert.
	// It is never used as the idempotency key.
	InternalID int64 `json:"-"`

	// ExternalID is the caller-supplied idempotency key. At most one event
	// per distinct ExternalID ever exists. Generated when the caller omits it.
	ExternalID string `json:"id"`

	// OccurredAt is assigned at persistence time and drives ordering and the
	// fallback query's since watermark.
	OccurredAt time.Time `json:"occurred_at"`

	Actor       string     `json:"actor"`
	Action      string     `json:"action"`
	Description string     `json:"description,omitempty"`
	Kind        TargetKind `json:"kind"`

	// Exactly one of HardwareID/SoftwareID is set, agreeing with Kind.
	HardwareID string `json:"hardware_id,omitempty"`
	SoftwareID string `json:"software_id,omitempty"`

	// Changes are field-level diffs attached at creation only.
	Changes []FieldChange `json:"changes,omitempty"`
}

// FieldChange records one field-level diff carried by an event.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// TargetID returns whichever asset reference the event carries.
func (e *Event) TargetID() string {
	if e.Kind == KindHardware {
		return e.HardwareID
	}
	return e.SoftwareID
}

// Validate enforces the event invariants before any persistence: actor and
// action present, a recognized kind, and exactly one target reference that
// agrees with it.
func (e *Event) Validate() error {
	if e.Actor == "" {
		return dErrors.New(dErrors.CodeBadRequest, "actor is required")
	}
	if e.Action == "" {
		return dErrors.New(dErrors.CodeBadRequest, "action is required")
	}
	switch e.Kind {
	case KindHardware:
		if e.HardwareID == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "hardware event requires a hardware reference")
		}
		if e.SoftwareID != "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "hardware event must not carry a software reference")
		}
	case KindSoftware:
		if e.SoftwareID == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "software event requires a software reference")
		}
		if e.HardwareID != "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "software event must not carry a hardware reference")
		}
	default:
		return dErrors.New(dErrors.CodeBadRequest, "kind must be hardware or software")
	}
	for _, c := range e.Changes {
		if c.Field == "" {
			return dErrors.New(dErrors.CodeBadRequest, "change entries require a field name")
		}
	}
	return nil
}
