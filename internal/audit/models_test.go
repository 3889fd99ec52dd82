package audit

import (
	"testing"

	dErrors "assettrail/pkg/domain-errors"
)

func TestEventValidate(t *testing.T) {
	valid := Event{
		Actor:      "alice",
		Action:     "asset_assigned",
		Kind:       KindSoftware,
		SoftwareID: "sw-7",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Event)
		code   dErrors.Code
	}{
		{"missing actor", func(e *Event) { e.Actor = "" }, dErrors.CodeBadRequest},
		{"missing action", func(e *Event) { e.Action = "" }, dErrors.CodeBadRequest},
		{"unknown kind", func(e *Event) { e.Kind = "license" }, dErrors.CodeBadRequest},
		{"software kind without reference", func(e *Event) { e.SoftwareID = "" }, dErrors.CodeInvariantViolation},
		{"both references set", func(e *Event) { e.HardwareID = "hw-1" }, dErrors.CodeInvariantViolation},
		{"hardware kind with software reference", func(e *Event) {
			e.Kind = KindHardware
			e.HardwareID = "hw-1"
		}, dErrors.CodeInvariantViolation},
		{"change without field name", func(e *Event) {
			e.Changes = []FieldChange{{OldValue: "a", NewValue: "b"}}
		}, dErrors.CodeBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := valid
			tc.mutate(&ev)
			err := ev.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !dErrors.HasCode(err, tc.code) {
				t.Fatalf("expected code %s, got %v", tc.code, err)
			}
		})
	}
}

func TestTargetID(t *testing.T) {
	hw := Event{Kind: KindHardware, HardwareID: "hw-1"}
	if hw.TargetID() != "hw-1" {
		t.Fatalf("expected hw-1, got %q", hw.TargetID())
	}
	sw := Event{Kind: KindSoftware, SoftwareID: "sw-2"}
	if sw.TargetID() != "sw-2" {
		t.Fatalf("expected sw-2, got %q", sw.TargetID())
	}
}
