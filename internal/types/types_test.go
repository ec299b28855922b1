package types

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNewUUID(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id := NewUUID()

	parsed, err := ParseUUID(id)
	if err != nil {
		t.Fatalf("ParseUUID(%q) error = %v, want nil", id, err)
	}
	if parsed != id {
		t.Errorf("ParseUUID(%q) = %q, want unchanged", id, parsed)
	}

	ts := UUIDTime(id)
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Errorf("UUIDTime(%q) = %v, want around now", id, ts)
	}
}

func TestParseUUID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"v7", "0190a8c4-0000-7000-8000-000000000001", "0190a8c4-0000-7000-8000-000000000001", false},
		{"v4 accepted", "f47ac10b-58cc-4372-a567-0e02b2c3d479", "f47ac10b-58cc-4372-a567-0e02b2c3d479", false},
		{"upper case normalized", "F47AC10B-58CC-4372-A567-0E02B2C3D479", "f47ac10b-58cc-4372-a567-0e02b2c3d479", false},
		{"empty", "", "", true},
		{"garbage", "not-a-uuid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUUID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseUUID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseUUID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestUUIDTime_NonV7(t *testing.T) {
	for _, s := range []string{"f47ac10b-58cc-4372-a567-0e02b2c3d479", "garbage"} {
		if got := UUIDTime(s); !got.IsZero() {
			t.Errorf("UUIDTime(%q) = %v, want zero", s, got)
		}
	}
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("count events", cause)

	if !errors.Is(err, ErrResourceUnavailable) {
		t.Errorf("errors.Is(%v, ErrResourceUnavailable) = false, want true", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(%v, cause) = false, want true", err)
	}
}

func TestIsInvalidRule(t *testing.T) {
	wrapped := fmt.Errorf("process rule: %w", NewInvalidRuleError("please-select-a-page"))

	key, ok := IsInvalidRule(wrapped)
	if !ok || key != "please-select-a-page" {
		t.Errorf("IsInvalidRule() = (%q, %v), want (please-select-a-page, true)", key, ok)
	}

	if _, ok := IsInvalidRule(ErrRuleNotRegistered); ok {
		t.Error("IsInvalidRule(ErrRuleNotRegistered) = true, want false")
	}
}

func TestRuleInstanceClone(t *testing.T) {
	orig := &RuleInstance{RuleInstanceID: 1, TypeSettings: "42"}
	c := orig.Clone()
	c.TypeSettings = "uuid"

	if orig.TypeSettings != "42" {
		t.Errorf("original TypeSettings = %q after clone mutation, want 42", orig.TypeSettings)
	}

	var nilInst *RuleInstance
	if nilInst.Clone() != nil {
		t.Error("nil Clone() != nil")
	}
}

func TestElementSetAttribute(t *testing.T) {
	var e Element
	e.SetAttribute("layout-uuid", "x")
	if e.Attributes["layout-uuid"] != "x" {
		t.Errorf("Attributes = %v, want layout-uuid=x", e.Attributes)
	}
}
