// Package types provides domain models shared across SegmentKeeper components.
//
// Records here carry no behavior beyond identity helpers. Rule variants own the
// meaning of RuleInstance.TypeSettings; nothing in this package inspects it.
package types

import "time"

// RuleInstance is a persisted, configured occurrence of a rule variant bound to
// a user segment.
// RuleInstanceID is the environment-local surrogate key; UUID is the global
// identifier that survives export/import.
type RuleInstance struct {
	RuleInstanceID int64     `db:"rule_instance_id"`
	UUID           string    `db:"uuid"`
	GroupID        int64     `db:"group_id"`
	CompanyID      int64     `db:"company_id"`
	UserID         int64     `db:"user_id"`
	UserName       string    `db:"user_name"`
	UserUUID       string    `db:"user_uuid"`
	RuleKey        string    `db:"rule_key"`
	UserSegmentID  int64     `db:"user_segment_id"`
	TypeSettings   string    `db:"type_settings"`
	CreateDate     time.Time `db:"-"`
	ModifiedDate   time.Time `db:"-"`
}

// Clone returns a shallow copy. Export and import mutate TypeSettings on the
// copy so the caller's record is never rewritten behind its back.
func (r *RuleInstance) Clone() *RuleInstance {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// AnonymousUser is a tracked, not-yet-identified visitor.
// Owned by the tracking platform; SegmentKeeper only reads its identity.
type AnonymousUser struct {
	AnonymousUserID int64
	CompanyID       int64
}

// Element is the export element attached to a record in an export bundle.
// Rule variants may annotate it during export.
type Element struct {
	Name       string            `yaml:"name"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// NewElement creates an empty element with the given name.
func NewElement(name string) *Element {
	return &Element{Name: name, Attributes: make(map[string]string)}
}

// SetAttribute sets a single attribute, allocating the map on first use.
func (e *Element) SetAttribute(key, value string) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
}

// Resource limits for persisted configuration.
const (
	// MaxTypeSettingsLength bounds the opaque payload stored per instance.
	MaxTypeSettingsLength = 64 * 1024

	// MaxRuleKeyLength bounds rule keys; keys are identifiers, not content.
	MaxRuleKeyLength = 75
)
