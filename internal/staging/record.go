package staging

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/solatis/segmentkeeper/internal/types"
	"gopkg.in/yaml.v3"
)

// Record is the exported form of a rule instance.
type Record struct {
	UUID           string         `yaml:"uuid"`
	RuleKey        string         `yaml:"rule_key"`
	UserSegmentID  int64          `yaml:"user_segment_id"`
	TypeSettings   string         `yaml:"type_settings"`
	UserUUID       string         `yaml:"user_uuid"`
	RuleInstanceID int64          `yaml:"rule_instance_id"`
	GroupID        int64          `yaml:"group_id"`
	CompanyID      int64          `yaml:"company_id"`
	UserName       string         `yaml:"user_name,omitempty"`
	CreateDate     string         `yaml:"create_date,omitempty"`
	ModifiedDate   string         `yaml:"modified_date,omitempty"`
	Element        *types.Element `yaml:"element,omitempty"`
}

// NewRecord captures inst, with its already translated TypeSettings, and el.
func NewRecord(inst *types.RuleInstance, el *types.Element) Record {
	r := Record{
		UUID:           inst.UUID,
		RuleKey:        inst.RuleKey,
		UserSegmentID:  inst.UserSegmentID,
		TypeSettings:   inst.TypeSettings,
		UserUUID:       inst.UserUUID,
		RuleInstanceID: inst.RuleInstanceID,
		GroupID:        inst.GroupID,
		CompanyID:      inst.CompanyID,
		UserName:       inst.UserName,
		CreateDate:     formatDate(inst.CreateDate),
		ModifiedDate:   formatDate(inst.ModifiedDate),
	}
	if el != nil && len(el.Attributes) > 0 {
		r.Element = el
	}
	return r
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Instance returns the record as a rule instance in its source environment.
// The uuid is returned in canonical form.
func (r Record) Instance() (*types.RuleInstance, error) {
	uuid, err := types.ParseUUID(r.UUID)
	if err != nil {
		return nil, fmt.Errorf("%w: uuid %q: %w", types.ErrInvalidRecord, r.UUID, err)
	}
	inst := &types.RuleInstance{
		RuleInstanceID: r.RuleInstanceID,
		UUID:           uuid,
		GroupID:        r.GroupID,
		CompanyID:      r.CompanyID,
		UserName:       r.UserName,
		UserUUID:       r.UserUUID,
		RuleKey:        r.RuleKey,
		UserSegmentID:  r.UserSegmentID,
		TypeSettings:   r.TypeSettings,
	}
	if r.CreateDate != "" {
		if inst.CreateDate, err = time.Parse(time.RFC3339, r.CreateDate); err != nil {
			return nil, fmt.Errorf("%w: create_date: %w", types.ErrInvalidRecord, err)
		}
	}
	if r.ModifiedDate != "" {
		if inst.ModifiedDate, err = time.Parse(time.RFC3339, r.ModifiedDate); err != nil {
			return nil, fmt.Errorf("%w: modified_date: %w", types.ErrInvalidRecord, err)
		}
	}
	return inst, nil
}

// MarshalRecord encodes r as YAML with four-space indentation.
func MarshalRecord(r Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(4)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", r.UUID, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", r.UUID, err)
	}
	return buf.Bytes(), nil
}

// UnmarshalRecord decodes and validates a record. Unknown fields are rejected.
func UnmarshalRecord(data []byte) (Record, error) {
	var r Record
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return Record{}, fmt.Errorf("%w: %w", types.ErrInvalidRecord, err)
	}
	uuid, err := types.ParseUUID(r.UUID)
	if err != nil {
		return Record{}, fmt.Errorf("%w: uuid %q: %w", types.ErrInvalidRecord, r.UUID, err)
	}
	r.UUID = uuid
	if strings.TrimSpace(r.RuleKey) == "" {
		return Record{}, fmt.Errorf("%w: missing rule_key", types.ErrInvalidRecord)
	}
	return r, nil
}

// ModelPath is the bundle path of an exported instance.
func ModelPath(groupID int64, className string, ruleInstanceID int64) string {
	return fmt.Sprintf("group/%d/%s/%d.yaml", groupID, className, ruleInstanceID)
}
