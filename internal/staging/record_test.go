package staging

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInstance() *types.RuleInstance {
	return &types.RuleInstance{
		RuleInstanceID: 7,
		UUID:           "0190a8c4-0000-7000-8000-000000000001",
		GroupID:        20,
		CompanyID:      10,
		UserID:         5,
		UserName:       "Test Admin",
		UserUUID:       "0190a8c4-0000-7000-8000-0000000000aa",
		RuleKey:        "page-visited",
		UserSegmentID:  3,
		TypeSettings:   "0190a8c4-0000-7000-8000-000000000042",
		CreateDate:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ModifiedDate:   time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC),
	}
}

func TestMarshalRecord_Golden(t *testing.T) {
	el := types.NewElement(ClassNameRuleInstance)
	el.SetAttribute("layout-uuid", "0190a8c4-0000-7000-8000-000000000042")

	data, err := MarshalRecord(NewRecord(sampleInstance(), el))
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "rule_instance_record", data)
}

func TestRecord_Instance(t *testing.T) {
	src := sampleInstance()
	data, err := MarshalRecord(NewRecord(src, nil))
	require.NoError(t, err)

	rec, err := UnmarshalRecord(data)
	require.NoError(t, err)
	assert.Nil(t, rec.Element, "element without attributes is omitted")

	got, err := rec.Instance()
	require.NoError(t, err)

	// the local user id never leaves the source environment
	want := src.Clone()
	want.UserID = 0
	assert.Equal(t, want, got)
}

func TestUnmarshalRecord_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not yaml", data: "uuid: [unclosed"},
		{name: "bad uuid", data: "uuid: nope\nrule_key: page-visited\n"},
		{name: "missing rule key", data: "uuid: 0190a8c4-0000-7000-8000-000000000001\n"},
		{name: "unknown field", data: "uuid: 0190a8c4-0000-7000-8000-000000000001\nrule_key: x\nplid: 42\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalRecord([]byte(tt.data))
			assert.ErrorIs(t, err, types.ErrInvalidRecord)
		})
	}
}

func TestRecord_InstanceBadDate(t *testing.T) {
	rec := NewRecord(sampleInstance(), nil)
	rec.CreateDate = "yesterday"
	_, err := rec.Instance()
	assert.ErrorIs(t, err, types.ErrInvalidRecord)
}

func TestModelPath(t *testing.T) {
	p := ModelPath(20, ClassNameRuleInstance, 7)
	assert.Equal(t, "group/20/segmentkeeper.RuleInstance/7.yaml", p)
	assert.True(t, isRuleInstancePath(p))
	assert.False(t, isRuleInstancePath("group/20/segmentkeeper.UserSegment/7.yaml"))
	assert.False(t, isRuleInstancePath("manifest.yaml"))
}

func TestUnmarshalRecord_CanonicalUUID(t *testing.T) {
	rec := NewRecord(sampleInstance(), nil)
	rec.UUID = "0190A8C4-0000-7000-8000-000000000001"
	data, err := MarshalRecord(rec)
	require.NoError(t, err)

	got, err := UnmarshalRecord(data)
	require.NoError(t, err)
	assert.Equal(t, "0190a8c4-0000-7000-8000-000000000001", got.UUID)
}
