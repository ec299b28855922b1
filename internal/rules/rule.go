// internal/rules/rule.go
package rules

import (
	"context"

	"github.com/solatis/segmentkeeper/internal/types"
	"golang.org/x/text/language"
)

/*
 * Rule contract.
 *
 * A Rule is one condition type ("visited page X", ...). Rule instances are
 * persisted configurations of a Rule, bound to a user segment; their
 * TypeSettings payload is owned by the Rule named in RuleKey.
 *
 * The contract covers four concerns so that the evaluator, the instance
 * service and the staged-model data handler never depend on a concrete rule:
 *   - lifecycle: Activate/DeActivate, driven exactly once each by Registry
 *   - evaluation: Evaluate, a side-effect-free predicate
 *   - configuration: FormHTML renders the form, ProcessRule turns submitted
 *     values into canonical TypeSettings
 *   - portability: ExportData/ImportData rewrite TypeSettings between local and
 *     portable references, DeleteData releases rule-owned resources
 *
 * Evaluate treats a TypeSettings value it cannot parse as a non-match.
 * Failures of external services propagate wrapped in types.ErrResourceUnavailable.
 * *types.InvalidRuleError is the only user-facing error kind.
 */

// Rule is implemented by every rule variant.
type Rule interface {
	// Activate runs once when the variant is registered.
	Activate()

	// DeActivate runs once when the variant is unregistered.
	DeActivate()

	// Evaluate reports whether user complies with inst.
	Evaluate(ctx context.Context, inst *types.RuleInstance, user *types.AnonymousUser) (bool, error)

	// FormHTML renders the form fields editing inst. values holds the last
	// submitted values and takes precedence over inst when non-empty.
	FormHTML(ctx context.Context, inst *types.RuleInstance, formCtx map[string]any, values map[string]string) (string, error)

	// ProcessRule converts submitted form values into TypeSettings.
	ProcessRule(ctx context.Context, req FormRequest) (string, error)

	// ExportData rewrites inst.TypeSettings from local to portable references.
	ExportData(ctx context.Context, dc DataContext, el *types.Element, inst *types.RuleInstance) error

	// ImportData rewrites inst.TypeSettings from portable to local references.
	ImportData(ctx context.Context, dc DataContext, inst *types.RuleInstance) error

	// DeleteData releases rule-owned resources of an instance being deleted.
	// An error aborts the delete.
	DeleteData(ctx context.Context, inst *types.RuleInstance) error

	RuleKey() string
	RuleCategoryKey() string
	Icon() string

	// Instantiable reports whether the rule may be used more than once with
	// different values in one user segment.
	Instantiable() bool

	Name(tag language.Tag) string
	Description(tag language.Tag) string
	ShortDescription(tag language.Tag) string

	// Summary describes inst for listings. Never fails; unresolvable
	// configuration yields an empty summary.
	Summary(ctx context.Context, inst *types.RuleInstance, tag language.Tag) string
}

// FormRequest carries submitted configuration values.
type FormRequest struct {
	CompanyID    int64
	ScopeGroupID int64
	// ID differentiates instances of the same instantiable rule in one form.
	ID     string
	Values map[string]string
}

// DataContext is the export/import environment seen by a rule variant.
type DataContext interface {
	CompanyID() int64
	ScopeGroupID() int64

	// Unresolved records a reference that could not be translated. The
	// payload is left unchanged and the operation continues.
	Unresolved(ref Unresolved)
}

// Direction of a portability translation.
type Direction string

const (
	DirectionExport Direction = "export"
	DirectionImport Direction = "import"
)

// Unresolved describes a reference that could not be translated.
type Unresolved struct {
	Direction        Direction
	RuleKey          string
	RuleInstanceUUID string
	Reference        string
}

// Category keys.
const (
	CategoryBehavior    = "behavior"
	CategorySessionAttr = "session-attributes"
	CategoryUserAttr    = "user-attributes"
	CategorySocial      = "social"
	CategoryMisc        = "misc"
)
