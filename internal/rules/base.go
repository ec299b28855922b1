package rules

import (
	"context"
	"log/slog"

	"github.com/solatis/segmentkeeper/internal/i18n"
	"github.com/solatis/segmentkeeper/internal/types"
	"golang.org/x/text/language"
)

// BaseConfig describes the static metadata of a rule variant.
type BaseConfig struct {
	Key              string
	Category         string
	Icon             string
	Instantiable     bool
	Name             i18n.Text
	Description      i18n.Text
	ShortDescription i18n.Text
	Logger           *slog.Logger
}

// BaseRule provides metadata accessors and no-op defaults for the optional
// parts of the Rule contract. Variants embed it and override what they need.
type BaseRule struct {
	cfg    BaseConfig
	logger *slog.Logger
}

// NewBaseRule creates a BaseRule. Category defaults to CategoryMisc.
func NewBaseRule(cfg BaseConfig) BaseRule {
	if cfg.Category == "" {
		cfg.Category = CategoryMisc
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return BaseRule{
		cfg:    cfg,
		logger: logger.With("rule_key", cfg.Key),
	}
}

// Logger returns the rule-scoped logger.
func (b *BaseRule) Logger() *slog.Logger {
	return b.logger
}

func (b *BaseRule) Activate() {
	b.logger.Debug("rule activated")
}

func (b *BaseRule) DeActivate() {
	b.logger.Debug("rule deactivated")
}

func (b *BaseRule) ExportData(context.Context, DataContext, *types.Element, *types.RuleInstance) error {
	return nil
}

func (b *BaseRule) ImportData(context.Context, DataContext, *types.RuleInstance) error {
	return nil
}

func (b *BaseRule) DeleteData(context.Context, *types.RuleInstance) error {
	return nil
}

// FormHTML renders nothing; rules without configuration have no form.
func (b *BaseRule) FormHTML(context.Context, *types.RuleInstance, map[string]any, map[string]string) (string, error) {
	return "", nil
}

// ProcessRule stores no configuration.
func (b *BaseRule) ProcessRule(context.Context, FormRequest) (string, error) {
	return "", nil
}

func (b *BaseRule) RuleKey() string         { return b.cfg.Key }
func (b *BaseRule) RuleCategoryKey() string { return b.cfg.Category }
func (b *BaseRule) Icon() string            { return b.cfg.Icon }
func (b *BaseRule) Instantiable() bool      { return b.cfg.Instantiable }

func (b *BaseRule) Name(tag language.Tag) string {
	if name := b.cfg.Name.In(tag); name != "" {
		return name
	}
	return b.cfg.Key
}

func (b *BaseRule) Description(tag language.Tag) string {
	return b.cfg.Description.In(tag)
}

// ShortDescription falls back to Description.
func (b *BaseRule) ShortDescription(tag language.Tag) string {
	if s := b.cfg.ShortDescription.In(tag); s != "" {
		return s
	}
	return b.Description(tag)
}

func (b *BaseRule) Summary(context.Context, *types.RuleInstance, language.Tag) string {
	return ""
}
