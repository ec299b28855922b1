// Package visited implements the page-visited rule: a visitor matches once the
// event history holds at least one view of the configured page.
//
// TypeSettings holds the page's local id (plid) in decimal. Export rewrites it
// to the page's portable uuid; import maps the uuid back to a plid in the
// destination company.
package visited

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"strconv"
	"strings"

	"github.com/solatis/segmentkeeper/internal/analytics"
	"github.com/solatis/segmentkeeper/internal/i18n"
	"github.com/solatis/segmentkeeper/internal/layout"
	"github.com/solatis/segmentkeeper/internal/rules"
	"github.com/solatis/segmentkeeper/internal/types"
	"golang.org/x/text/language"
)

const (
	// RuleKey identifies page-visited rule instances.
	RuleKey = "page-visited"

	// FieldFriendlyURL is the submitted form field holding the page path.
	FieldFriendlyURL = "friendlyURL"

	// ErrKeyPageNotFound is reported when the submitted path matches no page.
	ErrKeyPageNotFound = "a-page-with-this-friendly-url-could-not-be-found"

	// AttrLayoutUUID annotates exported elements with the resolved page uuid.
	AttrLayoutUUID = "layout-uuid"
)

//go:embed templates/page_visited.html
var templatesFS embed.FS

var formTemplate = template.Must(template.ParseFS(templatesFS, "templates/page_visited.html"))

// Rule is the page-visited rule variant.
type Rule struct {
	rules.BaseRule

	events          analytics.Counter
	layouts         layout.Registry
	trackingEnabled bool
}

// Option configures a Rule.
type Option func(*Rule)

// WithTrackingPageEnabled reports in the form whether page views are being
// tracked. Defaults to true.
func WithTrackingPageEnabled(enabled bool) Option {
	return func(r *Rule) {
		r.trackingEnabled = enabled
	}
}

// WithLogger sets the rule logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Rule) {
		r.BaseRule = newBase(logger)
	}
}

// New creates the page-visited rule over an event history and a navigation registry.
func New(events analytics.Counter, layouts layout.Registry, opts ...Option) *Rule {
	r := &Rule{
		BaseRule:        newBase(nil),
		events:          events,
		layouts:         layouts,
		trackingEnabled: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newBase(logger *slog.Logger) rules.BaseRule {
	return rules.NewBaseRule(rules.BaseConfig{
		Key:          RuleKey,
		Category:     rules.CategoryBehavior,
		Icon:         "icon-file",
		Instantiable: true,
		Name: i18n.Text{
			{Tag: language.English, Text: "Page Visited"},
			{Tag: language.Spanish, Text: "Página visitada"},
		},
		Description: i18n.Text{
			{Tag: language.English, Text: "Users who have visited a given page of this site at least once."},
			{Tag: language.Spanish, Text: "Usuarios que han visitado al menos una vez una página de este sitio."},
		},
		ShortDescription: i18n.Text{
			{Tag: language.English, Text: "Visited a page"},
			{Tag: language.Spanish, Text: "Visitó una página"},
		},
		Logger: logger,
	})
}

// parsePlid decodes TypeSettings. ok is false for anything but a positive id.
func parsePlid(typeSettings string) (int64, bool) {
	plid, err := strconv.ParseInt(strings.TrimSpace(typeSettings), 10, 64)
	if err != nil || plid <= 0 {
		return 0, false
	}
	return plid, true
}

// Evaluate reports whether user has viewed the configured page at least once.
// There is no time window: a single view matches forever.
func (r *Rule) Evaluate(ctx context.Context, inst *types.RuleInstance, user *types.AnonymousUser) (bool, error) {
	plid, ok := parsePlid(inst.TypeSettings)
	if !ok {
		r.Logger().Debug("unparsable type settings, treating as no match",
			"rule_instance_id", inst.RuleInstanceID, "type_settings", inst.TypeSettings)
		return false, nil
	}

	count, err := r.events.Count(ctx, user.AnonymousUserID, analytics.ClassNameLayout, plid, analytics.EventView)
	if err != nil {
		return false, unavailable("count page views", err)
	}
	return count > 0, nil
}

// ExportData replaces the plid with the page uuid. A page that no longer
// exists is reported as unresolved and the payload is kept.
func (r *Rule) ExportData(ctx context.Context, dc rules.DataContext, el *types.Element, inst *types.RuleInstance) error {
	plid, ok := parsePlid(inst.TypeSettings)
	var l *layout.Layout
	if ok {
		var err error
		l, err = r.layouts.FetchLayout(ctx, plid)
		if err != nil {
			return unavailable("fetch layout", err)
		}
	}
	if l == nil {
		dc.Unresolved(rules.Unresolved{
			Direction:        rules.DirectionExport,
			RuleKey:          RuleKey,
			RuleInstanceUUID: inst.UUID,
			Reference:        inst.TypeSettings,
		})
		return nil
	}

	inst.TypeSettings = l.UUID
	if el != nil {
		el.SetAttribute(AttrLayoutUUID, l.UUID)
	}
	return nil
}

// ImportData replaces the page uuid with the plid of the same page in the
// destination company. An unknown uuid is reported as unresolved and the
// payload is kept.
func (r *Rule) ImportData(ctx context.Context, dc rules.DataContext, inst *types.RuleInstance) error {
	uuid := strings.TrimSpace(inst.TypeSettings)
	var l *layout.Layout
	if uuid != "" {
		var err error
		l, err = r.layouts.FetchLayoutByUUIDAndCompanyID(ctx, uuid, dc.CompanyID())
		if err != nil {
			return unavailable("fetch layout by uuid", err)
		}
	}
	if l == nil {
		dc.Unresolved(rules.Unresolved{
			Direction:        rules.DirectionImport,
			RuleKey:          RuleKey,
			RuleInstanceUUID: inst.UUID,
			Reference:        inst.TypeSettings,
		})
		return nil
	}

	inst.TypeSettings = strconv.FormatInt(l.Plid, 10)
	return nil
}

// ProcessRule resolves the submitted friendly URL to a plid, trying the public
// tree before the private one.
func (r *Rule) ProcessRule(ctx context.Context, req rules.FormRequest) (string, error) {
	friendlyURL := layout.NormalizeFriendlyURL(req.Values[FieldFriendlyURL])
	if friendlyURL == "" {
		return "", types.NewInvalidRuleError(ErrKeyPageNotFound)
	}

	for _, private := range []bool{false, true} {
		l, err := r.layouts.FetchLayoutByFriendlyURL(ctx, req.ScopeGroupID, private, friendlyURL)
		if err != nil {
			return "", unavailable("fetch layout by friendly url", err)
		}
		if l != nil {
			return strconv.FormatInt(l.Plid, 10), nil
		}
	}

	return "", types.NewInvalidRuleError(ErrKeyPageNotFound)
}

// Summary returns the configured page's title, or "" when it is gone.
func (r *Rule) Summary(ctx context.Context, inst *types.RuleInstance, tag language.Tag) string {
	l := r.fetchConfigured(ctx, inst)
	if l == nil {
		return ""
	}
	return l.Title(tag)
}

// FormHTML renders the page selector. Submitted values win over the stored
// configuration so a rejected form re-renders what the user typed.
//
// formCtx must carry "scopeGroupId" (int64); "namespace" is optional.
func (r *Rule) FormHTML(ctx context.Context, inst *types.RuleInstance, formCtx map[string]any, values map[string]string) (string, error) {
	if formCtx == nil {
		formCtx = make(map[string]any)
	}
	groupID, _ := formCtx["scopeGroupId"].(int64)

	base, err := r.layouts.GroupFriendlyURL(ctx, groupID, false)
	if err != nil {
		r.Logger().Error("failed to resolve group friendly url", "group_id", groupID, "error", err)
		base = ""
	}

	friendlyURL := ""
	if len(values) > 0 {
		friendlyURL = values[FieldFriendlyURL]
	} else if l := r.fetchConfigured(ctx, inst); l != nil {
		friendlyURL = l.FriendlyURL
	}

	formCtx["friendlyURLBase"] = base
	formCtx["friendlyURL"] = friendlyURL
	formCtx["trackingPageEnabled"] = r.trackingEnabled
	if _, ok := formCtx["namespace"]; !ok {
		formCtx["namespace"] = ""
	}

	return rules.RenderForm(formTemplate, formCtx)
}

// unavailable marks a collaborator failure as types.ErrResourceUnavailable
// unless it already is one.
func unavailable(op string, err error) error {
	if errors.Is(err, types.ErrResourceUnavailable) {
		return err
	}
	return types.Unavailable(op, err)
}

// fetchConfigured returns the page inst points at, nil when absent or on error.
func (r *Rule) fetchConfigured(ctx context.Context, inst *types.RuleInstance) *layout.Layout {
	if inst == nil {
		return nil
	}
	plid, ok := parsePlid(inst.TypeSettings)
	if !ok {
		return nil
	}
	l, err := r.layouts.FetchLayout(ctx, plid)
	if err != nil {
		r.Logger().Warn("failed to fetch configured layout", "plid", plid, "error", err)
		return nil
	}
	return l
}

var _ rules.Rule = (*Rule)(nil)
