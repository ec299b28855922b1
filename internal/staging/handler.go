// Package staging moves rule instances between environments.
//
// Export writes one YAML record per instance into a Bundle after the owning
// rule variant has rewritten TypeSettings into portable form. Import reverses
// the translation and reconciles by global id within the destination group:
// an existing instance is updated in place, otherwise one is created carrying
// the same uuid. Each import records original -> destination primary keys in
// the job's Mapping so later imports in the same job resolve cross-references
// consistently.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/solatis/segmentkeeper/internal/instances"
	"github.com/solatis/segmentkeeper/internal/types"
)

// Class names managed or consulted by the handler.
const (
	ClassNameRuleInstance = "segmentkeeper.RuleInstance"
	ClassNameUserSegment  = "segmentkeeper.UserSegment"
)

// InstanceStore is the persistence the handler reconciles against.
type InstanceStore interface {
	Add(ctx context.Context, req instances.AddRequest) (*types.RuleInstance, error)
	Update(ctx context.Context, id int64, typeSettings string) (*types.RuleInstance, error)
	FetchByUUIDAndGroupID(ctx context.Context, uuid string, groupID int64) (*types.RuleInstance, error)
	ListByGroup(ctx context.Context, groupID int64) ([]*types.RuleInstance, error)
	Delete(ctx context.Context, inst *types.RuleInstance) error
}

// Handler is the staged-model data handler for rule instances.
type Handler struct {
	store  InstanceStore
	rules  instances.RuleLookup
	users  UserResolver
	logger *slog.Logger
}

// NewHandler creates a Handler. A nil logger uses slog.Default().
func NewHandler(store InstanceStore, lookup instances.RuleLookup, users UserResolver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  store,
		rules:  lookup,
		users:  users,
		logger: logger,
	}
}

// ClassNames returns the class names this handler manages.
func (h *Handler) ClassNames() []string {
	return []string{ClassNameRuleInstance}
}

// Export translates a copy of inst through its rule variant and adds the
// record to the job bundle. Returns the bundle path. inst is not modified.
func (h *Handler) Export(ctx context.Context, sc *Context, inst *types.RuleInstance) (string, error) {
	rule, err := h.rules.Lookup(inst.RuleKey)
	if err != nil {
		return "", fmt.Errorf("export rule instance %s: %w", inst.UUID, err)
	}

	exported := inst.Clone()
	el := types.NewElement(ClassNameRuleInstance)
	if err := rule.ExportData(ctx, sc, el, exported); err != nil {
		return "", fmt.Errorf("export rule instance %s: %w", inst.UUID, err)
	}

	data, err := MarshalRecord(NewRecord(exported, el))
	if err != nil {
		return "", err
	}

	p := ModelPath(inst.GroupID, ClassNameRuleInstance, inst.RuleInstanceID)
	sc.Bundle().Put(p, data)

	h.logger.Debug("rule instance exported", "uuid", inst.UUID, "rule_key", inst.RuleKey, "path", p)
	return p, nil
}

// ExportGroup exports every instance of a group and returns the bundle paths.
// The first failing instance aborts the export.
func (h *Handler) ExportGroup(ctx context.Context, sc *Context, groupID int64) ([]string, error) {
	list, err := h.store.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(list))
	for _, inst := range list {
		p, err := h.Export(ctx, sc, inst)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}

	h.logger.Info("group exported",
		"group_id", groupID, "instances", len(paths), "warnings", len(sc.Warnings()))
	return paths, nil
}

// Import reads the record at p and reconciles it into the job's scope group.
func (h *Handler) Import(ctx context.Context, sc *Context, p string) (*types.RuleInstance, error) {
	data, ok := sc.Bundle().Get(p)
	if !ok {
		return nil, fmt.Errorf("%w: no entry at %s", types.ErrInvalidRecord, p)
	}
	rec, err := UnmarshalRecord(data)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", p, err)
	}
	return h.ImportRecord(ctx, sc, rec)
}

// ImportRecord reconciles a decoded record into the job's scope group. An
// existing instance with the same uuid but another rule key is rejected.
func (h *Handler) ImportRecord(ctx context.Context, sc *Context, rec Record) (*types.RuleInstance, error) {
	inst, err := rec.Instance()
	if err != nil {
		return nil, err
	}

	rule, err := h.rules.Lookup(inst.RuleKey)
	if err != nil {
		return nil, fmt.Errorf("import rule instance %s: %w", inst.UUID, err)
	}

	if err := rule.ImportData(ctx, sc, inst); err != nil {
		return nil, fmt.Errorf("import rule instance %s: %w", inst.UUID, err)
	}

	userID, err := h.userID(ctx, sc, inst.UserUUID)
	if err != nil {
		return nil, err
	}

	existing, err := h.store.FetchByUUIDAndGroupID(ctx, inst.UUID, sc.ScopeGroupID())
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.RuleKey != inst.RuleKey {
		return nil, fmt.Errorf("%w: rule instance %s has rule key %q, existing instance in group %d has %q",
			types.ErrInvalidRecord, inst.UUID, inst.RuleKey, sc.ScopeGroupID(), existing.RuleKey)
	}

	var imported *types.RuleInstance
	if existing != nil {
		imported, err = h.store.Update(ctx, existing.RuleInstanceID, inst.TypeSettings)
	} else {
		imported, err = h.store.Add(ctx, instances.AddRequest{
			UUID:          inst.UUID,
			GroupID:       sc.ScopeGroupID(),
			CompanyID:     sc.CompanyID(),
			UserID:        userID,
			UserName:      inst.UserName,
			UserUUID:      inst.UserUUID,
			RuleKey:       inst.RuleKey,
			UserSegmentID: sc.Mapping().Resolve(ClassNameUserSegment, inst.UserSegmentID),
			TypeSettings:  inst.TypeSettings,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("import rule instance %s: %w", inst.UUID, err)
	}

	sc.Mapping().Put(ClassNameRuleInstance, rec.RuleInstanceID, imported.RuleInstanceID)

	h.logger.Debug("rule instance imported",
		"uuid", imported.UUID,
		"rule_key", imported.RuleKey,
		"rule_instance_id", imported.RuleInstanceID,
		"updated", existing != nil)
	return imported, nil
}

// ImportAll imports every rule instance record in the bundle in path order.
// The first failing record aborts the import.
func (h *Handler) ImportAll(ctx context.Context, sc *Context) ([]*types.RuleInstance, error) {
	var out []*types.RuleInstance
	for _, p := range sc.Bundle().Paths("group/") {
		if !isRuleInstancePath(p) {
			continue
		}
		inst, err := h.Import(ctx, sc, p)
		if err != nil {
			return out, err
		}
		out = append(out, inst)
	}

	h.logger.Info("bundle imported",
		"scope_group_id", sc.ScopeGroupID(), "instances", len(out), "warnings", len(sc.Warnings()))
	return out, nil
}

// DeleteStagedModel removes the instance with uuid from groupID if present.
// Deleting an absent instance succeeds.
func (h *Handler) DeleteStagedModel(ctx context.Context, uuid string, groupID int64, className, extraData string) error {
	if className != ClassNameRuleInstance {
		return fmt.Errorf("%w: %s", types.ErrUnsupportedClassName, className)
	}

	canonical, err := types.ParseUUID(uuid)
	if err != nil {
		return fmt.Errorf("delete staged model: invalid uuid %q: %w", uuid, err)
	}

	inst, err := h.store.FetchByUUIDAndGroupID(ctx, canonical, groupID)
	if err != nil {
		return err
	}
	if inst == nil {
		return nil
	}

	err = h.store.Delete(ctx, inst)
	if errors.Is(err, types.ErrRuleInstanceNotFound) {
		return nil
	}
	return err
}

// userID maps the creator to a local user, falling back to the importing user.
func (h *Handler) userID(ctx context.Context, sc *Context, userUUID string) (int64, error) {
	if h.users == nil {
		return sc.UserID(), nil
	}
	id, ok, err := h.users.UserID(ctx, userUUID, sc.CompanyID())
	if err != nil {
		return 0, err
	}
	if !ok {
		return sc.UserID(), nil
	}
	return id, nil
}

// isRuleInstancePath matches group/<groupID>/<className>/<id>.yaml.
func isRuleInstancePath(p string) bool {
	parts := strings.Split(p, "/")
	return len(parts) == 4 &&
		parts[0] == "group" &&
		parts[2] == ClassNameRuleInstance &&
		strings.HasSuffix(parts[3], ".yaml")
}
