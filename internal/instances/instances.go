// Package instances persists rule instances.
//
// Deleting an instance gives its rule variant a chance to release what it owns
// (DeleteData) inside the same transaction as the row delete; a variant
// failure rolls the delete back.
package instances

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/solatis/segmentkeeper/internal/core/db"
	"github.com/solatis/segmentkeeper/internal/rules"
	"github.com/solatis/segmentkeeper/internal/types"
)

// RuleLookup resolves active rule variants by key.
type RuleLookup interface {
	Lookup(key string) (rules.Rule, error)
}

// AddRequest describes a new rule instance. An empty UUID is generated.
type AddRequest struct {
	UUID          string
	GroupID       int64
	CompanyID     int64
	UserID        int64
	UserName      string
	UserUUID      string
	RuleKey       string
	UserSegmentID int64
	TypeSettings  string
}

// Service is the rule instance persistence service.
type Service struct {
	q      *db.Queries
	rules  RuleLookup
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service. A nil logger uses slog.Default().
func NewService(q *db.Queries, lookup RuleLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		q:      q,
		rules:  lookup,
		logger: logger,
		now:    time.Now,
	}
}

// row is the storage shape; dates are RFC3339 text on every driver.
type row struct {
	types.RuleInstance
	CreateDate   string `db:"create_date"`
	ModifiedDate string `db:"modified_date"`
}

func (r *row) toInstance() (*types.RuleInstance, error) {
	inst := r.RuleInstance
	var err error
	if inst.CreateDate, err = time.Parse(time.RFC3339, r.CreateDate); err != nil {
		return nil, fmt.Errorf("rule instance %d: bad create_date: %w", inst.RuleInstanceID, err)
	}
	if inst.ModifiedDate, err = time.Parse(time.RFC3339, r.ModifiedDate); err != nil {
		return nil, fmt.Errorf("rule instance %d: bad modified_date: %w", inst.RuleInstanceID, err)
	}
	return &inst, nil
}

func (s *Service) timestamp() (time.Time, string) {
	t := s.now().UTC().Truncate(time.Second)
	return t, t.Format(time.RFC3339)
}

func validate(ruleKey, typeSettings string) error {
	if strings.TrimSpace(ruleKey) == "" {
		return fmt.Errorf("rule key is required")
	}
	if len(ruleKey) > types.MaxRuleKeyLength {
		return fmt.Errorf("rule key exceeds %d bytes", types.MaxRuleKeyLength)
	}
	if len(typeSettings) > types.MaxTypeSettingsLength {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d",
			types.ErrInvalidTypeSettings, len(typeSettings), types.MaxTypeSettingsLength)
	}
	return nil
}

// Add persists a new rule instance.
func (s *Service) Add(ctx context.Context, req AddRequest) (*types.RuleInstance, error) {
	if err := validate(req.RuleKey, req.TypeSettings); err != nil {
		return nil, err
	}

	uuid := req.UUID
	if uuid == "" {
		uuid = types.NewUUID()
	} else {
		parsed, err := types.ParseUUID(uuid)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid %q: %w", uuid, err)
		}
		uuid = parsed
	}

	now, stamp := s.timestamp()
	inst := &types.RuleInstance{
		UUID:          uuid,
		GroupID:       req.GroupID,
		CompanyID:     req.CompanyID,
		UserID:        req.UserID,
		UserName:      req.UserName,
		UserUUID:      req.UserUUID,
		RuleKey:       req.RuleKey,
		UserSegmentID: req.UserSegmentID,
		TypeSettings:  req.TypeSettings,
		CreateDate:    now,
		ModifiedDate:  now,
	}

	err := s.q.Get(ctx, "add-rule-instance", &inst.RuleInstanceID,
		inst.UUID, inst.GroupID, inst.CompanyID, inst.UserID, inst.UserName, inst.UserUUID,
		inst.RuleKey, inst.UserSegmentID, inst.TypeSettings, stamp, stamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add rule instance: %w", err)
	}

	s.logger.Debug("rule instance added",
		"rule_instance_id", inst.RuleInstanceID, "uuid", inst.UUID, "rule_key", inst.RuleKey, "group_id", inst.GroupID)
	return inst, nil
}

// Update replaces the TypeSettings of an existing instance.
func (s *Service) Update(ctx context.Context, id int64, typeSettings string) (*types.RuleInstance, error) {
	if len(typeSettings) > types.MaxTypeSettingsLength {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d",
			types.ErrInvalidTypeSettings, len(typeSettings), types.MaxTypeSettingsLength)
	}

	_, stamp := s.timestamp()
	res, err := s.q.Exec(ctx, "update-rule-instance-type-settings", typeSettings, stamp, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule instance %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %d", types.ErrRuleInstanceNotFound, id)
	}
	return s.Get(ctx, id)
}

// Get returns the instance with surrogate key id.
func (s *Service) Get(ctx context.Context, id int64) (*types.RuleInstance, error) {
	var r row
	err := s.q.Get(ctx, "get-rule-instance", &r, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", types.ErrRuleInstanceNotFound, id)
	}
	if err != nil {
		return nil, types.Unavailable(fmt.Sprintf("get rule instance %d", id), err)
	}
	return r.toInstance()
}

// FetchByUUIDAndGroupID returns the instance with a global id in a group, or
// nil when there is none.
func (s *Service) FetchByUUIDAndGroupID(ctx context.Context, uuid string, groupID int64) (*types.RuleInstance, error) {
	var r row
	err := s.q.Get(ctx, "get-rule-instance-by-uuid-and-group", &r, uuid, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.Unavailable(fmt.Sprintf("fetch rule instance %s in group %d", uuid, groupID), err)
	}
	return r.toInstance()
}

// ListByGroup returns a group's instances in creation order.
func (s *Service) ListByGroup(ctx context.Context, groupID int64) ([]*types.RuleInstance, error) {
	return s.list(ctx, "list-rule-instances-by-group", groupID)
}

// ListBySegment returns the instances bound to a user segment in creation order.
func (s *Service) ListBySegment(ctx context.Context, userSegmentID int64) ([]*types.RuleInstance, error) {
	return s.list(ctx, "list-rule-instances-by-segment", userSegmentID)
}

func (s *Service) list(ctx context.Context, name string, arg int64) ([]*types.RuleInstance, error) {
	var rows []row
	if err := s.q.Select(ctx, name, &rows, arg); err != nil {
		return nil, types.Unavailable("list rule instances", err)
	}
	out := make([]*types.RuleInstance, 0, len(rows))
	for i := range rows {
		inst, err := rows[i].toInstance()
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// Delete removes inst. The owning variant's DeleteData runs inside the
// transaction; its failure keeps the row. An unregistered variant owns
// nothing that can be released, so the row is deleted with a warning.
func (s *Service) Delete(ctx context.Context, inst *types.RuleInstance) error {
	if inst == nil {
		return fmt.Errorf("nil rule instance")
	}

	tx, err := s.q.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(ctx, "delete-rule-instance", inst.RuleInstanceID)
	if err != nil {
		return fmt.Errorf("failed to delete rule instance %d: %w", inst.RuleInstanceID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", types.ErrRuleInstanceNotFound, inst.RuleInstanceID)
	}

	rule, err := s.rules.Lookup(inst.RuleKey)
	switch {
	case errors.Is(err, types.ErrRuleNotRegistered):
		s.logger.Warn("deleting rule instance of unregistered rule",
			"rule_instance_id", inst.RuleInstanceID, "rule_key", inst.RuleKey)
	case err != nil:
		return err
	default:
		if err := rule.DeleteData(ctx, inst); err != nil {
			return fmt.Errorf("rule %s failed to release data of instance %d: %w",
				inst.RuleKey, inst.RuleInstanceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of rule instance %d: %w", inst.RuleInstanceID, err)
	}

	s.logger.Debug("rule instance deleted",
		"rule_instance_id", inst.RuleInstanceID, "uuid", inst.UUID, "rule_key", inst.RuleKey)
	return nil
}
