package database

import (
	"context"
	"fmt"

	"ShopPilot/pkg/model"

	"gorm.io/gorm"
)

type RuleDB struct {
	db *gorm.DB
}

func (p *PostgresDB) Rules() *RuleDB {
	return &RuleDB{db: p.db}
}

func (r *RuleDB) CreateRule(ctx context.Context, rule *model.AutomationRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		if duplicate(err) {
			return model.ErrDuplicate
		}
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (r *RuleDB) GetRule(ctx context.Context, orgID, id string) (*model.AutomationRule, error) {
	var rule model.AutomationRule
	err := r.db.WithContext(ctx).First(&rule, "id = ? AND org_id = ?", id, orgID).Error
	if notFound(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return &rule, nil
}

func (r *RuleDB) ListRules(ctx context.Context, orgID string, filter model.RuleFilter) ([]model.AutomationRule, error) {
	query := r.db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TriggerType != "" {
		query = query.Where("trigger_type = ?", filter.TriggerType)
	}

	rules := make([]model.AutomationRule, 0)
	if err := query.Order("created_at DESC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// ListActiveRules oldest first, the order rules are evaluated in
func (r *RuleDB) ListActiveRules(ctx context.Context, orgID string, trigger model.TriggerType) ([]model.AutomationRule, error) {
	rules := make([]model.AutomationRule, 0)
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND status = ? AND trigger_type = ?", orgID, model.RuleStatusActive, trigger).
		Order("created_at ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	return rules, nil
}

func (r *RuleDB) ListOrgsWithActiveRules(ctx context.Context, trigger model.TriggerType) ([]string, error) {
	orgs := make([]string, 0)
	err := r.db.WithContext(ctx).Model(&model.AutomationRule{}).
		Where("status = ? AND trigger_type = ?", model.RuleStatusActive, trigger).
		Distinct("org_id").
		Order("org_id").
		Pluck("org_id", &orgs).Error
	if err != nil {
		return nil, fmt.Errorf("list orgs with active rules: %w", err)
	}
	return orgs, nil
}

// UpdateRule replaces the editable fields; trigger type and org never change
func (r *RuleDB) UpdateRule(ctx context.Context, rule *model.AutomationRule) error {
	res := r.db.WithContext(ctx).Model(&model.AutomationRule{}).
		Where("id = ? AND org_id = ?", rule.ID, rule.OrgID).
		Select("name", "description", "status", "conditions", "actions", "updated_at").
		Updates(rule)
	if res.Error != nil {
		return fmt.Errorf("update rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *RuleDB) DeleteRule(ctx context.Context, orgID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).Delete(&model.AutomationRule{})
	if res.Error != nil {
		return fmt.Errorf("delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

type ExecutionDB struct {
	db *gorm.DB
}

func (p *PostgresDB) Executions() *ExecutionDB {
	return &ExecutionDB{db: p.db}
}

// AppendExecution executions are insert-only
func (e *ExecutionDB) AppendExecution(ctx context.Context, exec *model.Execution) error {
	if err := e.db.WithContext(ctx).Create(exec).Error; err != nil {
		return fmt.Errorf("append execution: %w", err)
	}
	return nil
}

func (e *ExecutionDB) ListExecutions(ctx context.Context, orgID, ruleID string, limit, offset int) ([]model.Execution, int64, error) {
	query := e.db.WithContext(ctx).Model(&model.Execution{}).Where("org_id = ?", orgID)
	if ruleID != "" {
		query = query.Where("rule_id = ?", ruleID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}
	execs := make([]model.Execution, 0)
	if err := paginate(query.Order("started_at DESC"), limit, offset).Find(&execs).Error; err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	return execs, total, nil
}
