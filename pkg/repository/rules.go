package repository

import (
	"context"
	"sort"

	"ShopPilot/pkg/model"

	"github.com/google/uuid"
)

func (r *Repository) CreateRule(ctx context.Context, rule *model.AutomationRule) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if _, exists := r.rules[rule.ID]; exists {
		return model.ErrDuplicate
	}
	now := r.now()
	rule.CreatedAt, rule.UpdatedAt = now, now
	cp := *rule
	r.rules[rule.ID] = &cp
	return nil
}

func (r *Repository) GetRule(ctx context.Context, orgID, id string) (*model.AutomationRule, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	rule, ok := r.rules[id]
	if !ok || rule.OrgID != orgID {
		return nil, model.ErrNotFound
	}
	cp := *rule
	return &cp, nil
}

// ListRules newest first
func (r *Repository) ListRules(ctx context.Context, orgID string, filter model.RuleFilter) ([]model.AutomationRule, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]model.AutomationRule, 0)
	for _, rule := range r.rules {
		if rule.OrgID == orgID && filter.Matches(rule) {
			out = append(out, *rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) ListActiveRules(ctx context.Context, orgID string, trigger model.TriggerType) ([]model.AutomationRule, error) {
	return r.ListRules(ctx, orgID, model.RuleFilter{Status: model.RuleStatusActive, TriggerType: trigger})
}

// ListOrgsWithActiveRules orgs owning at least one ACTIVE rule for trigger
func (r *Repository) ListOrgsWithActiveRules(ctx context.Context, trigger model.TriggerType) ([]string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	seen := make(map[string]bool)
	orgs := make([]string, 0)
	for _, rule := range r.rules {
		if rule.Status == model.RuleStatusActive && rule.TriggerType == trigger && !seen[rule.OrgID] {
			seen[rule.OrgID] = true
			orgs = append(orgs, rule.OrgID)
		}
	}
	sort.Strings(orgs)
	return orgs, nil
}

func (r *Repository) UpdateRule(ctx context.Context, rule *model.AutomationRule) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	existing, ok := r.rules[rule.ID]
	if !ok || existing.OrgID != rule.OrgID {
		return model.ErrNotFound
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = r.now()
	cp := *rule
	r.rules[rule.ID] = &cp
	return nil
}

func (r *Repository) DeleteRule(ctx context.Context, orgID, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rule, ok := r.rules[id]
	if !ok || rule.OrgID != orgID {
		return model.ErrNotFound
	}
	delete(r.rules, id)
	return nil
}

// AppendExecution executions are never updated
func (r *Repository) AppendExecution(ctx context.Context, exec *model.Execution) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	exec.CreatedAt = r.now()
	r.executions = append(r.executions, *exec)
	return nil
}

// ListExecutions newest first; empty ruleID lists the whole org
func (r *Repository) ListExecutions(ctx context.Context, orgID, ruleID string, limit, offset int) ([]model.Execution, int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	matched := make([]model.Execution, 0)
	for i := len(r.executions) - 1; i >= 0; i-- {
		e := r.executions[i]
		if e.OrgID != orgID || (ruleID != "" && e.RuleID != ruleID) {
			continue
		}
		matched = append(matched, e)
	}
	return page(matched, limit, offset), int64(len(matched)), nil
}
