package engine

import (
	"context"
	"fmt"
	"sort"

	"ShopPilot/pkg/model"
)

// RuleSource read side of the rule store
type RuleSource interface {
	ListActiveRules(ctx context.Context, orgID string, trigger model.TriggerType) ([]model.AutomationRule, error)
}

// TriggerMatcher selects the rules an event fires
type TriggerMatcher struct {
	rules RuleSource
}

func NewTriggerMatcher(rules RuleSource) *TriggerMatcher {
	return &TriggerMatcher{rules: rules}
}

// Match ACTIVE rules of orgID whose trigger type equals trigger, oldest first
func (m *TriggerMatcher) Match(ctx context.Context, orgID string, trigger model.TriggerType) ([]model.AutomationRule, error) {
	rules, err := m.rules.ListActiveRules(ctx, orgID, trigger)
	if err != nil {
		return nil, fmt.Errorf("list rules for %s: %w", trigger, err)
	}

	matched := make([]model.AutomationRule, 0, len(rules))
	for _, r := range rules {
		if r.OrgID == orgID && r.Status == model.RuleStatusActive && r.TriggerType == trigger {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}
