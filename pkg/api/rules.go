package api

import (
	"net/http"
	"slices"

	"ShopPilot/pkg/apperror"
	"ShopPilot/pkg/engine"
	"ShopPilot/pkg/model"

	"github.com/gin-gonic/gin"
)

// ListRules GET /rules?status=&trigger_type=
func (h *Handlers) ListRules(c *gin.Context) {
	filter := model.RuleFilter{
		Status:      model.RuleStatus(c.Query("status")),
		TriggerType: model.TriggerType(c.Query("trigger_type")),
	}
	rules, err := h.rules.ListRules(c.Request.Context(), orgOf(c), filter)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "total": len(rules)})
}

// CreateRule POST /rules; new rules are DRAFT unless a status is given
func (h *Handlers) CreateRule(c *gin.Context) {
	var rule model.AutomationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		badBody(c, err)
		return
	}
	rule.ID = ""
	rule.OrgID = orgOf(c)
	if rule.Status == "" {
		rule.Status = model.RuleStatusDraft
	}
	if err := engine.ValidateRule(&rule); err != nil {
		apperror.Respond(c, err)
		return
	}

	if err := h.rules.CreateRule(c.Request.Context(), &rule); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// GetRule GET /rules/:id
func (h *Handlers) GetRule(c *gin.Context) {
	rule, err := h.rules.GetRule(c.Request.Context(), orgOf(c), c.Param("id"))
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// UpdateRule PUT /rules/:id; the trigger type cannot change
func (h *Handlers) UpdateRule(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.rules.GetRule(ctx, orgOf(c), c.Param("id"))
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	updated := *existing
	updated.Conditions = slices.Clone(existing.Conditions)
	updated.Actions = slices.Clone(existing.Actions)
	if err := c.ShouldBindJSON(&updated); err != nil {
		badBody(c, err)
		return
	}
	updated.ID, updated.OrgID, updated.CreatedAt = existing.ID, existing.OrgID, existing.CreatedAt
	if err := engine.ValidateRuleUpdate(existing, &updated); err != nil {
		apperror.Respond(c, err)
		return
	}

	if err := h.rules.UpdateRule(ctx, &updated); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteRule DELETE /rules/:id; executions are kept
func (h *Handlers) DeleteRule(c *gin.Context) {
	if err := h.rules.DeleteRule(c.Request.Context(), orgOf(c), c.Param("id")); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListRuleExecutions GET /rules/:id/executions
func (h *Handlers) ListRuleExecutions(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.rules.GetRule(ctx, orgOf(c), c.Param("id")); err != nil {
		apperror.Respond(c, err)
		return
	}
	h.listExecutions(c, c.Param("id"))
}

// ListExecutions GET /executions
func (h *Handlers) ListExecutions(c *gin.Context) {
	h.listExecutions(c, "")
}

func (h *Handlers) listExecutions(c *gin.Context, ruleID string) {
	limit, offset, err := pageParams(c)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	execs, total, err := h.rules.ListExecutions(c.Request.Context(), orgOf(c), ruleID, limit, offset)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": execs, "total": total, "limit": limit, "offset": offset})
}
