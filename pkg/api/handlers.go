package api

import (
	"context"
	"net/http"
	"strconv"

	"ShopPilot/pkg/apperror"
	"ShopPilot/pkg/fulfillment"
	"ShopPilot/pkg/model"
	"ShopPilot/pkg/monitor"

	"github.com/gin-gonic/gin"
)

const (
	orgHeader = "X-Org-ID"
	orgKey    = "org_id"
)

// RuleStore rules and their execution history
type RuleStore interface {
	CreateRule(ctx context.Context, rule *model.AutomationRule) error
	GetRule(ctx context.Context, orgID, id string) (*model.AutomationRule, error)
	ListRules(ctx context.Context, orgID string, filter model.RuleFilter) ([]model.AutomationRule, error)
	UpdateRule(ctx context.Context, rule *model.AutomationRule) error
	DeleteRule(ctx context.Context, orgID, id string) error
	ListExecutions(ctx context.Context, orgID, ruleID string, limit, offset int) ([]model.Execution, int64, error)
}

// SettingsStore fulfillment settings and sku mappings
type SettingsStore interface {
	GetConfig(ctx context.Context, orgID string) (*model.FulfillmentConfig, error)
	SaveConfig(ctx context.Context, cfg *model.FulfillmentConfig) error
	CreateMapping(ctx context.Context, m *model.SkuMapping) error
	GetMapping(ctx context.Context, orgID, id string) (*model.SkuMapping, error)
	ListMappings(ctx context.Context, orgID string, limit, offset int) ([]model.SkuMapping, int64, error)
	UpdateMapping(ctx context.Context, m *model.SkuMapping) error
	DeleteMapping(ctx context.Context, orgID, id string) error
}

// JobService fulfillment queue front
type JobService interface {
	List(ctx context.Context, orgID string, filter model.JobFilter) ([]model.FulfillmentJob, int64, error)
	Get(ctx context.Context, orgID, id string) (*fulfillment.JobView, error)
	Submit(ctx context.Context, orgID, orderID, lineItemID string) (fulfillment.SubmitResult, error)
	Preview(ctx context.Context, orgID, orderID, lineItemID string) (fulfillment.EligibilityResult, error)
	Control(ctx context.Context, orgID, id, action string) (*model.FulfillmentJob, error)
}

// EventHandler synchronous event evaluation
type EventHandler interface {
	OnEvent(ctx context.Context, ev model.Event) ([]model.Execution, error)
}

// EventBus asynchronous event ingestion
type EventBus interface {
	PublishEvent(ctx context.Context, ev model.Event) error
}

// Sealer stores credentials and returns an opaque reference
type Sealer interface {
	Seal(ctx context.Context, orgID string, creds model.Credentials) (string, error)
}

// Deps collaborators of the handlers; EventBus and Metrics are optional
type Deps struct {
	Rules    RuleStore
	Settings SettingsStore
	Jobs     JobService
	Engine   EventHandler
	EventBus EventBus
	Vault    Sealer
	Monitor  *monitor.Monitor
	Metrics  http.Handler
}

// Handlers HTTP handlers of the v1 API
type Handlers struct {
	rules    RuleStore
	settings SettingsStore
	jobs     JobService
	engine   EventHandler
	bus      EventBus
	vault    Sealer
	monitor  *monitor.Monitor
	metrics  http.Handler
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		rules:    d.Rules,
		settings: d.Settings,
		jobs:     d.Jobs,
		engine:   d.Engine,
		bus:      d.EventBus,
		vault:    d.Vault,
		monitor:  d.Monitor,
		metrics:  d.Metrics,
	}
}

// RequireOrg every v1 request is scoped to the org of the X-Org-ID header
func RequireOrg() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.GetHeader(orgHeader)
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": orgHeader + " header is required"})
			return
		}
		c.Set(orgKey, orgID)
		c.Next()
	}
}

func orgOf(c *gin.Context) string {
	return c.GetString(orgKey)
}

// HealthCheck liveness
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReadinessCheck 503 until every monitored component is healthy
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	if h.monitor == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	components := h.monitor.GetAllStatus()
	if !h.monitor.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}

// pageParams limit/offset query parameters, normalized
func pageParams(c *gin.Context) (int, int, error) {
	limit, offset := 0, 0
	var err error
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, apperror.BadRequest("limit must be an integer", err)
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, apperror.BadRequest("offset must be an integer", err)
		}
	}
	limit, offset = model.NormalizePage(limit, offset)
	return limit, offset, nil
}

func badBody(c *gin.Context, err error) {
	apperror.Respond(c, apperror.BadRequest("invalid request body: "+err.Error(), err))
}
