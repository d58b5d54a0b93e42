package api

import (
	"net/http"
	"slices"

	"ShopPilot/pkg/apperror"
	"ShopPilot/pkg/model"

	"github.com/gin-gonic/gin"
)

// settingsView fulfillment settings without the credentials reference
type settingsView struct {
	*model.FulfillmentConfig
	HasCredentials bool `json:"has_credentials"`
}

// settingsRequest fields absent from the body keep their saved values
type settingsRequest struct {
	*model.FulfillmentConfig
	Credentials      *model.Credentials `json:"credentials,omitempty"`
	ClearCredentials bool               `json:"clear_credentials,omitempty"`
}

// GetSettings GET /settings/fulfillment
func (h *Handlers) GetSettings(c *gin.Context) {
	cfg, err := h.settings.GetConfig(c.Request.Context(), orgOf(c))
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsView{FulfillmentConfig: cfg, HasCredentials: cfg.HasCredentials()})
}

// SaveSettings POST /settings/fulfillment; credentials are sealed and never echoed back
func (h *Handlers) SaveSettings(c *gin.Context) {
	ctx := c.Request.Context()
	orgID := orgOf(c)

	existing, err := h.settings.GetConfig(ctx, orgID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	cfg := *existing
	cfg.EligibleChannels = slices.Clone(existing.EligibleChannels)
	req := settingsRequest{FulfillmentConfig: &cfg}
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}
	cfg.OrgID = orgID
	cfg.CredentialsRef = existing.CredentialsRef

	if err := cfg.Validate(); err != nil {
		apperror.Respond(c, err)
		return
	}

	switch {
	case req.ClearCredentials:
		cfg.CredentialsRef = ""
	case req.Credentials != nil:
		if h.vault == nil {
			apperror.Respond(c, apperror.BadRequest("credentials vault is not configured", nil))
			return
		}
		ref, err := h.vault.Seal(ctx, orgID, *req.Credentials)
		if err != nil {
			apperror.Respond(c, err)
			return
		}
		cfg.CredentialsRef = ref
	}

	if err := h.settings.SaveConfig(ctx, &cfg); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsView{FulfillmentConfig: &cfg, HasCredentials: cfg.HasCredentials()})
}

// ListMappings GET /mappings
func (h *Handlers) ListMappings(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	mappings, total, err := h.settings.ListMappings(c.Request.Context(), orgOf(c), limit, offset)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": mappings, "total": total, "limit": limit, "offset": offset})
}

// CreateMapping POST /mappings
func (h *Handlers) CreateMapping(c *gin.Context) {
	var m model.SkuMapping
	if err := c.ShouldBindJSON(&m); err != nil {
		badBody(c, err)
		return
	}
	m.ID = ""
	m.OrgID = orgOf(c)
	if m.TargetMarketplace == "" {
		m.TargetMarketplace = "AMAZON"
	}
	if err := m.Validate(); err != nil {
		apperror.Respond(c, err)
		return
	}

	if err := h.settings.CreateMapping(c.Request.Context(), &m); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// GetMapping GET /mappings/:id
func (h *Handlers) GetMapping(c *gin.Context) {
	m, err := h.settings.GetMapping(c.Request.Context(), orgOf(c), c.Param("id"))
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// UpdateMapping PUT /mappings/:id
func (h *Handlers) UpdateMapping(c *gin.Context) {
	ctx := c.Request.Context()
	existing, err := h.settings.GetMapping(ctx, orgOf(c), c.Param("id"))
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	m := *existing
	if err := c.ShouldBindJSON(&m); err != nil {
		badBody(c, err)
		return
	}
	m.ID, m.OrgID, m.CreatedAt = existing.ID, existing.OrgID, existing.CreatedAt
	if err := m.Validate(); err != nil {
		apperror.Respond(c, err)
		return
	}

	if err := h.settings.UpdateMapping(ctx, &m); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteMapping DELETE /mappings/:id
func (h *Handlers) DeleteMapping(c *gin.Context) {
	if err := h.settings.DeleteMapping(c.Request.Context(), orgOf(c), c.Param("id")); err != nil {
		apperror.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
