package api

import (
	"net/http"

	"ShopPilot/pkg/apperror"
	"ShopPilot/pkg/model"

	"github.com/gin-gonic/gin"
)

// lineItemRequest manual trigger and preview body
type lineItemRequest struct {
	OrderID    string `json:"order_id" binding:"required"`
	LineItemID string `json:"line_item_id" binding:"required"`
}

// controlRequest operator action on a job
type controlRequest struct {
	Action string `json:"action" binding:"required,oneof=approve retry cancel"`
}

// ListJobs GET /jobs?status=&limit=&offset=
func (h *Handlers) ListJobs(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	filter := model.JobFilter{Status: model.JobStatus(c.Query("status")), Limit: limit, Offset: offset}
	if filter.Status != "" && !filter.Status.IsValid() {
		apperror.Respond(c, apperror.BadRequest("unknown status "+string(filter.Status), nil))
		return
	}

	jobs, total, err := h.jobs.List(c.Request.Context(), orgOf(c), filter)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": total, "limit": limit, "offset": offset})
}

// GetJob GET /jobs/:id
func (h *Handlers) GetJob(c *gin.Context) {
	view, err := h.jobs.Get(c.Request.Context(), orgOf(c), c.Param("id"))
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SubmitJob POST /jobs; 201 with the job, or 200 with the eligibility verdict when none was created
func (h *Handlers) SubmitJob(c *gin.Context) {
	var req lineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	res, err := h.jobs.Submit(c.Request.Context(), orgOf(c), req.OrderID, req.LineItemID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	status := http.StatusOK
	if res.Job != nil {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

// PreviewJob POST /jobs/preview
func (h *Handlers) PreviewJob(c *gin.Context) {
	var req lineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	res, err := h.jobs.Preview(c.Request.Context(), orgOf(c), req.OrderID, req.LineItemID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ControlJob PATCH /jobs/:id {action: approve|retry|cancel}
func (h *Handlers) ControlJob(c *gin.Context) {
	var req controlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	job, err := h.jobs.Control(c.Request.Context(), orgOf(c), c.Param("id"), req.Action)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
