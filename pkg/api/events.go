package api

import (
	"net/http"
	"time"

	"ShopPilot/pkg/apperror"
	"ShopPilot/pkg/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IngestEvent POST /events. Evaluated synchronously and answered with the executions,
// or queued on the bus with ?async=true.
func (h *Handlers) IngestEvent(c *gin.Context) {
	var ev model.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		badBody(c, err)
		return
	}
	ev.OrgID = orgOf(c)
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		apperror.Respond(c, apperror.BadRequest(err.Error(), err))
		return
	}

	if c.Query("async") == "true" {
		if h.bus == nil {
			apperror.Respond(c, apperror.BadRequest("asynchronous ingestion is not enabled", nil))
			return
		}
		if err := h.bus.PublishEvent(c.Request.Context(), ev); err != nil {
			apperror.Respond(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"event_id": ev.ID})
		return
	}

	execs, err := h.engine.OnEvent(c.Request.Context(), ev)
	if err != nil {
		apperror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": ev.ID, "executions": execs})
}
