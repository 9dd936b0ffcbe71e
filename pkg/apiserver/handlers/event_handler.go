package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/lifecycle"
	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

type EventHandler struct {
	service *lifecycle.Service
	events  store.EventStore
	logger  *zap.Logger
}

func NewEventHandler(service *lifecycle.Service, events store.EventStore, logger *zap.Logger) *EventHandler {
	return &EventHandler{service: service, events: events, logger: logger}
}

// ActionEvents returns the state transitions of one action, oldest first.
func (h *EventHandler) ActionEvents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action id"})
		return
	}
	action, err := h.service.GetAction(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !canAccess(c, action.OrganizationID) {
		return
	}

	events, err := h.events.ListEvents(c.Request.Context(), id, parseLimit(c.Query("limit"), 500))
	if err != nil {
		h.logger.Error("failed to list action events", zap.String("action_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}
	if events == nil {
		events = []model.ActionEvent{}
	}
	c.JSON(http.StatusOK, events)
}
