package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/apiserver/middleware"
	"github.com/helios/lifecycle/pkg/lifecycle"
	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

type LogHandler struct {
	service *lifecycle.Service
	logs    store.LogStore
	logger  *zap.Logger
}

func NewLogHandler(service *lifecycle.Service, logs store.LogStore, logger *zap.Logger) *LogHandler {
	return &LogHandler{service: service, logs: logs, logger: logger}
}

// ActionLogs returns the step history of one action in execution order.
func (h *LogHandler) ActionLogs(c *gin.Context) {
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

	logs, err := h.logs.ListByAction(c.Request.Context(), id, parseLimit(c.Query("limit"), 500))
	if err != nil {
		h.logger.Error("failed to list action logs", zap.String("action_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query logs"})
		return
	}
	if logs == nil {
		logs = []model.LifecycleLogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *LogHandler) OrganizationLogs(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("orgId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization id"})
		return
	}
	if claims := middleware.Claims(c); claims == nil || !claims.CanAccess(orgID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "organization not accessible"})
		return
	}

	query := store.LogQuery{
		OrganizationID: orgID,
		StepName:       strings.TrimSpace(c.Query("step")),
		Limit:          parseLimit(c.Query("limit"), 100),
	}

	if query.ActionID, err = parseOptionalUUID(c.Query("action_id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action_id"})
		return
	}

	if outcome := strings.TrimSpace(c.Query("outcome")); outcome != "" {
		switch model.StepOutcome(outcome) {
		case model.StepSuccess, model.StepFailed, model.StepSkipped:
			query.Outcome = model.StepOutcome(outcome)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid outcome"})
			return
		}
	}

	if query.Since, err = parseTime(c.Query("since")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
		return
	}
	if query.Until, err = parseTime(c.Query("until")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid until"})
		return
	}

	logs, err := h.logs.Query(c.Request.Context(), query)
	if err != nil {
		h.logger.Error("failed to query logs", zap.String("organization_id", orgID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query logs"})
		return
	}
	if logs == nil {
		logs = []model.LifecycleLogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}
