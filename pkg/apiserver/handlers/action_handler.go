package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/apiserver/middleware"
	"github.com/helios/lifecycle/pkg/lifecycle"
	"github.com/helios/lifecycle/pkg/model"
	"github.com/helios/lifecycle/pkg/store"
)

type ActionHandler struct {
	service *lifecycle.Service
	logger  *zap.Logger
}

func NewActionHandler(service *lifecycle.Service, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{service: service, logger: logger}
}

type updateActionRequest struct {
	ScheduledFor       *time.Time  `json:"scheduled_for"`
	ActionConfig       model.JSONB `json:"action_config"`
	ConfigOverrides    model.JSONB `json:"config_overrides"`
	TargetEmail        *string     `json:"target_email"`
	TargetFirstName    *string     `json:"target_first_name"`
	TargetLastName     *string     `json:"target_last_name"`
	IsRecurring        *bool       `json:"is_recurring"`
	RecurrenceInterval *string     `json:"recurrence_interval"`
	RecurrenceUntil    *time.Time  `json:"recurrence_until"`
	RequiresApproval   *bool       `json:"requires_approval"`
	MaxRetries         *int        `json:"max_retries"`
	DependsOnActionID  *uuid.UUID  `json:"depends_on_action_id"`

	ClearRecurrenceUntil   bool `json:"clear_recurrence_until"`
	ClearDependsOnActionID bool `json:"clear_depends_on_action_id"`
}

func (r updateActionRequest) patch() store.ActionPatch {
	return store.ActionPatch{
		ScheduledFor:       r.ScheduledFor,
		ActionConfig:       r.ActionConfig,
		ConfigOverrides:    r.ConfigOverrides,
		TargetEmail:        r.TargetEmail,
		TargetFirstName:    r.TargetFirstName,
		TargetLastName:     r.TargetLastName,
		IsRecurring:        r.IsRecurring,
		RecurrenceInterval: r.RecurrenceInterval,
		RecurrenceUntil:    r.RecurrenceUntil,
		RequiresApproval:   r.RequiresApproval,
		MaxRetries:         r.MaxRetries,
		DependsOnActionID:  r.DependsOnActionID,

		ClearRecurrenceUntil:   r.ClearRecurrenceUntil,
		ClearDependsOnActionID: r.ClearDependsOnActionID,
	}
}

type decisionRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func (h *ActionHandler) Schedule(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("orgId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization id"})
		return
	}
	if claims := middleware.Claims(c); claims == nil || !claims.CanAccess(orgID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "organization not accessible"})
		return
	}

	var req lifecycle.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	action, err := h.service.ScheduleAction(c.Request.Context(), orgID, req, middleware.Actor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, action)
}

func (h *ActionHandler) List(c *gin.Context) {
	filter := store.ActionFilter{
		Limit:  parseLimit(c.Query("limit"), 50),
		Offset: parseOffset(c.Query("offset")),
	}

	orgID, err := parseOptionalUUID(c.Query("organization_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization_id"})
		return
	}
	scoped, ok := h.scopeOrganization(c, orgID)
	if !ok {
		return
	}
	filter.OrganizationID = scoped

	if filter.UserID, err = parseOptionalUUID(c.Query("user_id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	for _, value := range splitList(c.Query("status")) {
		status := model.ActionStatus(value)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status " + value})
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	for _, value := range splitList(c.Query("action_type")) {
		actionType := model.ActionType(value)
		if !actionType.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action_type " + value})
			return
		}
		filter.ActionTypes = append(filter.ActionTypes, actionType)
	}

	if filter.ScheduledFrom, err = parseTime(c.Query("from")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	if filter.ScheduledTo, err = parseTime(c.Query("to")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}

	actions, total, err := h.service.GetActions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if actions == nil {
		actions = []model.ScheduledAction{}
	}
	c.JSON(http.StatusOK, gin.H{
		"actions": actions,
		"total":   total,
	})
}

func (h *ActionHandler) ListPending(c *gin.Context) {
	orgID, err := parseOptionalUUID(c.Query("organization_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization_id"})
		return
	}
	scoped, ok := h.scopeOrganization(c, orgID)
	if !ok {
		return
	}

	actions, err := h.service.GetPendingActions(c.Request.Context(), scoped)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if actions == nil {
		actions = []model.ScheduledAction{}
	}
	c.JSON(http.StatusOK, actions)
}

func (h *ActionHandler) Get(c *gin.Context) {
	action, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, action)
}

func (h *ActionHandler) Update(c *gin.Context) {
	action, ok := h.load(c)
	if !ok {
		return
	}

	var req updateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	updated, err := h.service.UpdateAction(c.Request.Context(), action.ID, req.patch())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *ActionHandler) Cancel(c *gin.Context) {
	action, ok := h.load(c)
	if !ok {
		return
	}
	var req decisionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	updated, err := h.service.CancelAction(c.Request.Context(), action.ID, middleware.Actor(c), req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *ActionHandler) Approve(c *gin.Context) {
	action, ok := h.load(c)
	if !ok {
		return
	}
	var req decisionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	updated, err := h.service.ApproveAction(c.Request.Context(), action.ID, middleware.Actor(c), req.Notes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *ActionHandler) Reject(c *gin.Context) {
	action, ok := h.load(c)
	if !ok {
		return
	}
	var req decisionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	updated, err := h.service.RejectAction(c.Request.Context(), action.ID, middleware.Actor(c), req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *ActionHandler) Tick(c *gin.Context) {
	result, err := h.service.ProcessPendingActions(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ActionHandler) load(c *gin.Context) (*model.ScheduledAction, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action id"})
		return nil, false
	}
	action, err := h.service.GetAction(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return nil, false
	}
	if !canAccess(c, action.OrganizationID) {
		return nil, false
	}
	return action, true
}

// scopeOrganization narrows listing to the token's organization. Asking for
// another organization is forbidden.
func (h *ActionHandler) scopeOrganization(c *gin.Context, requested *uuid.UUID) (*uuid.UUID, bool) {
	claims := middleware.Claims(c)
	if claims == nil || claims.OrganizationID == "" {
		return requested, true
	}
	own, err := uuid.Parse(claims.OrganizationID)
	if err != nil || (requested != nil && *requested != own) {
		c.JSON(http.StatusForbidden, gin.H{"error": "organization not accessible"})
		return nil, false
	}
	return &own, true
}

func bindOptionalJSON(c *gin.Context, target interface{}) bool {
	if c.Request.ContentLength == 0 || !strings.Contains(c.ContentType(), "json") {
		return true
	}
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return false
	}
	return true
}
