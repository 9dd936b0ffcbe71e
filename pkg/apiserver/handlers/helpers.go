package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helios/lifecycle/pkg/apiserver/middleware"
	"github.com/helios/lifecycle/pkg/lifecycle"
)

func parseLimit(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseOffset(value string) int {
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

func parseTime(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalUUID(value string) (*uuid.UUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// canAccess aborts with 404 when the caller's token is scoped to another
// organization, so foreign action ids are indistinguishable from missing ones.
func canAccess(c *gin.Context, organizationID uuid.UUID) bool {
	claims := middleware.Claims(c)
	if claims != nil && claims.CanAccess(organizationID) {
		return true
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "action not found"})
	return false
}

// respondError maps lifecycle error kinds to HTTP statuses.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case lifecycle.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": lifecycle.Message(err)})
	case lifecycle.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": lifecycle.Message(err)})
	case lifecycle.IsInvalidState(err):
		c.JSON(http.StatusConflict, gin.H{"error": lifecycle.Message(err)})
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
