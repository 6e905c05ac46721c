package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contractWatch/internal/action"
	"contractWatch/internal/control"
	"contractWatch/internal/registry"
)

const defaultEventCount = 100

// Defaults of the legacy /add_contract route.
var (
	legacyEvents  = []string{"Transfer", "Approval"}
	legacyActions = []string{string(action.LogEvent), string(action.CheckValue)}
)

type handlers struct {
	service *control.Service
	logger  *zap.Logger
}

type addContractRequest struct {
	ContractAddress string `json:"contract_address" binding:"required"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *handlers) addContract(c *gin.Context) {
	var req addContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	msg, err := h.service.AddOrUpdateTarget(c.Request.Context(), control.TargetRequest{
		Address: req.ContractAddress,
		Events:  legacyEvents,
		Actions: legacyActions,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"detail": "Error: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *handlers) getEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": h.service.GetRecentEvents(defaultEventCount)})
}

func (h *handlers) upsertTarget(c *gin.Context) {
	var req control.TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	msg, err := h.service.AddOrUpdateTarget(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (h *handlers) listTargets(c *gin.Context) {
	targets, err := h.service.ListTargets(c.Request.Context(), c.Query("client_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": targets})
}

func (h *handlers) getTarget(c *gin.Context) {
	target, err := h.service.GetTarget(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": target})
}

func (h *handlers) removeTarget(c *gin.Context) {
	msg, err := h.service.RemoveTarget(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (h *handlers) recentEvents(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", strconv.Itoa(defaultEventCount)))
	if err != nil || count < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "count must be a non-negative integer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.service.GetRecentEvents(count)})
}

func (h *handlers) reload(c *gin.Context) {
	result, err := h.service.Reload(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.service.Status()})
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("control request failed",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func statusFor(err error) int {
	var validation *registry.ValidationError
	var notFound *registry.NotFoundError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, control.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
