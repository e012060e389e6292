// Package handler exposes the dispatch HTTP endpoints.
package handler

import (
	"net/http"

	"fieldservice_backend/internal/dispatch/service"
	"fieldservice_backend/internal/dispatch/transport"
	"fieldservice_backend/platform/httpkit"
	"fieldservice_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles dispatch endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new dispatch handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts dispatch routes on the protected group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/offers/:id/respond", h.RespondToOffer)
	rg.POST("/:interventionId/assign", h.ManualAssign)
	rg.GET("/:interventionId/attempts", h.ListAttempts)
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// RespondToOffer records a technician's accept or decline for an offer.
func (h *Handler) RespondToOffer(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	attemptID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req transport.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	attempt, err := h.svc.RespondToOffer(c.Request.Context(), attemptID, identity.UserID(), req.Action == "accept", req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToAttemptResponse(attempt))
}

// ManualAssign lets an operator assign a technician directly, bypassing the
// ranking and any outstanding offers.
func (h *Handler) ManualAssign(c *gin.Context) {
	interventionID, ok := parseUUIDParam(c, "interventionId")
	if !ok {
		return
	}

	var req transport.ManualAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	technicianID, err := uuid.Parse(req.TechnicianID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid technicianId", nil)
		return
	}

	attempt, err := h.svc.ManualAssign(c.Request.Context(), interventionID, technicianID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, transport.ToAttemptResponse(attempt))
}

// ListAttempts returns the offer history for an intervention.
func (h *Handler) ListAttempts(c *gin.Context) {
	interventionID, ok := parseUUIDParam(c, "interventionId")
	if !ok {
		return
	}

	items, err := h.svc.ListAttempts(c.Request.Context(), interventionID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToListAttemptsResponse(items))
}
