// Package handler exposes the quote ledger HTTP endpoints.
package handler

import (
	"net/http"

	"fieldservice_backend/internal/quotes/service"
	"fieldservice_backend/internal/quotes/transport"
	"fieldservice_backend/platform/httpkit"
	"fieldservice_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles quote ledger endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new quotes handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts quote routes on the protected group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:interventionId", h.Ledger)
	rg.POST("/:interventionId/modifications", h.ProposeModification)
	rg.POST("/modifications/:id/approve", h.ApproveModification)
	rg.POST("/modifications/:id/decline", h.DeclineModification)
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// Ledger returns the quote state for an intervention.
func (h *Handler) Ledger(c *gin.Context) {
	interventionID, ok := parseUUIDParam(c, "interventionId")
	if !ok {
		return
	}

	view, err := h.svc.Ledger(c.Request.Context(), interventionID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToLedgerResponse(view))
}

// ProposeModification records a supplemental work proposal by the assigned
// technician.
func (h *Handler) ProposeModification(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	interventionID, ok := parseUUIDParam(c, "interventionId")
	if !ok {
		return
	}

	var req transport.ProposeModificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	mod, err := h.svc.ProposeModification(c.Request.Context(), interventionID, identity.UserID(), req.Label, req.AmountCents)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, transport.ToModificationResponse(mod))
}

// ApproveModification resolves a pending modification in favor.
func (h *Handler) ApproveModification(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	mod, err := h.svc.ApproveModification(c.Request.Context(), id, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToModificationResponse(mod))
}

// DeclineModification resolves a pending modification against the proposal.
func (h *Handler) DeclineModification(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	mod, err := h.svc.DeclineModification(c.Request.Context(), id, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToModificationResponse(mod))
}
