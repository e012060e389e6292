// Package handler exposes the payment workflow HTTP endpoints.
package handler

import (
	"net/http"

	"fieldservice_backend/internal/payments/service"
	"fieldservice_backend/internal/payments/transport"
	"fieldservice_backend/platform/httpkit"
	"fieldservice_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles payment endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new payments handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts payment routes on the protected group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/:interventionId/authorize", h.Authorize)
	rg.GET("/:interventionId", h.ListAuthorizations)
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// Authorize places a hold for the intervention. Also serves the retry after
// a failed attempt once the client fixed their payment method.
func (h *Handler) Authorize(c *gin.Context) {
	interventionID, ok := parseUUIDParam(c, "interventionId")
	if !ok {
		return
	}

	var req transport.AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	auth, err := h.svc.Authorize(c.Request.Context(), interventionID, req.AmountCents)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, transport.ToAuthorizationResponse(auth))
}

// ListAuthorizations returns the authorization history for an intervention.
func (h *Handler) ListAuthorizations(c *gin.Context) {
	interventionID, ok := parseUUIDParam(c, "interventionId")
	if !ok {
		return
	}

	items, err := h.svc.ListAuthorizations(c.Request.Context(), interventionID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToListAuthorizationsResponse(items))
}
