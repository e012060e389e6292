package handler

import (
	"net/http"

	"fieldservice_backend/internal/interventions/service"
	"fieldservice_backend/internal/interventions/transport"
	"fieldservice_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// PublicHandler serves the unauthenticated tracking-code lookup.
type PublicHandler struct {
	svc *service.Service
}

// NewPublicHandler creates a new public tracking handler.
func NewPublicHandler(svc *service.Service) *PublicHandler {
	return &PublicHandler{svc: svc}
}

// RegisterRoutes mounts public tracking routes (no auth middleware).
func (h *PublicHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:code", h.Track)
}

// Track returns lifecycle progress for a tracking code.
func (h *PublicHandler) Track(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	iv, err := h.svc.GetByTrackingCode(c.Request.Context(), code)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.TrackingResponse{
		TrackingCode: iv.TrackingCode,
		Status:       string(iv.Status),
		Category:     iv.Category,
		Priority:     string(iv.Priority),
		CreatedAt:    iv.CreatedAt,
		ScheduledAt:  iv.ScheduledAt,
		StartedAt:    iv.StartedAt,
		CompletedAt:  iv.CompletedAt,
	})
}
