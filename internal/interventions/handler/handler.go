// Package handler exposes the interventions HTTP endpoints.
package handler

import (
	"net/http"

	"fieldservice_backend/internal/interventions/domain"
	"fieldservice_backend/internal/interventions/repository"
	"fieldservice_backend/internal/interventions/service"
	"fieldservice_backend/internal/interventions/transport"
	"fieldservice_backend/platform/httpkit"
	"fieldservice_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles authenticated intervention endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new interventions handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts intervention routes on the protected group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/history", h.History)
	rg.POST("/:id/transition", h.RequestTransition)
	rg.POST("/:id/finalize", h.Finalize)
	rg.POST("/:id/cancel", h.Cancel)
	rg.POST("/:id/deactivate", h.Deactivate)
}

// actorFrom maps the authenticated identity to a lifecycle actor.
func actorFrom(id httpkit.Identity) service.Actor {
	actorID := id.UserID()
	actorType := domain.ActorClient
	switch {
	case id.HasRole("technician"):
		actorType = domain.ActorTechnician
	case id.HasRole("operator"), id.HasRole("admin"):
		actorType = domain.ActorOperator
	}
	return service.Actor{Type: actorType, ID: &actorID}
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid intervention id", nil)
		return uuid.Nil, false
	}
	return id, true
}

// Create registers a new intervention for the authenticated client.
func (h *Handler) Create(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.CreateInterventionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	iv, err := h.svc.Create(c.Request.Context(), service.CreateParams{
		ClientID:      identity.UserID(),
		Category:      req.Category,
		Priority:      domain.Priority(req.Priority),
		Description:   req.Description,
		Address:       req.Address,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		RequiredSkill: req.RequiredSkill,
		ScheduledAt:   req.ScheduledAt,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, transport.ToInterventionResponse(iv))
}

// List returns interventions, filterable by status.
func (h *Handler) List(c *gin.Context) {
	params := repository.ListParams{
		Status: domain.Status(c.Query("status")),
	}
	if clientID, err := uuid.Parse(c.Query("clientId")); err == nil {
		params.ClientID = clientID
	}
	if technicianID, err := uuid.Parse(c.Query("technicianId")); err == nil {
		params.TechnicianID = technicianID
	}
	params.ManualDispatchOnly = c.Query("manualDispatch") == "true"

	items, err := h.svc.List(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ListInterventionsResponse{Items: make([]transport.InterventionResponse, 0, len(items))}
	for _, iv := range items {
		resp.Items = append(resp.Items, transport.ToInterventionResponse(iv))
	}

	httpkit.OK(c, resp)
}

// Get returns a single intervention.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	iv, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToInterventionResponse(iv))
}

// History returns the immutable transition log.
func (h *Handler) History(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	entries, err := h.svc.History(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.HistoryResponse{Items: make([]transport.HistoryEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Items = append(resp.Items, transport.HistoryEntryResponse{
			OldStatus: string(e.OldStatus),
			NewStatus: string(e.NewStatus),
			ActorType: string(e.ActorType),
			ActorID:   e.ActorID,
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		})
	}

	httpkit.OK(c, resp)
}

// RequestTransition applies one lifecycle edge.
func (h *Handler) RequestTransition(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req transport.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	iv, err := h.svc.RequestTransition(c.Request.Context(), id,
		domain.Status(req.TargetStatus), actorFrom(identity), req.Note)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToInterventionResponse(iv))
}

// Finalize captures the current total and completes the intervention.
func (h *Handler) Finalize(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	iv, err := h.svc.Finalize(c.Request.Context(), id, actorFrom(identity))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToInterventionResponse(iv))
}

// Cancel cancels an intervention with its compensating payment action.
func (h *Handler) Cancel(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req transport.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Cancellation without a reason is allowed.
		req = transport.CancelRequest{}
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	iv, err := h.svc.Cancel(c.Request.Context(), id, req.Reason, actorFrom(identity))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToInterventionResponse(iv))
}

// Deactivate soft-deactivates a terminal intervention.
func (h *Handler) Deactivate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.svc.Deactivate(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "deactivated"})
}
