// Package dispatch provides the technician dispatch bounded context.
package dispatch

import (
	"context"

	"fieldservice_backend/internal/dispatch/handler"
	"fieldservice_backend/internal/dispatch/repository"
	"fieldservice_backend/internal/dispatch/service"
	"fieldservice_backend/internal/events"
	apphttp "fieldservice_backend/internal/http"
	"fieldservice_backend/platform/config"
	"fieldservice_backend/platform/logger"
	"fieldservice_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the dispatch bounded context implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the dispatch module. The intervention
// source is attached later through Service().SetInterventionSource.
func NewModule(pool *pgxpool.Pool, cfg config.DispatchConfig, weights config.RankingWeights, eventBus events.Bus, log *logger.Logger, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, cfg, weights, eventBus, log)
	h := handler.New(svc, val)

	m := &Module{handler: h, service: svc}
	m.subscribe(eventBus)

	return m
}

// subscribe releases a technician's workload slot when their intervention
// reaches a terminal status.
func (m *Module) subscribe(bus events.Bus) {
	bus.Subscribe("interventions.completed", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.InterventionCompleted); ok {
			m.service.HandleWorkloadRelease(ctx, ev.TechnicianID)
		}
		return nil
	}))

	bus.Subscribe("interventions.cancelled", events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.InterventionCancelled); ok && ev.TechnicianID != nil {
			m.service.HandleWorkloadRelease(ctx, *ev.TechnicianID)
		}
		return nil
	}))
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "dispatch"
}

// Service returns the service layer for cross-module wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts dispatch routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/dispatch"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
