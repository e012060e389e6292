// Package payments provides the two-phase payment bounded context.
package payments

import (
	"fieldservice_backend/internal/events"
	apphttp "fieldservice_backend/internal/http"
	"fieldservice_backend/internal/payments/gateway"
	"fieldservice_backend/internal/payments/handler"
	"fieldservice_backend/internal/payments/repository"
	"fieldservice_backend/internal/payments/service"
	"fieldservice_backend/platform/config"
	"fieldservice_backend/platform/logger"
	"fieldservice_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the payments bounded context implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the payments module. The intervention
// reader is attached later through Service().SetInterventionReader.
func NewModule(pool *pgxpool.Pool, cfg config.PaymentConfig, eventBus events.Bus, log *logger.Logger, val *validator.Validator) *Module {
	repo := repository.New(pool)
	gw := gateway.NewHTTPGateway(cfg, log)
	svc := service.New(repo, gw, cfg, eventBus, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "payments"
}

// Service returns the service layer for cross-module wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts payment routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/payments"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
