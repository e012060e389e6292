// Package interventions provides the intervention lifecycle bounded context.
package interventions

import (
	"fieldservice_backend/internal/events"
	apphttp "fieldservice_backend/internal/http"
	"fieldservice_backend/internal/interventions/handler"
	"fieldservice_backend/internal/interventions/repository"
	"fieldservice_backend/internal/interventions/service"
	"fieldservice_backend/platform/logger"
	"fieldservice_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the interventions bounded context implementing http.Module.
type Module struct {
	handler       *handler.Handler
	publicHandler *handler.PublicHandler
	service       *service.Service
}

// NewModule creates and initializes the interventions module. The dispatch
// coordinator is attached later through Service().SetDispatch.
func NewModule(
	pool *pgxpool.Pool,
	quotes service.QuoteLedger,
	payments service.PaymentCoordinator,
	eventBus events.Bus,
	log *logger.Logger,
	val *validator.Validator,
) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, quotes, payments, eventBus, log)
	h := handler.New(svc, val)
	ph := handler.NewPublicHandler(svc)

	return &Module{handler: h, publicHandler: ph, service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "interventions"
}

// Service returns the service layer for cross-module wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts intervention routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/interventions"))

	// Public tracking-code lookup (no auth middleware)
	m.publicHandler.RegisterRoutes(ctx.Public.Group("/track"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
