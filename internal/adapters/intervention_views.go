// Package adapters contains the anti-corruption layer between domain
// modules. Each adapter translates the interventions service into the
// narrow view interface a consuming module defines for itself, so quotes,
// payments and dispatch never import the interventions packages directly.
package adapters

import (
	"context"

	ivservice "fieldservice_backend/internal/interventions/service"

	dispatchservice "fieldservice_backend/internal/dispatch/service"
	paymentservice "fieldservice_backend/internal/payments/service"
	quoteservice "fieldservice_backend/internal/quotes/service"

	"github.com/google/uuid"
)

// QuoteInterventionReader adapts the interventions service for the quotes
// domain. It implements quotes/service.InterventionReader.
type QuoteInterventionReader struct {
	interventions *ivservice.Service
}

// NewQuoteInterventionReader creates the adapter the quote ledger uses to
// gate modifications on intervention state.
func NewQuoteInterventionReader(interventions *ivservice.Service) *QuoteInterventionReader {
	return &QuoteInterventionReader{interventions: interventions}
}

// View returns the quote-facing projection of one intervention.
func (a *QuoteInterventionReader) View(ctx context.Context, interventionID uuid.UUID) (quoteservice.InterventionView, error) {
	iv, err := a.interventions.Get(ctx, interventionID)
	if err != nil {
		return quoteservice.InterventionView{}, err
	}

	return quoteservice.InterventionView{
		ID:           iv.ID,
		TrackingCode: iv.TrackingCode,
		ClientID:     iv.ClientID,
		TechnicianID: iv.TechnicianID,
		Status:       iv.Status,
	}, nil
}

// PaymentInterventionReader adapts the interventions service for the
// payments domain. It implements payments/service.InterventionReader.
type PaymentInterventionReader struct {
	interventions *ivservice.Service
}

// NewPaymentInterventionReader creates the adapter the payment workflow
// uses to resolve the client and the estimate behind a hold.
func NewPaymentInterventionReader(interventions *ivservice.Service) *PaymentInterventionReader {
	return &PaymentInterventionReader{interventions: interventions}
}

// PaymentView returns the payment-facing projection of one intervention.
func (a *PaymentInterventionReader) PaymentView(ctx context.Context, interventionID uuid.UUID) (paymentservice.InterventionView, error) {
	iv, err := a.interventions.Get(ctx, interventionID)
	if err != nil {
		return paymentservice.InterventionView{}, err
	}

	return paymentservice.InterventionView{
		ID:                  iv.ID,
		ClientID:            iv.ClientID,
		Status:              iv.Status,
		EstimatedPriceCents: iv.EstimatedPriceCents,
	}, nil
}

// DispatchInterventionSource adapts the interventions service for the
// dispatch coordinator. It implements dispatch/service.InterventionSource.
type DispatchInterventionSource struct {
	interventions *ivservice.Service
}

// NewDispatchInterventionSource creates the adapter the dispatch
// coordinator uses to read interventions and report assignment outcomes.
func NewDispatchInterventionSource(interventions *ivservice.Service) *DispatchInterventionSource {
	return &DispatchInterventionSource{interventions: interventions}
}

// DispatchView returns the dispatch-facing projection of one intervention.
func (a *DispatchInterventionSource) DispatchView(ctx context.Context, interventionID uuid.UUID) (dispatchservice.InterventionView, error) {
	iv, err := a.interventions.Get(ctx, interventionID)
	if err != nil {
		return dispatchservice.InterventionView{}, err
	}

	return dispatchservice.InterventionView{
		ID:            iv.ID,
		TrackingCode:  iv.TrackingCode,
		ClientID:      iv.ClientID,
		Status:        iv.Status,
		Category:      iv.Category,
		Priority:      iv.Priority,
		Address:       iv.Address,
		RequiredSkill: iv.RequiredSkill,
		Latitude:      iv.Latitude,
		Longitude:     iv.Longitude,
	}, nil
}

// AssignFromDispatch records the accepting technician on the intervention.
func (a *DispatchInterventionSource) AssignFromDispatch(ctx context.Context, interventionID, technicianID uuid.UUID) error {
	return a.interventions.AssignFromDispatch(ctx, interventionID, technicianID)
}

// FlagManualDispatch marks the intervention for operator handling after
// automated dispatch ran out of candidates.
func (a *DispatchInterventionSource) FlagManualDispatch(ctx context.Context, interventionID uuid.UUID) error {
	return a.interventions.FlagManualDispatch(ctx, interventionID)
}

// Compile-time interface checks.
var (
	_ quoteservice.InterventionReader    = (*QuoteInterventionReader)(nil)
	_ paymentservice.InterventionReader  = (*PaymentInterventionReader)(nil)
	_ dispatchservice.InterventionSource = (*DispatchInterventionSource)(nil)
)
