package service

import (
	"strings"

	"fieldservice_backend/internal/interventions/domain"
)

// Base call-out prices per service category, in cents. Unknown categories
// fall back to the default rate.
var basePriceCents = map[string]int64{
	"locksmith":  8000,
	"plumbing":   9500,
	"electrical": 9000,
	"heating":    11000,
	"glazing":    7000,
	"appliance":  8500,
}

const defaultBasePriceCents = 8000

// Priority multipliers in percent. Integer math keeps cent amounts exact.
var priorityMultiplierPct = map[domain.Priority]int64{
	domain.PriorityUrgent: 150,
	domain.PriorityHigh:   125,
	domain.PriorityNormal: 100,
	domain.PriorityLow:    90,
}

// BaseQuoteAmount computes the immutable base line amount seeded at
// intervention creation: category base price times the priority multiplier.
func BaseQuoteAmount(category string, priority domain.Priority) int64 {
	base, ok := basePriceCents[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		base = defaultBasePriceCents
	}

	pct, ok := priorityMultiplierPct[priority]
	if !ok {
		pct = 100
	}

	return base * pct / 100
}
