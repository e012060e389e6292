package service

import (
	"testing"

	"fieldservice_backend/internal/interventions/domain"
)

func TestBaseQuoteAmount(t *testing.T) {
	cases := []struct {
		name     string
		category string
		priority domain.Priority
		want     int64
	}{
		{"locksmith normal", "locksmith", domain.PriorityNormal, 8000},
		{"locksmith urgent", "locksmith", domain.PriorityUrgent, 12000},
		{"plumbing high", "plumbing", domain.PriorityHigh, 11875},
		{"heating low", "heating", domain.PriorityLow, 9900},
		{"unknown category falls back", "chimney", domain.PriorityNormal, 8000},
		{"category is case insensitive", " Plumbing ", domain.PriorityNormal, 9500},
		{"unknown priority uses base", "electrical", domain.Priority("weird"), 9000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BaseQuoteAmount(tc.category, tc.priority); got != tc.want {
				t.Fatalf("BaseQuoteAmount(%q, %q) = %d, want %d", tc.category, tc.priority, got, tc.want)
			}
		})
	}
}
