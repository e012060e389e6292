// Package domain holds the intervention lifecycle rules shared by the
// service and repository layers.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// Status is the canonical lifecycle state of an intervention.
type Status string

const (
	StatusNew        Status = "new"
	StatusAssigned   Status = "assigned"
	StatusOnRoute    Status = "on_route"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions is the full set of legal lifecycle edges. Cancellation is only
// reachable before work starts; in_progress must run to completion.
var transitions = map[Status][]Status{
	StatusNew:        {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusOnRoute, StatusCancelled},
	StatusOnRoute:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether the status ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// RequiresTechnician reports whether an intervention in this status must
// carry a technician reference.
func (s Status) RequiresTechnician() bool {
	switch s {
	case StatusAssigned, StatusOnRoute, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the edge from -> to is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Priority classifies how quickly an intervention must be handled. It drives
// the dispatch offer deadline and the base quote multiplier.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// ActorType identifies who initiated a lifecycle change.
type ActorType string

const (
	ActorClient     ActorType = "client"
	ActorTechnician ActorType = "technician"
	ActorOperator   ActorType = "operator"
	ActorSystem     ActorType = "system"
)

// NewTrackingCode generates the client-facing lookup code for an
// intervention. Codes are short enough to read over the phone.
func NewTrackingCode() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand is documented to never fail on supported platforms
		panic(err)
	}
	return "FS-" + strings.ToUpper(hex.EncodeToString(buf))
}
