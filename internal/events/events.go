package events

import "time"

type AssignmentEvent struct {
	AssignmentID   string     `json:"assignment_id"`
	ServiceOrderID string     `json:"service_order_id"`
	ProviderID     string     `json:"provider_id"`
	TeamID         string     `json:"team_id,omitempty"`
	Mode           string     `json:"mode"`
	Status         string     `json:"status"`
	OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

type OrderRankedEvent struct {
	ServiceOrderID string    `json:"service_order_id"`
	Candidates     int       `json:"candidates"`
	TopProviderID  string    `json:"top_provider_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type OrderUnmatchedEvent struct {
	ServiceOrderID string    `json:"service_order_id"`
	HaltedAtStage  string    `json:"halted_at_stage"`
	Excluded       int       `json:"excluded"`
	Timestamp      time.Time `json:"timestamp"`
}
