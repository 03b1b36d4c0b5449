package models

import "time"

// SessionStatus is the state of the scan session machine.
type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusSubmitting SessionStatus = "submitting"
	StatusResult     SessionStatus = "result"
	StatusCooldown   SessionStatus = "cooldown"
)

// MessageCategory tells the operator screen how to style the message.
type MessageCategory string

const (
	CategoryNeutral MessageCategory = ""
	CategorySuccess MessageCategory = "success"
	CategoryError   MessageCategory = "error"
)

// SessionSnapshot is a copy of the scan session taken at one instant.
type SessionSnapshot struct {
	Status        SessionStatus   `json:"status"`
	Payload       string          `json:"payload,omitempty"`
	LastPayload   string          `json:"last_payload,omitempty"`
	LastPayloadAt time.Time       `json:"last_payload_at,omitempty"`
	Outcome       *CheckInOutcome `json:"outcome,omitempty"`
	Message       string          `json:"message,omitempty"`
	Category      MessageCategory `json:"category"`
	Closed        bool            `json:"closed,omitempty"`
}
