package models

// OutcomeKind classifies the backend verdict for one submission.
type OutcomeKind string

const (
	OutcomeRegistered        OutcomeKind = "registered"
	OutcomeAlreadyRegistered OutcomeKind = "already_registered"
	OutcomeRejected          OutcomeKind = "rejected"
	OutcomeTransportError    OutcomeKind = "transport_error"
)

// CheckInOutcome is the immutable result of one check-in call.
type CheckInOutcome struct {
	Kind    OutcomeKind `json:"kind"`
	Message string      `json:"message,omitempty"`
}

// Category maps the outcome onto the operator message category.
func (o CheckInOutcome) Category() MessageCategory {
	switch o.Kind {
	case OutcomeRegistered, OutcomeAlreadyRegistered:
		return CategorySuccess
	case OutcomeRejected, OutcomeTransportError:
		return CategoryError
	default:
		return CategoryNeutral
	}
}

// Success reports whether the backend accepted the check-in.
func (o CheckInOutcome) Success() bool {
	return o.Kind == OutcomeRegistered || o.Kind == OutcomeAlreadyRegistered
}
