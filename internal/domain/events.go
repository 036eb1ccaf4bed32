package domain

import "time"

// EventKind is the normalised type of a verified provider callback.
type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment_intent.succeeded"
	EventPaymentFailed    EventKind = "payment_intent.payment_failed"
)

// TargetStatus maps a recognised event kind to the terminal status it requests.
func (k EventKind) TargetStatus() (PaymentStatus, bool) {
	switch k {
	case EventPaymentSucceeded:
		return StatusSucceeded, true
	case EventPaymentFailed:
		return StatusFailed, true
	default:
		return "", false
	}
}

// ProviderEvent is a callback that has passed signature verification.
type ProviderEvent struct {
	ID             string
	Kind           EventKind
	IntentID       string
	UserID         string // metadata user_id echoed back by the provider
	FailureMessage string
	CreatedAt      time.Time
}

// ProviderIntent is the provider's view of a payment intent.
type ProviderIntent struct {
	ID             string
	ClientSecret   string
	Status         string
	FailureMessage string
}

// IntentRequest carries everything the provider needs to create an intent.
type IntentRequest struct {
	AmountMinor       int64
	Currency          string
	Description       string
	PaymentMethodType string
	UserID            string
}

// PaymentStatusEvent is the internal event published when a payment reaches a
// terminal state.
type PaymentStatusEvent struct {
	EventID          string        `json:"event_id"`
	PaymentID        int64         `json:"payment_id"`
	UserID           string        `json:"user_id"`
	ProviderIntentID string        `json:"provider_intent_id"`
	Status           PaymentStatus `json:"status"`
	AmountMinor      int64         `json:"amount_minor"`
	Currency         string        `json:"currency"`
	Reason           string        `json:"reason,omitempty"`
	Source           string        `json:"source"`
	OccurredAt       time.Time     `json:"occurred_at"`
}
