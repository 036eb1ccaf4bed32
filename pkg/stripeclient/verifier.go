package stripeclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
)

// Verifier checks the Stripe-Signature header of webhook deliveries and decodes
// payment intent events.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier creates a verifier for the endpoint's signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// paymentIntentObject is the part of a payment intent webhook object the service reads.
type paymentIntentObject struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// VerifyEvent validates the signature over the raw body and returns the decoded event.
// Only the signature, timestamp tolerance and JSON envelope are enforced here; an
// event whose object cannot be read is returned with an empty IntentID.
func (v *Verifier) VerifyEvent(payload []byte, signatureHeader string) (*domain.ProviderEvent, error) {
	if v.secret == "" {
		return nil, errors.New("webhook signing secret is not configured")
	}
	if signatureHeader == "" {
		return nil, errors.New("missing Stripe-Signature header")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("verify stripe event: %w", err)
	}

	out := &domain.ProviderEvent{
		ID:   event.ID,
		Kind: domain.EventKind(event.Type),
	}
	if event.Created > 0 {
		out.CreatedAt = time.Unix(event.Created, 0).UTC()
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	var obj paymentIntentObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return out, nil
	}
	if obj.Object != "" && obj.Object != "payment_intent" {
		return out, nil
	}
	out.IntentID = obj.ID
	out.UserID = obj.Metadata[MetadataUserID]
	if obj.LastPaymentError != nil {
		out.FailureMessage = obj.LastPaymentError.Message
		if out.FailureMessage == "" {
			out.FailureMessage = obj.LastPaymentError.Code
		}
	}
	return out, nil
}
