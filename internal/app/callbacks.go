package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
	"github.com/Yousefjoo17/stripe-backend/internal/store"
)

// CallbackOutcome describes what reconciling one verified event did to the ledger.
type CallbackOutcome string

const (
	OutcomeApplied       CallbackOutcome = "applied"
	OutcomeDuplicate     CallbackOutcome = "duplicate"
	OutcomeConflict      CallbackOutcome = "conflict"
	OutcomeUnknownIntent CallbackOutcome = "unknown_intent"
	OutcomeIgnored       CallbackOutcome = "ignored"
	OutcomeMalformed     CallbackOutcome = "malformed"
)

const (
	sourceWebhook = "webhook"
	sourceSweeper = "sweeper"

	publishTimeout = 5 * time.Second
)

// CallbackResult is returned for every verified event; all of them are acknowledged.
type CallbackResult struct {
	Outcome   CallbackOutcome
	EventID   string
	EventKind domain.EventKind
	IntentID  string
	Payment   *domain.Payment
}

// HandleCallback authenticates a raw provider callback and applies the payment
// outcome it reports. An error is returned only when the signature is rejected
// (ErrInvalidSignature) or the ledger could not be written, in which case the
// provider should redeliver.
func (s *Service) HandleCallback(ctx context.Context, payload []byte, signatureHeader string) (*CallbackResult, error) {
	event, err := s.verifier.VerifyEvent(payload, signatureHeader)
	if err != nil {
		s.metrics.WebhookEvents.WithLabelValues("rejected").Inc()
		log.Printf("level=warn component=callback_reconciler msg=\"webhook signature rejected\" err=%v", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := &CallbackResult{EventID: event.ID, EventKind: event.Kind, IntentID: event.IntentID}

	target, ok := event.Kind.TargetStatus()
	if !ok {
		result.Outcome = OutcomeIgnored
		s.metrics.WebhookEvents.WithLabelValues(string(OutcomeIgnored)).Inc()
		log.Printf("level=info component=callback_reconciler msg=\"unhandled event type acknowledged\" event_id=%s type=%s", event.ID, event.Kind)
		return result, nil
	}

	if event.IntentID == "" {
		result.Outcome = OutcomeMalformed
		s.metrics.WebhookEvents.WithLabelValues(string(OutcomeMalformed)).Inc()
		log.Printf("level=warn component=callback_reconciler msg=\"verified event carries no payment intent id\" event_id=%s type=%s", event.ID, event.Kind)
		return result, nil
	}

	outcome, payment, err := s.applyTransition(ctx, event.IntentID, target, event.FailureMessage, event.UserID, sourceWebhook)
	if err != nil {
		s.metrics.WebhookEvents.WithLabelValues("ledger_error").Inc()
		log.Printf("level=error component=callback_reconciler msg=\"ledger update failed; provider will redeliver\" event_id=%s intent_id=%s err=%v", event.ID, event.IntentID, err)
		return nil, err
	}

	s.metrics.WebhookEvents.WithLabelValues(string(outcome)).Inc()
	result.Outcome = outcome
	result.Payment = payment
	return result, nil
}

// applyTransition moves the payment for intentID into target. Every path other than
// a ledger failure resolves to an outcome.
func (s *Service) applyTransition(ctx context.Context, intentID string, target domain.PaymentStatus, reason, claimedUserID, source string) (CallbackOutcome, *domain.Payment, error) {
	update, err := s.ledger.UpdateStatus(ctx, intentID, target, s.now(), reason)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			log.Printf("level=warn component=callback_reconciler msg=\"event for unknown payment intent\" intent_id=%s status=%s source=%s", intentID, target, source)
			return OutcomeUnknownIntent, nil, nil
		}
		return "", nil, fmt.Errorf("failed to update payment %s: %w", intentID, err)
	}

	payment := update.Payment
	if claimedUserID != "" && claimedUserID != payment.UserID {
		s.metrics.Anomalies.WithLabelValues("owner_mismatch").Inc()
		log.Printf("level=warn component=callback_reconciler msg=\"event metadata user does not own payment\" intent_id=%s payment_id=%d owner=%s metadata_user=%s", intentID, payment.ID, payment.UserID, claimedUserID)
	}

	if !update.Applied {
		if update.Previous == target {
			log.Printf("level=info component=callback_reconciler msg=\"duplicate event ignored\" intent_id=%s payment_id=%d status=%s source=%s", intentID, payment.ID, update.Previous, source)
			return OutcomeDuplicate, &payment, nil
		}
		s.metrics.Anomalies.WithLabelValues("conflicting_terminal_event").Inc()
		log.Printf("level=warn component=callback_reconciler msg=\"conflicting event for finalized payment ignored\" intent_id=%s payment_id=%d current=%s requested=%s source=%s", intentID, payment.ID, update.Previous, target, source)
		return OutcomeConflict, &payment, nil
	}

	log.Printf("level=info component=callback_reconciler msg=\"payment finalized\" intent_id=%s payment_id=%d status=%s source=%s", intentID, payment.ID, payment.Status, source)
	s.publishStatus(ctx, payment, source)
	return OutcomeApplied, &payment, nil
}

func (s *Service) publishStatus(ctx context.Context, payment domain.Payment, source string) {
	if s.publisher == nil {
		return
	}

	var occurredAt time.Time
	switch {
	case payment.PaidAt != nil:
		occurredAt = *payment.PaidAt
	case payment.FailedAt != nil:
		occurredAt = *payment.FailedAt
	default:
		occurredAt = s.now().UTC()
	}

	event := domain.PaymentStatusEvent{
		EventID:          uuid.NewString(),
		PaymentID:        payment.ID,
		UserID:           payment.UserID,
		ProviderIntentID: payment.ProviderIntentID,
		Status:           payment.Status,
		AmountMinor:      payment.AmountMinor,
		Currency:         payment.Currency,
		Reason:           payment.FailureReason,
		Source:           source,
		OccurredAt:       occurredAt,
	}

	// Detached from the request; a cancelled callback still publishes.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, "payment."+string(payment.Status), event); err != nil {
		s.metrics.PublishFailure.Inc()
		log.Printf("level=warn component=callback_reconciler msg=\"status event publish failed\" payment_id=%d status=%s err=%v", payment.ID, payment.Status, err)
	}
}
