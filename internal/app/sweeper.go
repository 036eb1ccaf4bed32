package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
)

const (
	defaultSweepBatch = 100

	providerStatusSucceeded = "succeeded"
	providerStatusCanceled  = "canceled"
)

// SweepReport counts what one pass over stale pending payments did.
type SweepReport struct {
	Checked       int
	Applied       int
	StillPending  int
	ProviderError int
	Skipped       int
}

// SweepPending re-checks payments that have been pending for longer than olderThan
// against the provider and applies terminal provider states through the same
// transition used by callbacks.
func (s *Service) SweepPending(ctx context.Context, olderThan time.Duration, limit int) (SweepReport, error) {
	var report SweepReport
	if limit <= 0 {
		limit = defaultSweepBatch
	}

	cutoff := s.now().Add(-olderThan)
	pending, err := s.ledger.ListPending(ctx, cutoff, limit)
	if err != nil {
		return report, fmt.Errorf("failed to list pending payments: %w", err)
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
		intent, err := s.provider.RetrievePaymentIntent(providerCtx, p.ProviderIntentID)
		cancel()
		if err != nil {
			report.ProviderError++
			s.metrics.SweepOutcomes.WithLabelValues("provider_error").Inc()
			log.Printf("level=warn component=pending_sweeper msg=\"provider lookup failed\" payment_id=%d intent_id=%s err=%v", p.ID, p.ProviderIntentID, err)
			continue
		}

		target, reason, terminal := terminalFromProvider(intent)
		if !terminal {
			report.StillPending++
			s.metrics.SweepOutcomes.WithLabelValues("still_pending").Inc()
			continue
		}

		outcome, _, err := s.applyTransition(ctx, p.ProviderIntentID, target, reason, "", sourceSweeper)
		if err != nil {
			return report, err
		}
		s.metrics.SweepOutcomes.WithLabelValues(string(outcome)).Inc()
		if outcome == OutcomeApplied {
			report.Applied++
		} else {
			report.Skipped++
		}
	}

	return report, nil
}

func terminalFromProvider(intent *domain.ProviderIntent) (domain.PaymentStatus, string, bool) {
	if intent == nil {
		return "", "", false
	}
	switch intent.Status {
	case providerStatusSucceeded:
		return domain.StatusSucceeded, "", true
	case providerStatusCanceled:
		reason := intent.FailureMessage
		if reason == "" {
			reason = "payment intent canceled"
		}
		return domain.StatusFailed, reason, true
	default:
		return "", "", false
	}
}
