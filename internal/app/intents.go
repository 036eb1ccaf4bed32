package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
	"github.com/Yousefjoo17/stripe-backend/internal/store"
)

// CreateIntentInput is a caller's request to start a payment. Amount is in the major
// currency unit. When ProductID is set the catalog price replaces Amount.
type CreateIntentInput struct {
	UserID            string
	Amount            *decimal.Decimal
	Currency          string
	Description       string
	PaymentMethodType string
	ProductID         *int64
}

// IntentResult is what the client needs to confirm the payment.
type IntentResult struct {
	ClientSecret string
	PaymentID    int64
	Payment      domain.Payment
}

// RateLimitError reports an exceeded intent quota.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %ds)", ErrRateLimited.Error(), e.RetryAfterSeconds)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// CreateIntent validates the request, creates the intent at the provider and records
// a pending payment. The ledger is untouched when the provider call fails.
func (s *Service) CreateIntent(ctx context.Context, in CreateIntentInput) (*IntentResult, error) {
	req, amount, err := s.buildIntentRequest(ctx, in)
	if err != nil {
		s.metrics.Intents.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if err := s.checkIntentRateLimit(ctx, req.UserID); err != nil {
		s.metrics.Intents.WithLabelValues("rate_limited").Inc()
		return nil, err
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	intent, err := s.provider.CreatePaymentIntent(providerCtx, req)
	cancel()
	if err == nil && (intent == nil || strings.TrimSpace(intent.ID) == "") {
		err = errors.New("provider returned no intent id")
	}
	if err != nil {
		s.metrics.Intents.WithLabelValues("provider_error").Inc()
		log.Printf("level=warn component=intent_issuer msg=\"provider intent creation failed\" user_id=%s amount_minor=%d currency=%s err=%v", req.UserID, req.AmountMinor, req.Currency, err)
		return nil, &ProviderError{Op: "create_intent", Err: err}
	}

	payment, err := s.ledger.Append(ctx, &domain.Payment{
		UserID:           req.UserID,
		Amount:           amount,
		AmountMinor:      req.AmountMinor,
		Currency:         req.Currency,
		Description:      req.Description,
		ProviderIntentID: intent.ID,
		Status:           domain.StatusPending,
		CreatedAt:        s.now().UTC(),
	})
	if err != nil {
		s.metrics.Intents.WithLabelValues("ledger_error").Inc()
		if errors.Is(err, store.ErrDuplicateIntent) {
			log.Printf("level=error component=intent_issuer msg=\"provider returned an intent id that is already recorded\" intent_id=%s user_id=%s", intent.ID, req.UserID)
		} else {
			log.Printf("level=error component=intent_issuer msg=\"failed to record payment; provider intent left without ledger entry\" intent_id=%s user_id=%s err=%v", intent.ID, req.UserID, err)
		}
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	s.metrics.Intents.WithLabelValues("created").Inc()
	log.Printf("level=info component=intent_issuer msg=\"payment intent created\" payment_id=%d intent_id=%s user_id=%s amount_minor=%d currency=%s", payment.ID, intent.ID, req.UserID, req.AmountMinor, req.Currency)

	return &IntentResult{
		ClientSecret: intent.ClientSecret,
		PaymentID:    payment.ID,
		Payment:      *payment,
	}, nil
}

func (s *Service) buildIntentRequest(ctx context.Context, in CreateIntentInput) (domain.IntentRequest, decimal.Decimal, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return domain.IntentRequest{}, decimal.Zero, ErrMissingUser
	}

	amount := in.Amount
	description := strings.TrimSpace(in.Description)
	if in.ProductID != nil {
		product, err := s.lookupProduct(ctx, *in.ProductID)
		if err != nil {
			return domain.IntentRequest{}, decimal.Zero, err
		}
		price := product.Price
		amount = &price
		if description == "" {
			description = product.Name
		}
	}

	if amount == nil {
		return domain.IntentRequest{}, decimal.Zero, ErrInvalidAmount
	}
	minor, ok := domain.ToMinorUnits(*amount)
	if !ok || minor <= 0 || minor > domain.MaxAmountMinor {
		return domain.IntentRequest{}, decimal.Zero, ErrInvalidAmount
	}

	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !isCurrencyCode(currency) {
		return domain.IntentRequest{}, decimal.Zero, ErrInvalidCurrency
	}

	if description == "" {
		description = DefaultDescription
	}
	methodType := strings.TrimSpace(in.PaymentMethodType)
	if methodType == "" {
		methodType = DefaultPaymentMethodType
	}

	return domain.IntentRequest{
		AmountMinor:       minor,
		Currency:          currency,
		Description:       description,
		PaymentMethodType: methodType,
		UserID:            userID,
	}, domain.FromMinorUnits(minor), nil
}

func (s *Service) lookupProduct(ctx context.Context, id int64) (*domain.Product, error) {
	if s.catalog == nil {
		return nil, ErrProductNotFound
	}
	product, err := s.catalog.FindProduct(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to load product %d: %w", id, err)
	}
	return product, nil
}

func (s *Service) checkIntentRateLimit(ctx context.Context, userID string) error {
	if s.rateLimiter == nil || s.intentRateLimit <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, intentRateLimitScope, userID, s.intentRateLimit, time.Minute)
	if err != nil {
		log.Printf("level=warn component=intent_issuer msg=\"rate limiter unavailable; allowing request\" user_id=%s err=%v", userID, err)
		return nil
	}
	if count > s.intentRateLimit {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
