/**
 * @description
 * This file contains the core business logic for the payment-service. The `Service`
 * struct coordinates the payment ledger, the payment provider and the event publisher.
 *
 * Key features:
 * - Issues payment intents at the provider and records them as pending payments.
 * - Reconciles signed provider callbacks into terminal payment states, idempotently.
 * - Serves ownership-checked reads of the ledger.
 * - Publishes status events to RabbitMQ when a payment reaches a terminal state.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
	"github.com/Yousefjoo17/stripe-backend/internal/store"
)

const (
	DefaultCurrency          = "usd"
	DefaultDescription       = "Payment"
	DefaultPaymentMethodType = "card"
	defaultProviderTimeout   = 15 * time.Second
	intentRateLimitScope     = "payment_intent_create"
)

var (
	ErrInvalidAmount    = errors.New("amount must be a positive number")
	ErrInvalidCurrency  = errors.New("currency must be a three-letter ISO code")
	ErrMissingUser      = errors.New("user id is required")
	ErrProductNotFound  = errors.New("product not found")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrRateLimited      = errors.New("too many payment intents, retry later")
	ErrProvider         = errors.New("payment provider error")
)

// ProviderError wraps a failed provider round trip. No ledger state was changed, so
// the caller may retry.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// PaymentProvider is the outbound side of the payment provider.
type PaymentProvider interface {
	CreatePaymentIntent(ctx context.Context, req domain.IntentRequest) (*domain.ProviderIntent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*domain.ProviderIntent, error)
}

// EventVerifier authenticates a raw callback body against its signature header and
// decodes it into a provider event.
type EventVerifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (*domain.ProviderEvent, error)
}

// RateLimiter counts attempts per subject within a sliding window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// EventPublisher is the subset of the RabbitMQ producer the service needs.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
}

// Service provides the core business logic for payments.
type Service struct {
	ledger          store.Ledger
	provider        PaymentProvider
	verifier        EventVerifier
	metrics         *Metrics
	defaultCurrency string
	providerTimeout time.Duration

	catalog         store.Catalog
	rateLimiter     RateLimiter
	intentRateLimit int
	publisher       EventPublisher

	now func() time.Time
}

// NewService creates a new payment service instance. metrics may be nil.
func NewService(ledger store.Ledger, provider PaymentProvider, verifier EventVerifier, metrics *Metrics, defaultCurrency string, providerTimeout time.Duration) *Service {
	if defaultCurrency == "" {
		defaultCurrency = DefaultCurrency
	}
	if providerTimeout <= 0 {
		providerTimeout = defaultProviderTimeout
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		ledger:          ledger,
		provider:        provider,
		verifier:        verifier,
		metrics:         metrics,
		defaultCurrency: defaultCurrency,
		providerTimeout: providerTimeout,
		now:             time.Now,
	}
}

// SetCatalog enables pricing intents from catalog products.
func (s *Service) SetCatalog(catalog store.Catalog) {
	s.catalog = catalog
}

// SetIntentRateLimiter caps intent creation per user per minute. A zero limit disables it.
func (s *Service) SetIntentRateLimiter(limiter RateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.intentRateLimit = perMinute
}

// SetPublisher enables status events for applied transitions.
func (s *Service) SetPublisher(publisher EventPublisher) {
	s.publisher = publisher
}
