/**
 * @description
 * This package provides the Stripe adapter for the payment-service. It creates and
 * retrieves payment intents through stripe-go and translates Stripe objects into the
 * service's domain types.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v82: The official Stripe client library.
 */
package stripeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
)

// MetadataUserID is the metadata key carrying the owning user id on every intent.
const MetadataUserID = "user_id"

// Client is a client for the Stripe payment intents API.
type Client struct {
	sc *stripe.Client
}

// NewClient creates a Stripe client. baseURL overrides the API host (for stripe-mock);
// leave it empty for the live API.
func NewClient(secretKey, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(1),
		EnableTelemetry:   stripe.Bool(false),
	}
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		cfg.URL = stripe.String(baseURL)
	}

	return &Client{
		sc: stripe.NewClient(secretKey, stripe.WithBackends(stripe.NewBackendsWithConfig(cfg))),
	}
}

// APIError is a Stripe API failure reduced to the fields the service logs.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe api error: %d %s (%s): %s", e.StatusCode, e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("stripe api error: %d %s: %s", e.StatusCode, e.Type, e.Message)
}

// CreatePaymentIntent creates a payment intent for the given amount in minor units.
func (c *Client) CreatePaymentIntent(ctx context.Context, req domain.IntentRequest) (*domain.ProviderIntent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:             stripe.Int64(req.AmountMinor),
		Currency:           stripe.String(req.Currency),
		Description:        stripe.String(req.Description),
		PaymentMethodTypes: stripe.StringSlice([]string{req.PaymentMethodType}),
		Metadata: map[string]string{
			MetadataUserID: req.UserID,
		},
	}

	pi, err := c.sc.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	return toProviderIntent(pi), nil
}

// RetrievePaymentIntent fetches the current state of an intent.
func (c *Client) RetrievePaymentIntent(ctx context.Context, intentID string) (*domain.ProviderIntent, error) {
	pi, err := c.sc.V1PaymentIntents.Retrieve(ctx, intentID, nil)
	if err != nil {
		return nil, translateError(err)
	}
	return toProviderIntent(pi), nil
}

func toProviderIntent(pi *stripe.PaymentIntent) *domain.ProviderIntent {
	if pi == nil {
		return nil
	}
	out := &domain.ProviderIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}
	switch {
	case pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "":
		out.FailureMessage = pi.LastPaymentError.Msg
	case pi.CancellationReason != "":
		out.FailureMessage = "canceled: " + string(pi.CancellationReason)
	}
	return out
}

func translateError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &APIError{
			StatusCode: stripeErr.HTTPStatusCode,
			Type:       string(stripeErr.Type),
			Code:       string(stripeErr.Code),
			Message:    stripeErr.Msg,
		}
	}
	return err
}
