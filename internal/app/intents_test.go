package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
	"github.com/Yousefjoo17/stripe-backend/internal/store"
)

func amountPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreateIntent_RecordsPendingPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.service.CreateIntent(ctx, CreateIntentInput{
		UserID:   "user-1",
		Amount:   amountPtr("49.99"),
		Currency: "USD",
	})
	if err != nil {
		t.Fatalf("CreateIntent returned error: %v", err)
	}
	if res.ClientSecret == "" || res.PaymentID != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if len(env.provider.created) != 1 {
		t.Fatalf("expected one provider call, got %d", len(env.provider.created))
	}
	req := env.provider.created[0]
	if req.AmountMinor != 4999 || req.Currency != "usd" || req.UserID != "user-1" {
		t.Fatalf("unexpected provider request: %+v", req)
	}
	if req.Description != DefaultDescription || req.PaymentMethodType != DefaultPaymentMethodType {
		t.Fatalf("expected defaults, got description=%q method=%q", req.Description, req.PaymentMethodType)
	}

	stored, err := env.ledger.FindByProviderIntentID(ctx, res.Payment.ProviderIntentID)
	if err != nil {
		t.Fatalf("ledger lookup: %v", err)
	}
	if stored.Status != domain.StatusPending || !stored.Amount.Equal(decimal.RequireFromString("49.99")) {
		t.Fatalf("unexpected stored payment: %+v", stored)
	}
	if stored.UserID != "user-1" || !stored.CreatedAt.Equal(env.now) {
		t.Fatalf("unexpected owner or timestamp: %+v", stored)
	}
	if got := testutil.ToFloat64(env.metrics.Intents.WithLabelValues("created")); got != 1 {
		t.Fatalf("expected created counter 1, got %v", got)
	}
}

func TestCreateIntent_RoundsToMinorUnits(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.service.CreateIntent(context.Background(), CreateIntentInput{UserID: "u", Amount: amountPtr("10.005")})
	if err != nil {
		t.Fatalf("CreateIntent returned error: %v", err)
	}
	if env.provider.created[0].AmountMinor != 1001 {
		t.Fatalf("expected 1001 minor units, got %d", env.provider.created[0].AmountMinor)
	}
	if res.Payment.Amount.StringFixed(2) != "10.01" {
		t.Fatalf("expected stored amount 10.01, got %s", res.Payment.Amount)
	}
}

func TestCreateIntent_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		in   CreateIntentInput
		want error
	}{
		{name: "missing user", in: CreateIntentInput{Amount: amountPtr("5")}, want: ErrMissingUser},
		{name: "missing amount", in: CreateIntentInput{UserID: "u"}, want: ErrInvalidAmount},
		{name: "zero amount", in: CreateIntentInput{UserID: "u", Amount: amountPtr("0")}, want: ErrInvalidAmount},
		{name: "negative amount", in: CreateIntentInput{UserID: "u", Amount: amountPtr("-3.50")}, want: ErrInvalidAmount},
		{name: "above provider maximum", in: CreateIntentInput{UserID: "u", Amount: amountPtr("1000000.00")}, want: ErrInvalidAmount},
		{name: "overflows minor units", in: CreateIntentInput{UserID: "u", Amount: amountPtr("184467440737095516.17")}, want: ErrInvalidAmount},
		{name: "rounds to zero", in: CreateIntentInput{UserID: "u", Amount: amountPtr("0.004")}, want: ErrInvalidAmount},
		{name: "short currency", in: CreateIntentInput{UserID: "u", Amount: amountPtr("5"), Currency: "us"}, want: ErrInvalidCurrency},
		{name: "non-letter currency", in: CreateIntentInput{UserID: "u", Amount: amountPtr("5"), Currency: "u$d"}, want: ErrInvalidCurrency},
		{name: "product without catalog", in: CreateIntentInput{UserID: "u", ProductID: new(int64)}, want: ErrProductNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.service.CreateIntent(context.Background(), tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if env.provider.createdCount() != 0 {
				t.Fatal("provider must not be called for invalid input")
			}
			list, _ := env.ledger.ListByUser(context.Background(), "u")
			if len(list) != 0 {
				t.Fatalf("ledger must stay empty, got %d records", len(list))
			}
		})
	}
}

func TestCreateIntent_ProviderFailureLeavesLedgerUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.provider.createErr = errors.New("card network unavailable")

	_, err := env.service.CreateIntent(context.Background(), CreateIntentInput{UserID: "u", Amount: amountPtr("12")})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Op != "create_intent" {
		t.Fatalf("expected *ProviderError, got %T", err)
	}

	list, _ := env.ledger.ListByUser(context.Background(), "u")
	if len(list) != 0 {
		t.Fatalf("expected no ledger records, got %d", len(list))
	}
}

func TestCreateIntent_ProviderTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.provider.block = true
	env.service.providerTimeout = 20 * time.Millisecond

	start := time.Now()
	_, err := env.service.CreateIntent(context.Background(), CreateIntentInput{UserID: "u", Amount: amountPtr("12")})
	if !errors.Is(err, ErrProvider) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected provider timeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("provider timeout was not enforced")
	}
	list, _ := env.ledger.ListByUser(context.Background(), "u")
	if len(list) != 0 {
		t.Fatalf("expected no ledger records, got %d", len(list))
	}
}

func TestCreateIntent_DuplicateIntentSurfacesConflict(t *testing.T) {
	env := newTestEnv(t)
	env.seedPending(t, "other", "pi_test_1", env.now)

	_, err := env.service.CreateIntent(context.Background(), CreateIntentInput{UserID: "u", Amount: amountPtr("3")})
	if !errors.Is(err, store.ErrDuplicateIntent) {
		t.Fatalf("expected ErrDuplicateIntent, got %v", err)
	}
}

type catalogStub struct {
	products map[int64]domain.Product
}

func (c *catalogStub) FindProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	return &p, nil
}

func TestCreateIntent_UsesCatalogPrice(t *testing.T) {
	env := newTestEnv(t)
	env.service.SetCatalog(&catalogStub{products: map[int64]domain.Product{
		7: {ID: 7, Name: "Poster", Price: decimal.RequireFromString("7.99")},
	}})

	productID := int64(7)
	res, err := env.service.CreateIntent(context.Background(), CreateIntentInput{
		UserID:    "u",
		Amount:    amountPtr("1000"),
		ProductID: &productID,
	})
	if err != nil {
		t.Fatalf("CreateIntent returned error: %v", err)
	}
	req := env.provider.created[0]
	if req.AmountMinor != 799 || req.Description != "Poster" {
		t.Fatalf("expected catalog price and name, got %+v", req)
	}
	if res.Payment.Description != "Poster" {
		t.Fatalf("unexpected stored description %q", res.Payment.Description)
	}

	missing := int64(99)
	if _, err := env.service.CreateIntent(context.Background(), CreateIntentInput{UserID: "u", ProductID: &missing}); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

type rateLimiterStub struct {
	count int
	err   error
	calls int
}

func (r *rateLimiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	r.calls++
	if r.err != nil {
		return 0, 0, r.err
	}
	r.count++
	return r.count, 42, nil
}

func TestCreateIntent_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	limiter := &rateLimiterStub{}
	env.service.SetIntentRateLimiter(limiter, 2)

	for i := 0; i < 2; i++ {
		if _, err := env.service.CreateIntent(context.Background(), CreateIntentInput{UserID: "u", Amount: amountPtr("1")}); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	_, err := env.service.CreateIntent(context.Background(), CreateIntentInput{UserID: "u", Amount: amountPtr("1")})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfterSeconds != 42 {
		t.Fatalf("expected retry-after 42, got %+v", rl)
	}
	if env.provider.createdCount() != 2 {
		t.Fatalf("expected provider to be called twice, got %d", env.provider.createdCount())
	}
}

func TestCreateIntent_RateLimiterFailureAllowsRequest(t *testing.T) {
	env := newTestEnv(t)
	env.service.SetIntentRateLimiter(&rateLimiterStub{err: errors.New("redis down")}, 1)

	if _, err := env.service.CreateIntent(context.Background(), CreateIntentInput{UserID: "u", Amount: amountPtr("1")}); err != nil {
		t.Fatalf("expected limiter failure to be tolerated, got %v", err)
	}
}
