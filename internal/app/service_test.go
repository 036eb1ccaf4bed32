package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
	"github.com/Yousefjoo17/stripe-backend/internal/store"
)

const validSignature = "t=1,v1=ok"

type providerStub struct {
	mu sync.Mutex

	createErr   error
	block       bool
	created     []domain.IntentRequest
	nextID      int
	intents     map[string]*domain.ProviderIntent
	retrieveErr error
}

func (p *providerStub) CreatePaymentIntent(ctx context.Context, req domain.IntentRequest) (*domain.ProviderIntent, error) {
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, req)
	p.nextID++
	id := fmt.Sprintf("pi_test_%d", p.nextID)
	return &domain.ProviderIntent{ID: id, ClientSecret: id + "_secret_abc", Status: "requires_payment_method"}, nil
}

func (p *providerStub) RetrievePaymentIntent(ctx context.Context, intentID string) (*domain.ProviderIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retrieveErr != nil {
		return nil, p.retrieveErr
	}
	intent, ok := p.intents[intentID]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	return intent, nil
}

func (p *providerStub) createdCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.created)
}

// verifierStub accepts payloads registered in events when the header is validSignature.
type verifierStub struct {
	events map[string]*domain.ProviderEvent
}

func (v *verifierStub) VerifyEvent(payload []byte, header string) (*domain.ProviderEvent, error) {
	if header != validSignature {
		return nil, errors.New("signature mismatch")
	}
	event, ok := v.events[string(payload)]
	if !ok {
		return nil, errors.New("unknown payload")
	}
	out := *event
	return &out, nil
}

type publisherStub struct {
	mu     sync.Mutex
	keys   []string
	events []domain.PaymentStatusEvent
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	if ev, ok := body.(domain.PaymentStatusEvent); ok {
		p.events = append(p.events, ev)
	}
	return p.err
}

// failingLedgerStub wraps a real ledger and fails selected calls.
type failingLedgerStub struct {
	store.Ledger
	updateErr error
	appendErr error
}

func (s *failingLedgerStub) UpdateStatus(ctx context.Context, intentID string, status domain.PaymentStatus, at time.Time, reason string) (*domain.StatusUpdate, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.Ledger.UpdateStatus(ctx, intentID, status, at, reason)
}

func (s *failingLedgerStub) Append(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	return s.Ledger.Append(ctx, payment)
}

type testEnv struct {
	service   *Service
	ledger    *store.FileLedger
	provider  *providerStub
	verifier  *verifierStub
	publisher *publisherStub
	metrics   *Metrics
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ledger, err := store.OpenFileLedger(filepath.Join(t.TempDir(), "payments.json"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	return newTestEnvWithLedger(t, ledger, ledger)
}

func newTestEnvWithLedger(t *testing.T, fileLedger *store.FileLedger, ledger store.Ledger) *testEnv {
	t.Helper()
	env := &testEnv{
		ledger:    fileLedger,
		provider:  &providerStub{intents: map[string]*domain.ProviderIntent{}},
		verifier:  &verifierStub{events: map[string]*domain.ProviderEvent{}},
		publisher: &publisherStub{},
		metrics:   NewMetrics(prometheus.NewRegistry()),
		now:       time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	env.service = NewService(ledger, env.provider, env.verifier, env.metrics, "usd", time.Second)
	env.service.now = func() time.Time { return env.now }
	env.service.SetPublisher(env.publisher)
	return env
}

// signedEvent registers an event and returns the payload that verifies to it.
func (e *testEnv) signedEvent(id string, kind domain.EventKind, intentID, userID, failure string) []byte {
	payload := fmt.Sprintf(`{"id":%q}`, id)
	e.verifier.events[payload] = &domain.ProviderEvent{
		ID:             id,
		Kind:           kind,
		IntentID:       intentID,
		UserID:         userID,
		FailureMessage: failure,
		CreatedAt:      e.now,
	}
	return []byte(payload)
}

func (e *testEnv) seedPending(t *testing.T, userID, intentID string, createdAt time.Time) *domain.Payment {
	t.Helper()
	p, err := e.ledger.Append(context.Background(), &domain.Payment{
		UserID:           userID,
		Amount:           domain.FromMinorUnits(4999),
		AmountMinor:      4999,
		Currency:         "usd",
		Description:      "Seed",
		ProviderIntentID: intentID,
		Status:           domain.StatusPending,
		CreatedAt:        createdAt,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return p
}

func TestProviderErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&ProviderError{Op: "create_intent", Err: cause})

	if !errors.Is(err, ErrProvider) {
		t.Fatal("expected ProviderError to match ErrProvider")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected ProviderError to unwrap to its cause")
	}
	var pe *ProviderError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &pe) || pe.Op != "create_intent" {
		t.Fatalf("expected errors.As to find ProviderError, got %+v", pe)
	}
}

func TestQueriesEnforceOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mine := env.seedPending(t, "alice", "pi_alice", env.now)
	env.seedPending(t, "bob", "pi_bob", env.now)

	list, err := env.service.ListPayments(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Fatalf("expected only alice's payment, got %+v", list)
	}

	if _, err := env.service.GetPayment(ctx, "bob", mine.ID); !errors.Is(err, store.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound for foreign payment, got %v", err)
	}
	got, err := env.service.GetPayment(ctx, "alice", mine.ID)
	if err != nil || got.ProviderIntentID != "pi_alice" {
		t.Fatalf("expected own payment, got %+v err=%v", got, err)
	}

	if _, err := env.service.ListPayments(ctx, ""); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
}
