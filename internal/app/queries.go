package app

import (
	"context"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
)

// ListPayments returns the caller's payments in creation order.
func (s *Service) ListPayments(ctx context.Context, userID string) ([]domain.Payment, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	return s.ledger.ListByUser(ctx, userID)
}

// GetPayment returns one of the caller's payments. A payment owned by someone else is
// reported as store.ErrPaymentNotFound, same as a missing one.
func (s *Service) GetPayment(ctx context.Context, userID string, id int64) (*domain.Payment, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	return s.ledger.FindByID(ctx, id, userID)
}
