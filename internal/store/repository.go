/**
 * @description
 * This file defines the `Ledger` interface, the contract for all persistence of
 * payment records. Business logic depends only on this interface, so the flat-file
 * ledger and the PostgreSQL ledger are interchangeable and stubs can stand in for
 * either in tests.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: For the payment models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrDuplicateIntent   = errors.New("provider intent already recorded")
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrProductNotFound   = errors.New("product not found")
)

// Ledger is the durable collection of payment records.
type Ledger interface {
	// Append assigns the record an id and persists it. It fails with
	// ErrDuplicateIntent when the provider intent id is already present.
	Append(ctx context.Context, payment *domain.Payment) (*domain.Payment, error)
	FindByProviderIntentID(ctx context.Context, intentID string) (*domain.Payment, error)
	// FindByID only returns records owned by userID.
	FindByID(ctx context.Context, id int64, userID string) (*domain.Payment, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Payment, error)
	// UpdateStatus moves a pending record into a terminal status. A record that is
	// already terminal is returned unchanged with Applied=false.
	UpdateStatus(ctx context.Context, intentID string, status domain.PaymentStatus, at time.Time, reason string) (*domain.StatusUpdate, error)
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Payment, error)
}

// Catalog resolves products for intent pricing.
type Catalog interface {
	FindProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// applyTerminal stamps the transition onto a pending record.
func applyTerminal(p *domain.Payment, status domain.PaymentStatus, at time.Time, reason string) {
	p.Status = status
	stamp := at.UTC()
	switch status {
	case domain.StatusSucceeded:
		p.PaidAt = &stamp
	case domain.StatusFailed:
		p.FailedAt = &stamp
		p.FailureReason = reason
	}
}
