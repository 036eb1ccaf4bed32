/**
 * @description
 * This file provides the PostgreSQL implementation of the `Ledger` interface.
 * Uniqueness of provider intent ids is enforced by the table constraint and the
 * terminal transition is a single conditional UPDATE, so concurrent callbacks are
 * serialised by the database rather than by the process.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: For NUMERIC amounts.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
)

const paymentsSchema = `
CREATE TABLE IF NOT EXISTS payments (
	id                 BIGSERIAL PRIMARY KEY,
	user_id            TEXT NOT NULL,
	amount             NUMERIC(18, 2) NOT NULL,
	amount_minor       BIGINT NOT NULL,
	currency           TEXT NOT NULL,
	description        TEXT NOT NULL,
	provider_intent_id TEXT NOT NULL UNIQUE,
	status             TEXT NOT NULL CHECK (status IN ('pending', 'succeeded', 'failed')),
	failure_reason     TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	paid_at            TIMESTAMPTZ,
	failed_at          TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS payments_user_id_idx ON payments (user_id, id);
CREATE INDEX IF NOT EXISTS payments_pending_idx ON payments (created_at) WHERE status = 'pending';
`

const paymentColumns = `id, user_id, amount::text, amount_minor, currency, description,
	provider_intent_id, status, COALESCE(failure_reason, ''), created_at, paid_at, failed_at`

// PostgresLedger is a Ledger backed by the `payments` table.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger creates a new instance of PostgresLedger.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureSchema creates the payments table and its indexes when missing.
func (r *PostgresLedger) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, paymentsSchema)
	return err
}

func (r *PostgresLedger) Append(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	query := `
		INSERT INTO payments (
			user_id, amount, amount_minor, currency, description,
			provider_intent_id, status, created_at
		)
		VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8)
		RETURNING ` + paymentColumns

	row := r.db.QueryRow(ctx, query,
		payment.UserID,
		payment.Amount.StringFixed(2),
		payment.AmountMinor,
		payment.Currency,
		payment.Description,
		payment.ProviderIntentID,
		string(payment.Status),
		payment.CreatedAt.UTC(),
	)
	out, err := scanPayment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateIntent
		}
		return nil, err
	}
	return out, nil
}

func (r *PostgresLedger) FindByProviderIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_intent_id = $1`
	out, err := scanPayment(r.db.QueryRow(ctx, query, intentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return out, nil
}

func (r *PostgresLedger) FindByID(ctx context.Context, id int64, userID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 AND user_id = $2`
	out, err := scanPayment(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return out, nil
}

func (r *PostgresLedger) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (r *PostgresLedger) UpdateStatus(ctx context.Context, intentID string, status domain.PaymentStatus, at time.Time, reason string) (*domain.StatusUpdate, error) {
	if !status.IsTerminal() {
		return nil, ErrInvalidTransition
	}

	var paidAt, failedAt *time.Time
	var failureReason *string
	stamp := at.UTC()
	if status == domain.StatusSucceeded {
		paidAt = &stamp
	} else {
		failedAt = &stamp
		if reason != "" {
			failureReason = &reason
		}
	}

	// Only a pending row matches, so two concurrent transitions cannot both win.
	query := `
		UPDATE payments
		SET status = $2, paid_at = $3, failed_at = $4, failure_reason = $5
		WHERE provider_intent_id = $1 AND status = 'pending'
		RETURNING ` + paymentColumns

	updated, err := scanPayment(r.db.QueryRow(ctx, query, intentID, string(status), paidAt, failedAt, failureReason))
	if err == nil {
		return &domain.StatusUpdate{Payment: *updated, Previous: domain.StatusPending, Applied: true}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update payment status: %w", err)
	}

	current, err := r.FindByProviderIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	return &domain.StatusUpdate{Payment: *current, Previous: current.Status, Applied: false}, nil
}

func (r *PostgresLedger) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, createdBefore.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]domain.Payment, error) {
	defer rows.Close()
	out := make([]domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var amount, status string
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&amount,
		&p.AmountMinor,
		&p.Currency,
		&p.Description,
		&p.ProviderIntentID,
		&status,
		&p.FailureReason,
		&p.CreatedAt,
		&p.PaidAt,
		&p.FailedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}
