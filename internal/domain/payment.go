/**
 * @description
 * This file defines the core domain models for the payment-service.
 * The Payment record is the single entity owned by this service: it is created
 * in the pending state when a payment intent is issued at the provider and moves
 * exactly once into a terminal state when the provider reports the outcome.
 *
 * @notes
 * - Amounts are carried as shopspring decimals in the major currency unit and as
 *   int64 in the provider's minor unit, which avoids floating-point drift.
 * - JSON names are camelCase; older ledger files are read through UnmarshalJSON.
 */

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment record.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSucceeded PaymentStatus = "succeeded"
	StatusFailed    PaymentStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Payment is one entry of the payment ledger.
type Payment struct {
	ID               int64           `json:"id"`
	UserID           string          `json:"userId"`
	Amount           decimal.Decimal `json:"amount"`
	AmountMinor      int64           `json:"amountMinor"`
	Currency         string          `json:"currency"`
	Description      string          `json:"description"`
	ProviderIntentID string          `json:"providerIntentId"`
	Status           PaymentStatus   `json:"status"`
	FailureReason    string          `json:"failureReason,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	PaidAt           *time.Time      `json:"paidAt,omitempty"`
	FailedAt         *time.Time      `json:"failedAt,omitempty"`
}

// Clone returns a deep copy so callers never share timestamp pointers with the store.
func (p Payment) Clone() Payment {
	out := p
	if p.PaidAt != nil {
		t := *p.PaidAt
		out.PaidAt = &t
	}
	if p.FailedAt != nil {
		t := *p.FailedAt
		out.FailedAt = &t
	}
	return out
}

// StatusUpdate is the result of a terminal transition attempt.
// Applied is false when the record had already left pending; Previous then holds
// the status that was kept.
type StatusUpdate struct {
	Payment  Payment
	Previous PaymentStatus
	Applied  bool
}

// Product is the read-only catalog record used to price an intent.
type Product struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Details string          `json:"details,omitempty"`
}

// minorUnitExponent is fixed at two decimal places; currencies with other
// exponents are not handled.
const minorUnitExponent = 2

// MaxAmountMinor is the largest charge the provider accepts (eight digits).
const MaxAmountMinor int64 = 99999999

// ToMinorUnits converts a major-unit amount to the provider's integer minor unit,
// rounding half away from zero. ok is false when the result does not fit an int64.
func ToMinorUnits(amount decimal.Decimal) (minor int64, ok bool) {
	rounded := amount.Shift(minorUnitExponent).Round(0)
	if !rounded.BigInt().IsInt64() {
		return 0, false
	}
	return rounded.IntPart(), true
}

// FromMinorUnits converts a minor-unit integer back to a two-place decimal.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorUnitExponent)
}

// UnmarshalJSON also reads ledger files written by the earlier Node storefront,
// which stored `paymentIntentId`, a numeric `userId` and no minor amount.
func (p *Payment) UnmarshalJSON(data []byte) error {
	type record Payment
	var raw struct {
		record
		UserID          json.RawMessage `json:"userId"`
		PaymentIntentID string          `json:"paymentIntentId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Payment(raw.record)
	userID, err := decodeUserID(raw.UserID)
	if err != nil {
		return err
	}
	p.UserID = userID
	if p.ProviderIntentID == "" {
		p.ProviderIntentID = raw.PaymentIntentID
	}
	if p.AmountMinor == 0 && !p.Amount.IsZero() {
		minor, ok := ToMinorUnits(p.Amount)
		if !ok {
			return fmt.Errorf("payment %d: amount %s out of range", p.ID, p.Amount)
		}
		p.AmountMinor = minor
	}
	return nil
}

func decodeUserID(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return "", fmt.Errorf("userId: %w", err)
	}
	return n.String(), nil
}
