package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
		ok     bool
	}{
		{amount: "49.99", want: 4999, ok: true},
		{amount: "10.005", want: 1001, ok: true},
		{amount: "999999.99", want: MaxAmountMinor, ok: true},
		{amount: "184467440737095516.17", ok: false},
		{amount: "-184467440737095516.17", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, ok := ToMinorUnits(decimal.RequireFromString(tt.amount))
			if ok != tt.ok || got != tt.want {
				t.Fatalf("ToMinorUnits(%s) = %d, %v; want %d, %v", tt.amount, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPaymentUnmarshalJSON_ReadsLegacyRecord(t *testing.T) {
	raw := []byte(`{"id":2,"userId":7,"amount":19.99,"description":"Poster","currency":"usd","paymentIntentId":"pi_legacy_2","status":"succeeded","createdAt":"2024-03-01T12:00:00.000Z","paidAt":"2024-03-01T12:01:00.000Z"}`)

	var p Payment
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal legacy record: %v", err)
	}
	if p.UserID != "7" || p.ProviderIntentID != "pi_legacy_2" {
		t.Fatalf("unexpected identity fields: %+v", p)
	}
	if p.AmountMinor != 1999 || !p.Amount.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("unexpected amounts: %s / %d", p.Amount, p.AmountMinor)
	}
	if p.Status != StatusSucceeded || p.PaidAt == nil {
		t.Fatalf("unexpected status fields: %+v", p)
	}
}

func TestPaymentUnmarshalJSON_CurrentLayoutRoundTrips(t *testing.T) {
	in := Payment{
		ID:               3,
		UserID:           "user-3",
		Amount:           decimal.RequireFromString("5.00"),
		AmountMinor:      500,
		Currency:         "eur",
		ProviderIntentID: "pi_3",
		Status:           StatusPending,
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Payment
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.UserID != "user-3" || out.ProviderIntentID != "pi_3" || out.AmountMinor != 500 {
		t.Fatalf("unexpected payment: %+v", out)
	}
}

func TestPaymentUnmarshalJSON_RejectsBadUserID(t *testing.T) {
	var p Payment
	if err := json.Unmarshal([]byte(`{"id":1,"userId":{"nested":true}}`), &p); err == nil {
		t.Fatal("expected error for object userId")
	}
}
