/**
 * @description
 * This file contains the HTTP handlers for the payment-service's API endpoints.
 * Handlers parse requests, call the application service and map its errors onto
 * HTTP status codes.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/store: For service logic and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Yousefjoo17/stripe-backend/internal/app"
	"github.com/Yousefjoo17/stripe-backend/internal/domain"
	"github.com/Yousefjoo17/stripe-backend/internal/store"
)

const (
	webhookBodyLimit = 1 << 20
	intentBodyLimit  = 64 << 10
)

// PaymentHandlers holds the application service that handlers will use.
type PaymentHandlers struct {
	service *app.Service
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service) *PaymentHandlers {
	return &PaymentHandlers{service: service}
}

type createIntentRequest struct {
	Amount            json.RawMessage `json:"amount"`
	Currency          string          `json:"currency"`
	Description       string          `json:"description"`
	PaymentMethodType string          `json:"paymentMethodType"`
	ProductID         *int64          `json:"productId"`
}

type createIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
	PaymentID    int64  `json:"paymentId"`
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

// CreateIntentHandler starts a payment for the authenticated caller.
func (h *PaymentHandlers) CreateIntentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, intentBodyLimit)
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, app.ErrInvalidAmount.Error())
		return
	}

	result, err := h.service.CreateIntent(r.Context(), app.CreateIntentInput{
		UserID:            userID,
		Amount:            amount,
		Currency:          req.Currency,
		Description:       req.Description,
		PaymentMethodType: req.PaymentMethodType,
		ProductID:         req.ProductID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createIntentResponse{
		ClientSecret: result.ClientSecret,
		PaymentID:    result.PaymentID,
	})
}

// WebhookHandler receives provider callbacks. The body is passed on byte-for-byte
// because the signature covers the raw payload.
func (h *PaymentHandlers) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	// Reconciliation runs to completion even if the provider hangs up.
	result, err := h.service.HandleCallback(context.WithoutCancel(r.Context()), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, app.ErrInvalidSignature) {
			writeError(w, http.StatusBadRequest, "Webhook Error: invalid signature")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to process webhook")
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Received: true, Status: string(result.Outcome)})
}

// ListPaymentsHandler returns the caller's payments.
func (h *PaymentHandlers) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	payments, err := h.service.ListPayments(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

// GetPaymentHandler returns one of the caller's payments.
func (h *PaymentHandlers) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "Payment not found")
		return
	}

	payment, err := h.service.GetPayment(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func parseAmount(raw json.RawMessage) (*decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, nil
	}
	s = strings.Trim(s, `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	var rateLimited *app.RateLimitError
	switch {
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidCurrency),
		errors.Is(err, app.ErrMissingUser),
		errors.Is(err, app.ErrProductNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(rateLimited.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, app.ErrRateLimited.Error())
	case errors.Is(err, app.ErrProvider):
		writeError(w, http.StatusBadGateway, "Payment provider unavailable, please retry")
	case errors.Is(err, store.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "Payment not found")
	default:
		log.Printf("level=error component=api msg=\"request failed\" err=%v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
