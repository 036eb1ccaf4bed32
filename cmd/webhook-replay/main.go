/**
 * @description
 * Script to replay a signed payment intent webhook against a running payment-service.
 * Useful for settling a pending payment locally without the Stripe CLI.
 *
 * Usage:
 *   go run ./cmd/webhook-replay <intent-id> [succeeded|failed] [user-id]
 *
 * Example:
 *   go run ./cmd/webhook-replay pi_3PxyzAbc succeeded
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files.
 * - github.com/stripe/stripe-go/v82/webhook: For signing the payload.
 * - Environment variables: STRIPE_WEBHOOK_SECRET, WEBHOOK_URL
 */

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v82/webhook"
)

const defaultWebhookURL = "http://localhost:8080/payments/webhook"

type eventEnvelope struct {
	ID      string    `json:"id"`
	Object  string    `json:"object"`
	Type    string    `json:"type"`
	Created int64     `json:"created"`
	Data    eventData `json:"data"`
}

type eventData struct {
	Object intentObject `json:"object"`
}

type intentObject struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	LastPaymentError *paymentError     `json:"last_payment_error,omitempty"`
}

type paymentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func main() {
	if len(os.Args) < 2 || len(os.Args) > 4 {
		fmt.Println("Usage: go run ./cmd/webhook-replay <intent-id> [succeeded|failed] [user-id]")
		fmt.Println("Example: go run ./cmd/webhook-replay pi_3PxyzAbc succeeded")
		os.Exit(1)
	}

	intentID := os.Args[1]
	outcome := "succeeded"
	if len(os.Args) >= 3 {
		outcome = os.Args[2]
	}
	userID := ""
	if len(os.Args) == 4 {
		userID = os.Args[3]
	}

	// Missing files are fine; the environment may already be set.
	_ = godotenv.Load("../.env", ".env")

	secret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("STRIPE_WEBHOOK_SECRET environment variable is required")
	}
	target := os.Getenv("WEBHOOK_URL")
	if target == "" {
		target = defaultWebhookURL
		fmt.Println("Using default webhook URL:", target)
	}

	payload, err := buildEvent(intentID, outcome, userID, time.Now())
	if err != nil {
		log.Fatalf("Failed to build event: %v", err)
	}

	fmt.Printf("Event payload:\n%s\n", payload)
	fmt.Printf("\nSend this %s event for %s to %s? (yes/no): ", outcome, intentID, target)
	var confirmation string
	fmt.Scanln(&confirmation)
	if confirmation != "yes" {
		fmt.Println("Replay cancelled.")
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, body, err := deliver(ctx, target, payload, secret)
	if err != nil {
		log.Fatalf("Failed to deliver webhook: %v", err)
	}
	fmt.Printf("Response %d: %s\n", status, bytes.TrimSpace(body))
	if status != http.StatusOK {
		os.Exit(1)
	}
}

// buildEvent renders a payment_intent event for the given outcome.
func buildEvent(intentID, outcome, userID string, now time.Time) ([]byte, error) {
	if intentID == "" {
		return nil, fmt.Errorf("intent id is required")
	}

	obj := intentObject{ID: intentID, Object: "payment_intent"}
	if userID != "" {
		obj.Metadata = map[string]string{"user_id": userID}
	}

	var eventType string
	switch outcome {
	case "succeeded":
		eventType = "payment_intent.succeeded"
		obj.Status = "succeeded"
	case "failed":
		eventType = "payment_intent.payment_failed"
		obj.Status = "requires_payment_method"
		obj.LastPaymentError = &paymentError{Code: "card_declined", Message: "Your card was declined."}
	default:
		return nil, fmt.Errorf("unknown outcome %q, expected succeeded or failed", outcome)
	}

	return json.MarshalIndent(eventEnvelope{
		ID:      "evt_replay_" + uuid.NewString(),
		Object:  "event",
		Type:    eventType,
		Created: now.Unix(),
		Data:    eventData{Object: obj},
	}, "", "  ")
}

// deliver signs payload with secret and posts it to target.
func deliver(ctx context.Context, target string, payload []byte, secret string) (int, []byte, error) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
