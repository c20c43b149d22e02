package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recognized webhook event types.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventIntentCanceled  = "payment_intent.canceled"
)

var (
	// ErrSignatureInvalid is returned when the webhook signature does not
	// match the payload.
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrSignatureExpired is returned when the signed timestamp falls
	// outside the tolerance window.
	ErrSignatureExpired = errors.New("webhook signature timestamp outside tolerance")

	// ErrSecretMissing is returned when no webhook secret is configured.
	ErrSecretMissing = errors.New("webhook secret not configured")
)

// signatureTolerance bounds how old a signed payload may be. Redelivered
// events are re-signed by the sender, so a tight window is safe.
const signatureTolerance = 5 * time.Minute

// Event is a verified processor notification.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData wraps the object the event describes.
type EventData struct {
	Object IntentObject `json:"object"`
}

// IntentObject is the payment intent snapshot carried by an event.
type IntentObject struct {
	ID               string        `json:"id"`
	Status           string        `json:"status"`
	LastPaymentError *PaymentError `json:"last_payment_error"`
}

// PaymentError is the processor's description of a failed charge.
type PaymentError struct {
	Message string `json:"message"`
}

// ConstructEvent verifies the signature header against the raw payload and
// parses the event. The header carries `t=<unix>,v1=<hex>` where v1 is
// HMAC-SHA256 over "<t>.<payload>" keyed by the shared secret.
func ConstructEvent(payload []byte, sigHeader, secret string) (*Event, error) {
	return constructEventAt(payload, sigHeader, secret, time.Now())
}

func constructEventAt(payload []byte, sigHeader, secret string, now time.Time) (*Event, error) {
	if secret == "" {
		return nil, ErrSecretMissing
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	if now.Sub(time.Unix(timestamp, 0)) > signatureTolerance {
		return nil, ErrSignatureExpired
	}

	expected := computeSignature(timestamp, payload, secret)
	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrSignatureInvalid
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decoding webhook payload: %w", err)
	}

	return &event, nil
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		timestamp  int64 = -1
		signatures []string
	)

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, ErrSignatureInvalid
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp < 0 || len(signatures) == 0 {
		return 0, nil, ErrSignatureInvalid
	}

	return timestamp, signatures, nil
}

func computeSignature(timestamp int64, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayload produces a signature header for the given payload. Used by the
// test suite and local webhook tooling to emit verifiable events.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature(ts, payload, secret))
}
