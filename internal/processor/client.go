package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Intent is the processor-side authorization record for a specific amount.
type Intent struct {
	ID                 string   `json:"id"`
	ClientSecret       string   `json:"client_secret"`
	Status             string   `json:"status"`
	PaymentMethodTypes []string `json:"payment_method_types"`
	CustomerID         string   `json:"customer"`
}

// Client is the narrow interface to the payment processor.
type Client interface {
	// CreateIntent creates a remote payment intent for the given amount in
	// minor units.
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string, customerID string) (*Intent, error)
}

// HTTPClient talks to the processor's REST API.
type HTTPClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewHTTPClient creates a new processor client. All calls use the given
// timeout; a timeout surfaces as an error, never a hang.
func NewHTTPClient(baseURL, secretKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

// CreateIntent creates a remote payment intent.
func (c *HTTPClient) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string, customerID string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountMinor, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Add("payment_method_types[]", "card")
	for key, value := range metadata {
		form.Set("metadata["+key+"]", value)
	}
	if customerID != "" {
		form.Set("customer", customerID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("processor request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("processor returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var intent Intent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, fmt.Errorf("decoding processor response: %w", err)
	}

	return &intent, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
