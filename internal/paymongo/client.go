// Package paymongo is a thin client for the PayMongo REST API, covering
// only the calls the donation flow needs: sources for redirect-based
// e-wallets, payment intents for card/PayMaya, and payments captured
// against chargeable sources.
package paymongo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the PayMongo API using the account's secret key.
type Client struct {
	BaseURL   string
	SecretKey string
	HTTP      *http.Client
}

// NewClient builds a client with a fixed request timeout so a stalled
// gateway call surfaces as a retryable error instead of hanging a handler.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTP:      &http.Client{Timeout: 15 * time.Second},
	}
}

// APIError is a non-2xx response from PayMongo.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paymongo: status %d: %s", e.StatusCode, e.Detail)
}

// Source is a redirect-based payment object (e.g. GCash). It must reach
// status "chargeable" before a payment can be captured against it.
type Source struct {
	ID          string
	Status      string
	CheckoutURL string
}

// Payment is the capture result against a chargeable source.
type Payment struct {
	ID     string
	Status string
}

// PaymentIntent carries its own lifecycle status and may expose a
// redirect URL in its next action after a payment method is attached.
type PaymentIntent struct {
	ID            string
	Status        string
	ClientKey     string
	NextActionURL string
}

// PaymentMethod is the payment instrument attached to an intent.
type PaymentMethod struct {
	ID string
}

type RedirectURLs struct {
	Success string
	Failed  string
}

type CreateSourceRequest struct {
	// Amount is in minor units (centavos).
	Amount   int64
	Currency string
	Type     string
	Redirect RedirectURLs
	Metadata map[string]string
}

type CreatePaymentRequest struct {
	Amount      int64
	Currency    string
	Description string
	SourceID    string
}

type CreatePaymentIntentRequest struct {
	Amount               int64
	Currency             string
	PaymentMethodAllowed []string
	RequestThreeDSecure  string
	Description          string
	Metadata             map[string]string
}

type AttachPaymentMethodRequest struct {
	IntentID        string
	PaymentMethodID string
	ReturnURL       string
}

// resource is the JSON:API-ish envelope PayMongo wraps everything in.
type resource struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

type envelope struct {
	Data resource `json:"data"`
}

type errorEnvelope struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (c *Client) CreateSource(ctx context.Context, req CreateSourceRequest) (*Source, error) {
	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"amount":   req.Amount,
				"currency": req.Currency,
				"type":     req.Type,
				"redirect": map[string]string{
					"success": req.Redirect.Success,
					"failed":  req.Redirect.Failed,
				},
				"metadata": req.Metadata,
			},
		},
	}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/sources", body, &env); err != nil {
		return nil, err
	}
	return sourceFrom(env.Data), nil
}

func (c *Client) GetSource(ctx context.Context, id string) (*Source, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/sources/"+id, nil, &env); err != nil {
		return nil, err
	}
	return sourceFrom(env.Data), nil
}

func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"amount":      req.Amount,
				"currency":    req.Currency,
				"description": req.Description,
				"source": map[string]string{
					"id":   req.SourceID,
					"type": "source",
				},
			},
		},
	}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/payments", body, &env); err != nil {
		return nil, err
	}
	return &Payment{ID: env.Data.ID, Status: attrString(env.Data.Attributes, "status")}, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req CreatePaymentIntentRequest) (*PaymentIntent, error) {
	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"amount":                 req.Amount,
				"currency":               req.Currency,
				"payment_method_allowed": req.PaymentMethodAllowed,
				"payment_method_options": map[string]any{
					"card": map[string]string{"request_three_d_secure": req.RequestThreeDSecure},
				},
				"description": req.Description,
				"metadata":    req.Metadata,
			},
		},
	}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/payment_intents", body, &env); err != nil {
		return nil, err
	}
	return intentFrom(env.Data), nil
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/payment_intents/"+id, nil, &env); err != nil {
		return nil, err
	}
	return intentFrom(env.Data), nil
}

func (c *Client) CreatePaymentMethod(ctx context.Context, methodType string) (*PaymentMethod, error) {
	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{"type": methodType},
		},
	}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/payment_methods", body, &env); err != nil {
		return nil, err
	}
	return &PaymentMethod{ID: env.Data.ID}, nil
}

func (c *Client) AttachPaymentMethod(ctx context.Context, req AttachPaymentMethodRequest) (*PaymentIntent, error) {
	body := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"payment_method": req.PaymentMethodID,
				"return_url":     req.ReturnURL,
			},
		},
	}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/payment_intents/"+req.IntentID+"/attach", body, &env); err != nil {
		return nil, err
	}
	return intentFrom(env.Data), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	// PayMongo authenticates with HTTP basic auth, secret key as username.
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.SecretKey+":")))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("paymongo: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("paymongo: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: "request rejected"}
		var ee errorEnvelope
		if json.Unmarshal(raw, &ee) == nil && len(ee.Errors) > 0 {
			apiErr.Detail = ee.Errors[0].Detail
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("paymongo: decode response: %w", err)
		}
	}
	return nil
}

func sourceFrom(r resource) *Source {
	s := &Source{ID: r.ID, Status: attrString(r.Attributes, "status")}
	if redirect, ok := r.Attributes["redirect"].(map[string]any); ok {
		s.CheckoutURL = stringOf(redirect["checkout_url"])
	}
	return s
}

func intentFrom(r resource) *PaymentIntent {
	pi := &PaymentIntent{
		ID:        r.ID,
		Status:    attrString(r.Attributes, "status"),
		ClientKey: attrString(r.Attributes, "client_key"),
	}
	if na, ok := r.Attributes["next_action"].(map[string]any); ok {
		if redirect, ok := na["redirect"].(map[string]any); ok {
			pi.NextActionURL = stringOf(redirect["url"])
		}
	}
	return pi
}

func attrString(attrs map[string]any, key string) string {
	return stringOf(attrs[key])
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
