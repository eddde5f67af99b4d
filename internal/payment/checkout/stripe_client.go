// Package checkout creates hosted Stripe Checkout Sessions over the REST
// API. The client sends form-encoded requests directly; no vendor SDK.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/stagepass/internal/config"
	paymentdomain "github.com/smallbiznis/stagepass/internal/payment/domain"
)

type stripeSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type StripeClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewStripeClient(cfg config.Config) *StripeClient {
	return &StripeClient{
		apiKey:  strings.TrimSpace(cfg.Payment.StripeAPIKey),
		baseURL: "https://api.stripe.com",
		client:  &http.Client{Timeout: 12 * time.Second},
	}
}

// CreateSession creates a payment-mode checkout session. The order id is the
// idempotency key, so retrying a failed call cannot open two sessions for
// one order, and it rides in metadata so the webhook can correlate back.
func (c *StripeClient) CreateSession(ctx context.Context, req paymentdomain.CheckoutSessionRequest) (paymentdomain.CheckoutSession, error) {
	if req.OrderID == 0 || len(req.LineItems) == 0 {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrInvalidOrderRef
	}

	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("success_url", req.SuccessURL)
	values.Set("cancel_url", req.CancelURL)
	values.Set("metadata[order_id]", req.OrderID.String())
	values.Set("metadata[event_id]", req.EventID.String())
	values.Set("metadata[user_id]", req.UserID.String())
	if !req.ExpiresAt.IsZero() {
		values.Set("expires_at", strconv.FormatInt(req.ExpiresAt.Unix(), 10))
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	for i, item := range req.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		values.Set(prefix+"[quantity]", strconv.FormatInt(item.Quantity, 10))
		values.Set(prefix+"[price_data][currency]", currency)
		values.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitPrice, 10))
		values.Set(prefix+"[price_data][product_data][name]", item.Name)
	}

	session, err := c.doRequest(ctx, "/v1/checkout/sessions", values, "order:"+req.OrderID.String())
	if err != nil {
		return paymentdomain.CheckoutSession{}, err
	}
	return paymentdomain.CheckoutSession{ID: session.ID, RedirectURL: session.URL}, nil
}

func (c *StripeClient) doRequest(
	ctx context.Context,
	path string,
	values url.Values,
	idempotencyKey string,
) (stripeSession, error) {
	if c.apiKey == "" {
		return stripeSession{}, paymentdomain.ErrInvalidConfig
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return stripeSession{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return stripeSession{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil {
			return stripeSession{}, errors.New("stripe_request_failed")
		}
		message := strings.TrimSpace(stripeErr.Error.Message)
		if message == "" {
			message = "stripe_request_failed"
		}
		return stripeSession{}, errors.New(message)
	}

	var session stripeSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return stripeSession{}, err
	}
	if session.ID == "" {
		return stripeSession{}, errors.New("stripe_response_invalid")
	}
	return session, nil
}
