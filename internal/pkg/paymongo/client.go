package paymongo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultAPIBaseURL = "https://api.paymongo.com/v1"

var errWebhookIDRequired = errors.New("webhook id is required")

// Client talks to the PayMongo REST API. It is used by operator tooling only;
// the webhook hot path never calls out.
type Client struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("paymongo request failed: status=%d code=%s detail=%s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("paymongo request failed: status=%d body=%s", e.StatusCode, e.Body)
}

// Webhook is a webhook subscription registered at the gateway.
type Webhook struct {
	ID        string
	URL       string
	Status    string
	Events    []string
	LiveMode  bool
	SecretKey string
	CreatedAt time.Time
}

// PaymentIntent is the read-only gateway view used for drift checks.
type PaymentIntent struct {
	ID          string
	Status      string
	Amount      int64
	Currency    string
	Description string
	PaymentIDs  []string
	LastPayment *Resource
}

// NewClient creates a client authenticating with the account secret key.
func NewClient(secretKey, apiBaseURL string) *Client {
	if strings.TrimSpace(apiBaseURL) == "" {
		apiBaseURL = DefaultAPIBaseURL
	}
	return &Client{
		SecretKey:  strings.TrimSpace(secretKey),
		APIBaseURL: strings.TrimRight(strings.TrimSpace(apiBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type rawWebhook struct {
	ID         string `json:"id"`
	Attributes struct {
		URL       string   `json:"url"`
		Status    string   `json:"status"`
		Events    []string `json:"events"`
		LiveMode  bool     `json:"livemode"`
		SecretKey string   `json:"secret_key"`
		CreatedAt int64    `json:"created_at"`
	} `json:"attributes"`
}

func (w rawWebhook) normalize() Webhook {
	out := Webhook{
		ID:        w.ID,
		URL:       w.Attributes.URL,
		Status:    w.Attributes.Status,
		Events:    w.Attributes.Events,
		LiveMode:  w.Attributes.LiveMode,
		SecretKey: w.Attributes.SecretKey,
	}
	if w.Attributes.CreatedAt > 0 {
		out.CreatedAt = time.Unix(w.Attributes.CreatedAt, 0).UTC()
	}
	return out
}

// ListWebhooks returns all webhook subscriptions of the account.
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var raw struct {
		Data []rawWebhook `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/webhooks", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Webhook, 0, len(raw.Data))
	for _, w := range raw.Data {
		out = append(out, w.normalize())
	}
	return out, nil
}

// RetrieveWebhook loads a single subscription.
func (c *Client) RetrieveWebhook(ctx context.Context, id string) (*Webhook, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errWebhookIDRequired
	}
	return c.webhookCall(ctx, http.MethodGet, "/webhooks/"+id, nil)
}

// CreateWebhook registers url for events. The returned Webhook carries the
// signing secret, which is only shown once.
func (c *Client) CreateWebhook(ctx context.Context, url string, events []string) (*Webhook, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("webhook url is required")
	}
	if len(events) == 0 {
		return nil, errors.New("at least one event is required")
	}
	body := map[string]interface{}{
		"data": map[string]interface{}{
			"attributes": map[string]interface{}{
				"url":    url,
				"events": events,
			},
		},
	}
	return c.webhookCall(ctx, http.MethodPost, "/webhooks", body)
}

// EnableWebhook resumes deliveries to a disabled subscription.
func (c *Client) EnableWebhook(ctx context.Context, id string) (*Webhook, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errWebhookIDRequired
	}
	return c.webhookCall(ctx, http.MethodPost, "/webhooks/"+id+"/enable", nil)
}

// DisableWebhook stops deliveries without deleting the subscription.
func (c *Client) DisableWebhook(ctx context.Context, id string) (*Webhook, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errWebhookIDRequired
	}
	return c.webhookCall(ctx, http.MethodPost, "/webhooks/"+id+"/disable", nil)
}

// DeleteWebhook removes a subscription.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errWebhookIDRequired
	}
	return c.do(ctx, http.MethodDelete, "/webhooks/"+id, nil, nil)
}

func (c *Client) webhookCall(ctx context.Context, method, path string, body interface{}) (*Webhook, error) {
	var raw struct {
		Data rawWebhook `json:"data"`
	}
	if err := c.do(ctx, method, path, body, &raw); err != nil {
		return nil, err
	}
	if raw.Data.ID == "" {
		return nil, errors.New("paymongo webhook response missing id")
	}
	w := raw.Data.normalize()
	return &w, nil
}

// RetrievePaymentIntent loads the gateway status of a payment intent.
func (c *Client) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("payment intent id is required")
	}

	var raw struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				Amount      int64          `json:"amount"`
				Currency    string         `json:"currency"`
				Description string         `json:"description"`
				Status      string         `json:"status"`
				Payments    []*rawResource `json:"payments"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/payment_intents/"+id, nil, &raw); err != nil {
		return nil, err
	}
	if raw.Data.ID == "" {
		return nil, errors.New("paymongo payment intent response missing id")
	}

	a := raw.Data.Attributes
	out := &PaymentIntent{
		ID:          raw.Data.ID,
		Status:      a.Status,
		Amount:      a.Amount,
		Currency:    strings.ToUpper(a.Currency),
		Description: a.Description,
	}
	for _, p := range a.Payments {
		if p == nil {
			continue
		}
		n := p.normalize()
		out.PaymentIDs = append(out.PaymentIDs, n.ID)
		out.LastPayment = &n
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if c.SecretKey == "" {
		return errors.New("PAYMONGO_SECRET_KEY is not configured")
	}

	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.SecretKey, "")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var raw struct {
		Errors []struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &raw); err == nil && len(raw.Errors) > 0 {
		apiErr.Code = raw.Errors[0].Code
		apiErr.Detail = raw.Errors[0].Detail
	}
	return apiErr
}
