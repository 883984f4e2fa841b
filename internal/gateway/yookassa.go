package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultBaseURL = "https://api.yookassa.ru/v3"

// Payment statuses as reported by YooKassa.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// Webhook event names.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentCanceled  = "payment.canceled"
)

var ErrUnknownEvent = errors.New("unknown webhook event")

type Client struct {
	shopID     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

func NewClient(shopID, secretKey string) *Client {
	return &Client{
		shopID:    shopID,
		secretKey: secretKey,
		baseURL:   DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithBaseURL points the client at a different API endpoint. Used in tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type createPaymentRequest struct {
	Amount       amount                 `json:"amount"`
	Capture      bool                   `json:"capture"`
	Confirmation map[string]interface{} `json:"confirmation"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

type paymentResponse struct {
	ID           string                 `json:"id"`
	Status       string                 `json:"status"`
	Paid         bool                   `json:"paid"`
	Amount       amount                 `json:"amount"`
	Description  string                 `json:"description"`
	Confirmation map[string]interface{} `json:"confirmation"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// Payment is the gateway's view of a payment.
type Payment struct {
	ID              string
	Status          string
	ConfirmationURL string
	AmountKopeks    int64
	Metadata        map[string]interface{}
}

// CreatePayment registers a redirect-confirmation payment and returns its
// id and the hosted checkout URL. amountKopeks is converted to the
// "990.00" form YooKassa expects.
func (c *Client) CreatePayment(ctx context.Context, amountKopeks int64, description, returnURL string, metadata map[string]interface{}) (*Payment, error) {
	reqBody := createPaymentRequest{
		Amount: amount{
			Value:    formatKopeks(amountKopeks),
			Currency: "RUB",
		},
		Capture: true,
		Confirmation: map[string]interface{}{
			"type":       "redirect",
			"return_url": returnURL,
		},
		Description: description,
		Metadata:    metadata,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("yookassa: marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.basicAuth())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.NewString())

	return c.doPayment(req)
}

// GetPayment fetches the current status of a payment by its gateway id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.basicAuth())

	return c.doPayment(req)
}

func (c *Client) doPayment(req *http.Request) (*Payment, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yookassa: request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yookassa: read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yookassa: API error: %s, body: %s", resp.Status, string(body))
	}

	var pr paymentResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("yookassa: decode response: %v", err)
	}
	return pr.toPayment(), nil
}

func (pr *paymentResponse) toPayment() *Payment {
	p := &Payment{
		ID:           pr.ID,
		Status:       pr.Status,
		AmountKopeks: parseKopeks(pr.Amount.Value),
		Metadata:     pr.Metadata,
	}
	if pr.Confirmation != nil {
		if u, ok := pr.Confirmation["confirmation_url"].(string); ok {
			p.ConfirmationURL = u
		}
	}
	return p
}

func (c *Client) basicAuth() string {
	auth := fmt.Sprintf("%s:%s", c.shopID, c.secretKey)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(auth))
}

// WebhookEvent is a payment status notification delivered to our webhook
// endpoint. It carries the same information the polling path gets from
// GetPayment.
type WebhookEvent struct {
	Event   string
	Payment Payment
}

type webhookBody struct {
	Event  string          `json:"event"`
	Object paymentResponse `json:"object"`
}

// ParseWebhook decodes a YooKassa notification body. Events other than
// payment.succeeded / payment.canceled return ErrUnknownEvent.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("yookassa: decode webhook: %v", err)
	}
	switch wb.Event {
	case EventPaymentSucceeded, EventPaymentCanceled:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, wb.Event)
	}
	if strings.TrimSpace(wb.Object.ID) == "" {
		return nil, fmt.Errorf("yookassa: webhook without payment id")
	}
	return &WebhookEvent{
		Event:   wb.Event,
		Payment: *wb.Object.toPayment(),
	}, nil
}

func formatKopeks(kopeks int64) string {
	return fmt.Sprintf("%d.%02d", kopeks/100, kopeks%100)
}

func parseKopeks(value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	intPart, fracPart, _ := strings.Cut(value, ".")
	rub, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0
	}
	kop := int64(0)
	if fracPart != "" {
		if len(fracPart) > 2 {
			fracPart = fracPart[:2]
		}
		for len(fracPart) < 2 {
			fracPart += "0"
		}
		kop, _ = strconv.ParseInt(fracPart, 10, 64)
	}
	return rub*100 + kop
}
