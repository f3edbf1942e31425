package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds checkout provider API configuration
type Config struct {
	BaseURL    string
	MerchantID string
	SecretKey  string
	Timeout    time.Duration
}

// Client talks to the hosted checkout provider.
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a new checkout provider client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}
}

// CreateSessionRequest represents session creation request
type CreateSessionRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	OrderID     string  `json:"order_id"`
	Description string  `json:"description"`
	ReturnURL   string  `json:"return_url"`
	CallbackURL string  `json:"callback_url"`
}

// Session represents a provider checkout session
type Session struct {
	ID         string  `json:"session_id"`
	PaymentURL string  `json:"payment_url"`
	PaymentRef string  `json:"payment_ref,omitempty"`
	AmountPaid float64 `json:"amount_paid,omitempty"`
	Status     Status  `json:"status"`
}

// Status represents a provider-side session status
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

// CreateSession opens a hosted checkout session and returns the redirect URL
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("validation error: amount must be > 0")
	}
	if req.OrderID == "" {
		return nil, fmt.Errorf("validation error: order_id is required")
	}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", req, &session); err != nil {
		return nil, fmt.Errorf("checkout create session failed: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("checkout create session failed: empty session id")
	}

	return &session, nil
}

// GetSession fetches the provider-side state of a session. The reconciliation
// sweep uses this to confirm payments whose webhook never arrived.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("validation error: session id is required")
	}

	var session Session
	path := "/v1/sessions/" + url.PathEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &session); err != nil {
		return nil, fmt.Errorf("checkout get session failed: %w", err)
	}

	return &session, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Merchant-Id", c.config.MerchantID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Signature", GenerateSignature(payload, c.config.SecretKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
