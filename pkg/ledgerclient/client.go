package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/errors"
)

const (
	apiKeyHeader               = "X-API-Key"
	idempotencyHeader          = "Idempotency-Key"
	responseBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("ledger base url is required")

// Receipt is the ledger's confirmation that a fingerprint was anchored.
type Receipt struct {
	Reference   string    `json:"reference"`
	OrderID     string    `json:"order_id"`
	Fingerprint string    `json:"fingerprint"`
	BlockNumber int64     `json:"block_number"`
	Network     string    `json:"network,omitempty"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// SubmitRequest anchors one settlement fingerprint.
type SubmitRequest struct {
	OrderID        string          `json:"order_id"`
	Fingerprint    string          `json:"fingerprint"`
	Network        string          `json:"network,omitempty"`
	Settlement     json.RawMessage `json:"settlement,omitempty"`
	IdempotencyKey string          `json:"-"`
}

// Client talks to the external append-only ledger over JSON/HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	network    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

func WithNetwork(network string) Option {
	return func(c *Client) {
		c.network = strings.TrimSpace(network)
	}
}

// NewClient builds a ledger client for baseURL. The API key is optional for local ledgers.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{
		baseURL:    trimmed,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Submit anchors a fingerprint. Repeating a request with the same idempotency key
// returns the original receipt.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Receipt, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger client not configured")
	}
	if strings.TrimSpace(req.OrderID) == "" || strings.TrimSpace(req.Fingerprint) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and fingerprint are required")
	}
	if req.Network == "" {
		req.Network = c.network
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal ledger submission")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("v1/anchors"), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build ledger submission")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(idempotencyHeader, req.IdempotencyKey)
	}

	var receipt Receipt
	if err := c.do(httpReq, "submit anchor", &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Get loads a receipt by the reference the ledger returned on submit.
func (c *Client) Get(ctx context.Context, reference string) (*Receipt, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger client not configured")
	}
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger reference is required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("v1/anchors/"+url.PathEscape(trimmed)), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build ledger lookup")
	}
	var receipt Receipt
	if err := c.do(httpReq, "get anchor", &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// FindByOrder returns the receipt anchored for an order, or nil when none exists.
func (c *Client) FindByOrder(ctx context.Context, orderID string) (*Receipt, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger client not configured")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	query := url.Values{"order_id": []string{trimmed}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("v1/anchors")+"?"+query.Encode(), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build ledger search")
	}
	var receipt Receipt
	if err := c.do(httpReq, "find anchor", &receipt); err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &receipt, nil
}

// Ping reports whether the ledger answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "ledger client not configured")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("health"), nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build ledger ping")
	}
	return c.do(httpReq, "ping ledger", nil)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeExternalUnavailable, err, op+" request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return pkgerrors.Wrap(codeForStatus(resp.StatusCode), cause, op+" failed")
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeExternalUnavailable, err, "decode "+op+" response")
	}
	return nil
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return pkgerrors.CodeExternalUnavailable
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	default:
		return pkgerrors.CodeDependency
	}
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}
