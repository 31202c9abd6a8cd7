package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ahmadzakiakmal/iota-tx-service/server"
	"github.com/ahmadzakiakmal/iota-tx-service/service"
	"github.com/go-resty/resty/v2"
)

const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s (request %s)", e.StatusCode, e.Message, e.RequestID)
}

// Client talks to a running transaction service.
type Client struct {
	rc *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{rc: rc}
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var errBody errorBody
	req := c.rc.R().
		SetContext(ctx).
		SetError(&errBody)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if res.IsError() {
		msg := errBody.Error
		if msg == "" {
			msg = http.StatusText(res.StatusCode())
		}
		return &APIError{
			StatusCode: res.StatusCode(),
			Message:    msg,
			RequestID:  res.Header().Get(server.RequestIDHeader),
		}
	}
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) AddTransaction(ctx context.Context, envelope string, description *string) (*service.AddResult, error) {
	var out service.AddResult
	body := server.AddTransactionRequest{TxBytes: envelope, Description: description}
	if err := c.do(ctx, http.MethodPost, "/add_transaction", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTransaction(ctx context.Context, digest string) (*service.TransactionView, error) {
	var out service.TransactionView
	if err := c.do(ctx, http.MethodGet, "/transaction/"+digest, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListBySender(ctx context.Context, address string, limit int) ([]service.TransactionSummary, error) {
	var out struct {
		Transactions []service.TransactionSummary `json:"transactions"`
	}
	path := "/transactions/sender/" + address
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// DeriveAuthSignature returns the base64 generic signatures for a shared object.
func (c *Client) DeriveAuthSignature(ctx context.Context, address string) ([]string, error) {
	var out struct {
		Signature []string `json:"signature"`
	}
	if err := c.do(ctx, http.MethodGet, "/derive_auth_signature/"+address, nil, &out); err != nil {
		return nil, err
	}
	return out.Signature, nil
}
