// Package stripe is the HTTP adapter for the Stripe Connect transfers API.
package stripe

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

	"go.uber.org/zap"

	"contest-settlement/internal/provider"
)

const (
	defaultBaseURL = "https://api.stripe.com"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// Client creates transfers through POST /v1/transfers.
type Client struct {
	baseURL    string
	secretKey  string
	currency   string
	httpClient *http.Client
	log        *zap.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	SecretKey  string
	Currency   string // default usd
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewClient creates a new Client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		secretKey:  opts.SecretKey,
		currency:   opts.Currency,
		httpClient: opts.HTTPClient,
		log:        opts.Logger,
	}
}

type transferResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateTransfer sends one transfer. Provider failures are returned as a
// classified result; the error is only set when the request cannot be built.
func (c *Client) CreateTransfer(ctx context.Context, req provider.TransferRequest) (provider.TransferResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("currency", c.currency)
	form.Set("destination", req.Destination)
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", strings.NewReader(form.Encode()))
	if err != nil {
		return provider.TransferResult{}, fmt.Errorf("build transfer request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		result := provider.Classify(err)
		c.log.Warn("stripe transfer request failed",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("reason", result.Reason),
			zap.Error(err))
		return result, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out transferResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.ID == "" {
			// The money may have moved; a retry with the same key returns the original transfer.
			c.log.Warn("stripe transfer response unreadable",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err))
			return provider.Classify(err), nil
		}
		return provider.Succeeded(out.ID), nil
	}

	apiErr := decodeError(resp)
	result := provider.Classify(apiErr)
	c.log.Warn("stripe transfer rejected",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.Int("status", apiErr.StatusCode),
		zap.String("code", apiErr.Code),
		zap.String("reason", result.Reason))
	return result, nil
}

func decodeError(resp *http.Response) *provider.APIError {
	apiErr := &provider.APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		apiErr.Message = err.Error()
		return apiErr
	}

	var out errorResponse
	if err := json.Unmarshal(body, &out); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	apiErr.Type = out.Error.Type
	apiErr.Code = out.Error.Code
	apiErr.Message = out.Error.Message
	return apiErr
}
