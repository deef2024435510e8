// Package sink is the outbound client for the downstream storefront API.
// Every call goes through a single pacing gate (minimum spacing between
// calls) and a bounded exponential-backoff retry on transient failures, so
// no caller can exceed the sink's rate limit regardless of queue pressure.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// maxResponseSize limits response reads to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024

// Options configures the HTTP client.
type Options struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration // per-request timeout
	MinInterval time.Duration // minimum spacing between outbound calls
	BackoffBase time.Duration // base for exponential backoff on transient errors
	MaxAttempts int           // attempt ceiling per call, including the first
	SearchDays  int           // lookback window for FindByExternalRef
	SearchLimit int           // max orders scanned by FindByExternalRef
}

// Client is the rate-limited HTTP implementation of API.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	minInterval time.Duration
	backoffBase time.Duration
	maxAttempts int
	searchDays  int
	searchLimit int
	logger      *zap.Logger

	mu       sync.Mutex
	lastCall time.Time
	nowFunc  func() time.Time
	sleep    func(time.Duration)
}

// NewClient builds a Client. All pacing state lives on the instance; callers
// share one Client so the spacing discipline holds process-wide.
func NewClient(opts Options, logger *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     opts.BaseURL,
		token:       opts.Token,
		httpClient:  &http.Client{Timeout: timeout},
		minInterval: opts.MinInterval,
		backoffBase: opts.BackoffBase,
		maxAttempts: opts.MaxAttempts,
		searchDays:  opts.SearchDays,
		searchLimit: opts.SearchLimit,
		logger:      logger,
		nowFunc:     time.Now,
		sleep:       time.Sleep,
	}
}

// CreateOrder creates a storefront order carrying the idempotency tag.
func (c *Client) CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodPost, "/orders", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateFinancialStatus applies a financial status transition to an order.
func (c *Client) UpdateFinancialStatus(ctx context.Context, orderID, status string) (*Order, error) {
	body := map[string]string{"financial_status": status}
	var out Order
	if err := c.do(ctx, http.MethodPut, "/orders/"+orderID, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels an order on the sink.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodPost, "/orders/"+orderID+"/cancel", nil, nil, nil)
}

// RefundOrder refunds an order on the sink.
func (c *Client) RefundOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodPost, "/orders/"+orderID+"/refund", nil, nil, nil)
}

// FindByExternalRef scans recent orders for the idempotency tag.
func (c *Client) FindByExternalRef(ctx context.Context, externalRef string) (*Order, error) {
	query := url.Values{}
	query.Set("external_ref", externalRef)
	query.Set("limit", strconv.Itoa(c.searchLimit))
	if c.searchDays > 0 {
		min := c.nowFunc().AddDate(0, 0, -c.searchDays).UTC().Format(time.RFC3339)
		query.Set("created_at_min", min)
	}

	var out struct {
		Orders []Order `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders", query, nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Orders {
		if out.Orders[i].ExternalRef == externalRef {
			return &out.Orders[i], nil
		}
	}
	return nil, nil
}

// do issues one logical API call: pace, request, classify, retry.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	operation := func() error {
		c.pace()
		err := c.roundTrip(ctx, method, path, query, body, out)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.RateLimited() {
				// Honor the sink's pushback before the retry.
				c.sleep(c.minInterval)
				return err
			}
			if apiErr.Transient() {
				return err
			}
			return backoff.Permanent(err)
		}
		if IsTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		// Unclassified network errors get the retry benefit of the doubt.
		return err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.backoffBase
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.maxAttempts-1)), ctx)
	return backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		c.logger.Warn("sink call retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}

// pace delays until at least minInterval has passed since the previous call
// completed.
func (c *Client) pace() {
	c.mu.Lock()
	wait := c.minInterval - c.nowFunc().Sub(c.lastCall)
	c.mu.Unlock()
	if wait > 0 {
		c.sleep(wait)
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	defer func() {
		c.mu.Lock()
		c.lastCall = c.nowFunc()
		c.mu.Unlock()
	}()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sink request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var parsed struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(data, &parsed); jsonErr == nil {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Message
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
