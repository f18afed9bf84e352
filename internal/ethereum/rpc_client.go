package ethereum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"token-detector/internal/domain"
	"token-detector/internal/observability"
)

// Retry defaults.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client is an RPCClient over go-ethereum's JSON-RPC client. Transport
// failures, 429 and 5xx responses are retried with exponential backoff.
// JSON-RPC error objects (reverts, bad params) are returned immediately.
type Client struct {
	endpoint    string
	rpc         *rpc.Client
	httpClient  *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryDelay sets the first backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.retryDelay = d }
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.maxDelay = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// Dial creates a client for an http(s) or ws(s) endpoint. HTTP endpoints are
// not contacted until the first call.
func Dial(ctx context.Context, endpoint string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		endpoint:    endpoint,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}

	client, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(c.httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	c.rpc = client
	return c, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

var _ RPCClient = (*Client)(nil)

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// retryable reports whether a non-JSON-RPC failure is worth another attempt.
// Transport errors are; HTTP statuses other than 429 and 5xx are not.
func retryable(err error) bool {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return true
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	defer func(start time.Time) {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}(time.Now())

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay = min(time.Duration(float64(delay)*c.backoffMult), c.maxDelay)
		}

		err := c.rpc.CallContext(ctx, result, method, args...)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return &RPCError{Method: method, Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		}
		if !retryable(err) {
			return fmt.Errorf("%s: %w", method, err)
		}
		lastErr = err
	}
	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

// ChainID returns the node's chain id, normalized to lower-case 0x hex.
func (c *Client) ChainID(ctx context.Context) (string, error) {
	var result hexutil.Big
	if err := c.call(ctx, &result, "eth_chainId"); err != nil {
		return "", err
	}
	return domain.NormalizeChainID(result.String()), nil
}

// Call executes eth_call against the latest block and returns the raw return data.
func (c *Client) Call(ctx context.Context, msg CallMsg) ([]byte, error) {
	arg := map[string]any{
		"to":   msg.To,
		"data": hexutil.Bytes(msg.Data),
	}
	var result hexutil.Bytes
	if err := c.call(ctx, &result, "eth_call", arg, "latest"); err != nil {
		return nil, err
	}
	return result, nil
}
