package asaas

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

	"github.com/sony/gobreaker/v2"

	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/metrics"
)

const (
	breakerName        = "asaas"
	authHeader         = "access_token"
	defaultTimeout     = 15 * time.Second
	defaultFailures    = 5
	maxErrorBodyLength = 1 << 16
)

var (
	errAPIKeyRequired  = errors.New("asaas api key is required")
	errBaseURLRequired = errors.New("asaas base url is required")
	errLoggerRequired  = errors.New("asaas logger is required")
)

// Client exposes the gateway REST primitives with centralized auth, logging,
// circuit breaking and error mapping.
type Client struct {
	http          *http.Client
	apiKey        string
	baseURL       string
	webhookSecret string
	breaker       *gobreaker.CircuitBreaker[*rawResponse]
	metrics       *metrics.GatewayMetrics
	logger        *logger.Logger
}

type rawResponse struct {
	status int
	body   []byte
}

// Options override transport details, mostly for tests.
type Options struct {
	HTTPClient *http.Client
	Metrics    *metrics.GatewayMetrics
}

// NewClient initializes the gateway wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger, opts Options) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		http:          httpClient,
		apiKey:        apiKey,
		baseURL:       baseURL,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		metrics:       opts.Metrics,
		logger:        logg,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*rawResponse](c.breakerSettings(cfg))

	logg.Info(ctx, "asaas client initialized")
	return c, nil
}

func (c *Client) breakerSettings(cfg config.GatewayConfig) gobreaker.Settings {
	threshold := cfg.BreakerFailureThreshold
	if threshold == 0 {
		threshold = defaultFailures
	}
	return gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.BreakerHalfOpenRequests,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.metrics.SetBreakerState(name, float64(to))
			ctx := c.logger.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			c.logger.Warn(ctx, "gateway circuit breaker state changed")
		},
	}
}

// SigningSecret returns the webhook secret shared with the gateway.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// Customer operations
func (c *Client) CreateCustomer(ctx context.Context, params CustomerCreateParams) (*Customer, error) {
	var out Customer
	if err := c.do(ctx, "create_customer", http.MethodPost, "/customers", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Subscription operations
func (c *Client) CreateSubscription(ctx context.Context, params SubscriptionCreateParams) (*Subscription, error) {
	var out Subscription
	if err := c.do(ctx, "create_subscription", http.MethodPost, "/subscriptions", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var out Subscription
	path := "/subscriptions/" + url.PathEscape(subscriptionID)
	if err := c.do(ctx, "get_subscription", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) (*DeleteResponse, error) {
	var out DeleteResponse
	path := "/subscriptions/" + url.PathEscape(subscriptionID)
	if err := c.do(ctx, "delete_subscription", http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSubscriptionPayments returns the charges generated by a subscription,
// oldest first.
func (c *Client) ListSubscriptionPayments(ctx context.Context, subscriptionID string, limit int) (*PaymentList, error) {
	if limit <= 0 {
		limit = 10
	}
	var out PaymentList
	path := fmt.Sprintf("/subscriptions/%s/payments?limit=%d", url.PathEscape(subscriptionID), limit)
	if err := c.do(ctx, "list_subscription_payments", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Payment operations
func (c *Client) DeletePayment(ctx context.Context, paymentID string) (*DeleteResponse, error) {
	var out DeleteResponse
	path := "/payments/" + url.PathEscape(paymentID)
	if err := c.do(ctx, "delete_payment", http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	start := time.Now()
	c.log(ctx, "request", op, map[string]any{"method": method, "path": path})

	var payload []byte
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("asaas %s: encode request: %w", op, err)
		}
		payload = encoded
	}

	res, err := c.breaker.Execute(func() (*rawResponse, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			apiErr.Operation = op
			c.observe(ctx, op, "server_error", start, err)
			return apiErr
		}
		outcome := "transport_error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "circuit_open"
		}
		c.observe(ctx, op, outcome, start, err)
		return &TransportError{Operation: op, Err: err}
	}

	if res.status < 200 || res.status >= 300 {
		apiErr := decodeAPIError(op, res)
		c.observe(ctx, op, "client_error", start, apiErr)
		return apiErr
	}

	if out != nil && len(res.body) > 0 {
		if err := json.Unmarshal(res.body, out); err != nil {
			c.observe(ctx, op, "decode_error", start, err)
			return fmt.Errorf("asaas %s: decode response: %w", op, err)
		}
	}
	c.observe(ctx, op, "ok", start, nil)
	return nil
}

// roundTrip returns an error only for failures that should trip the breaker.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (*rawResponse, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(authHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength*16))
	if err != nil {
		return nil, err
	}
	res := &rawResponse{status: resp.StatusCode, body: raw}
	if probe := decodeAPIError("", res); probe.Temporary() {
		return res, probe
	}
	return res, nil
}

func decodeAPIError(op string, res *rawResponse) *APIError {
	apiErr := &APIError{Operation: op, StatusCode: res.status}
	if res.status >= 200 && res.status < 300 {
		return apiErr
	}
	var env errorEnvelope
	body := res.body
	if len(body) > maxErrorBodyLength {
		body = body[:maxErrorBodyLength]
	}
	if err := json.Unmarshal(body, &env); err == nil {
		apiErr.Errors = env.Errors
	}
	return apiErr
}

func (c *Client) observe(ctx context.Context, op, outcome string, start time.Time, err error) {
	took := time.Since(start)
	c.metrics.ObserveCall(op, outcome, took)
	fields := map[string]any{"outcome": outcome, "duration_ms": took.Milliseconds()}
	if err != nil {
		fields["error"] = err.Error()
		c.log(ctx, "error", op, fields)
		return
	}
	c.log(ctx, "response", op, fields)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Warn(ctx, fmt.Sprintf("asaas %s failed", op))
	default:
		c.logger.Info(ctx, fmt.Sprintf("asaas %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "token", "cpf", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
