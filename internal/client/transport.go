package client

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

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wenwu/saas-platform/provisioning-service/internal/metrics"
)

const defaultTimeout = 60 * time.Second

// Options configures the HTTP side of a provider client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration // per request; defaults to 60s
	RateLimit  float64       // requests per second, 0 disables throttling
	Burst      int
	Limiter    *rate.Limiter // shared limiter; takes precedence over RateLimit and Burst
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

type apiRequest struct {
	operation   string
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

type apiResponse struct {
	StatusCode int
	Body       []byte
}

// transport sends signed requests to one provider endpoint.
type transport struct {
	provider     string
	baseURL      string
	timeout      time.Duration
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *zap.Logger
	metrics      *metrics.Metrics
	authorize    func(*http.Request)
	errorMessage func(body []byte) string
}

func newTransport(provider string, opts Options, authorize func(*http.Request), errorMessage func([]byte) string) *transport {
	t := &transport{
		provider:     provider,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		timeout:      opts.Timeout,
		httpClient:   opts.HTTPClient,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		authorize:    authorize,
		errorMessage: errorMessage,
	}
	if t.timeout <= 0 {
		t.timeout = defaultTimeout
	}
	if t.httpClient == nil {
		t.httpClient = &http.Client{}
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	t.logger = t.logger.Named(provider)
	t.limiter = opts.Limiter
	if t.limiter == nil {
		t.limiter = NewLimiter(opts.RateLimit, opts.Burst)
	}
	return t
}

// NewLimiter returns nil when rps is not positive. A burst below one is raised to one.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// do performs one request. Any non-2xx status is returned as a *ProviderError.
func (t *transport) do(ctx context.Context, req apiRequest) (*apiResponse, error) {
	start := time.Now()
	resp, err := t.send(ctx, req)
	elapsed := time.Since(start)
	t.metrics.ObserveProviderCall(t.provider, req.operation, elapsed, err)

	fields := []zap.Field{
		zap.String("operation", req.operation),
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Duration("elapsed", elapsed),
	}
	if resp != nil {
		fields = append(fields, zap.Int("status", resp.StatusCode))
	}
	if err != nil {
		t.logger.Warn("provider request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	t.logger.Debug("provider request", fields...)
	return resp, nil
}

func (t *transport) send(ctx context.Context, req apiRequest) (*apiResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, t.transportError(req.operation, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	endpoint := t.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return nil, t.transportError(req.operation, fmt.Errorf("create request: %w", err))
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if t.authorize != nil {
		t.authorize(httpReq)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, t.transportError(req.operation, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{
			Provider:   t.provider,
			Operation:  req.operation,
			HTTPStatus: resp.StatusCode,
			Message:    err.Error(),
			Err:        fmt.Errorf("read response: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if t.errorMessage != nil {
			msg = t.errorMessage(respBody)
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &apiResponse{StatusCode: resp.StatusCode, Body: respBody}, &ProviderError{
			Provider:   t.provider,
			Operation:  req.operation,
			HTTPStatus: resp.StatusCode,
			Message:    msg,
		}
	}

	return &apiResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func (t *transport) transportError(operation string, err error) *ProviderError {
	return &ProviderError{
		Provider:  t.provider,
		Operation: operation,
		Message:   err.Error(),
		Err:       err,
	}
}

// decodeError wraps a JSON decoding failure of a 2xx body.
func (t *transport) decodeError(operation string, status int, err error, body []byte) *ProviderError {
	return &ProviderError{
		Provider:   t.provider,
		Operation:  operation,
		HTTPStatus: status,
		Message:    fmt.Sprintf("decode response: %v (body: %s)", err, truncate(body, 256)),
		Err:        err,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// jsonCall sends payload as JSON (when non-nil) and returns the validated JSON body.
// An empty 2xx body is returned as "{}".
func (t *transport) jsonCall(ctx context.Context, op, method, path string, params url.Values, payload any) (json.RawMessage, error) {
	req := apiRequest{operation: op, method: method, path: path, query: params}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, t.transportError(op, fmt.Errorf("marshal request: %w", err))
		}
		req.body = body
		req.contentType = "application/json"
	}

	resp, err := t.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(resp.Body) {
		return nil, t.decodeError(op, resp.StatusCode, errInvalidJSON, resp.Body)
	}
	return json.RawMessage(resp.Body), nil
}
