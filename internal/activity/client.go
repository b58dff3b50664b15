// Package activity executes the submit/poll/merge protocol used for all
// state-changing API calls, plus pass-through queries and unstamped
// auth-proxy requests.
package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"custody/go-client/internal/platform/ratelimiter"
	"custody/go-client/internal/stamp"
	"custody/go-client/pkg/models"
)

const (
	pathGetActivity = "/public/v1/query/get_activity"

	defaultPollInterval = time.Second
	defaultMaxRetries   = 3
)

var (
	ErrNoBaseURL       = errors.New("activity client requires a base url")
	ErrNoStamper       = errors.New("activity client requires a stamper")
	ErrNoAuthProxy     = errors.New("auth proxy base url is not configured")
	ErrInvalidResponse = errors.New("invalid api response")
)

// APIError is the fatal result of any non-2xx HTTP status.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

// Stamper produces the authentication header for one payload.
type Stamper interface {
	Stamp(ctx context.Context, payload []byte) (stamp.Stamp, error)
}

type Config struct {
	BaseURL           string
	AuthProxyURL      string
	AuthProxyConfigID string
	PollInterval      time.Duration
	MaxRetries        int
	HTTPClient        *http.Client
	Logger            *slog.Logger
	Registerer        prometheus.Registerer
	OrgThrottleRPS    float64
	OrgThrottleBurst  int
}

// Request describes one state-changing operation.
type Request struct {
	Path           string
	Type           string
	OrganizationID string
	Parameters     any
}

// Client drives submit → poll → merge. Polling attempts for one call are
// strictly sequential and bounded by MaxRetries; there is no backoff beyond
// the fixed interval and no cancellation of an in-flight poll cycle besides
// the caller's context.
type Client struct {
	baseURL       string
	proxyURL      string
	proxyConfigID string
	http          *http.Client
	stamper       Stamper
	pollInterval  time.Duration
	maxRetries    int
	logger        *slog.Logger
	limiter       *ratelimiter.OrgLimiter
	metrics       *clientMetrics
	now           func() time.Time
}

func New(cfg Config, st Stamper) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	if st == nil {
		return nil, ErrNoStamper
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		proxyURL:      cfg.AuthProxyURL,
		proxyConfigID: cfg.AuthProxyConfigID,
		http:          httpClient,
		stamper:       st,
		pollInterval:  interval,
		maxRetries:    retries,
		logger:        logger,
		limiter:       ratelimiter.New(cfg.OrgThrottleRPS, cfg.OrgThrottleBurst, 0),
		metrics:       newClientMetrics(cfg.Registerer),
		now:           time.Now,
	}, nil
}

// Query performs a read-only call: single stamped POST, decode, return.
func (c *Client) Query(ctx context.Context, path, organizationID string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	raw, err := c.post(ctx, c.baseURL+path, organizationID, payload, true)
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

// Execute submits a state-changing activity and polls until a terminal
// status or the retry bound. On COMPLETED the versioned result container is
// merged into the top-level response before decoding into out. When retries
// run out the last observed payload is returned as-is, terminal or not;
// callers must treat a non-terminal result as inconclusive.
func (c *Client) Execute(ctx context.Context, req Request, out any) error {
	raw, ar, err := c.submit(ctx, req)
	if err != nil {
		return err
	}
	if ar.Activity.Status.Terminal() {
		return c.finish(req.Type, raw, ar, out)
	}

	attempts := 0
	for {
		attempts++
		if attempts > c.maxRetries {
			c.logger.Warn("activity polling exhausted",
				"activity_id", ar.Activity.ID, "status", string(ar.Activity.Status))
			return decodeInto(raw, out)
		}
		if err := sleepCtx(ctx, c.pollInterval); err != nil {
			return err
		}
		raw, ar, err = c.pollOnce(ctx, req.OrganizationID, ar.Activity.ID)
		if err != nil {
			return err
		}
		if ar.Activity.Status.Terminal() {
			break
		}
	}
	return c.finish(req.Type, raw, ar, out)
}

// Decide resolves a consensus decision (approve/reject). Decisions complete
// synchronously, so there is no polling, only the result merge.
func (c *Client) Decide(ctx context.Context, req Request, out any) error {
	raw, ar, err := c.submit(ctx, req)
	if err != nil {
		return err
	}
	return c.finish(req.Type, raw, ar, out)
}

// GetActivity fetches the current state of one activity.
func (c *Client) GetActivity(ctx context.Context, organizationID, activityID string) (models.ActivityResponse, error) {
	_, ar, err := c.pollOnce(ctx, organizationID, activityID)
	return ar, err
}

// ProxyRequest posts to the auth proxy: separate base URL, config-id header,
// no stamping — the proxy holds its own server-side credential.
func (c *Client) ProxyRequest(ctx context.Context, path string, body, out any) error {
	if c.proxyURL == "" {
		return ErrNoAuthProxy
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	raw, err := c.post(ctx, c.proxyURL+path, "", payload, false)
	if err != nil {
		return err
	}
	return decodeInto(raw, out)
}

func (c *Client) submit(ctx context.Context, req Request) ([]byte, models.ActivityResponse, error) {
	var ar models.ActivityResponse
	envelope, err := buildEnvelope(req, c.now())
	if err != nil {
		return nil, ar, err
	}
	raw, err := c.post(ctx, c.baseURL+req.Path, req.OrganizationID, envelope, true)
	if err != nil {
		return nil, ar, err
	}
	if err := json.Unmarshal(raw, &ar); err != nil {
		return nil, ar, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	c.metrics.submits.WithLabelValues(req.Type).Inc()
	return raw, ar, nil
}

func (c *Client) pollOnce(ctx context.Context, organizationID, activityID string) ([]byte, models.ActivityResponse, error) {
	var ar models.ActivityResponse
	body, err := json.Marshal(map[string]string{"activityId": activityID})
	if err != nil {
		return nil, ar, err
	}
	raw, err := c.post(ctx, c.baseURL+pathGetActivity, organizationID, body, true)
	if err != nil {
		return nil, ar, err
	}
	if err := json.Unmarshal(raw, &ar); err != nil {
		return nil, ar, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	c.metrics.polls.Inc()
	return raw, ar, nil
}

func (c *Client) finish(activityType string, raw []byte, ar models.ActivityResponse, out any) error {
	c.metrics.outcomes.WithLabelValues(string(ar.Activity.Status)).Inc()
	if ar.Activity.Status != models.ActivityCompleted {
		return decodeInto(raw, out)
	}
	merged, err := mergeResult(activityType, raw, ar.Activity.Result)
	if err != nil {
		return err
	}
	return decodeInto(merged, out)
}

func (c *Client) post(ctx context.Context, url, organizationID string, payload []byte, stamped bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx, organizationID); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if stamped {
		st, err := c.stamper.Stamp(ctx, payload)
		if err != nil {
			return nil, err
		}
		req.Header.Set(st.Header, st.Value)
	} else {
		req.Header.Set("X-Auth-Proxy-Config-ID", c.proxyConfigID)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	c.metrics.latency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: raw}
	}
	return raw, nil
}

// buildEnvelope lifts organizationId and timestampMs out of the method body
// and nests the remainder under parameters.
func buildEnvelope(req Request, now time.Time) ([]byte, error) {
	body := []byte("{}")
	if req.Parameters != nil {
		var err error
		body, err = json.Marshal(req.Parameters)
		if err != nil {
			return nil, err
		}
	}
	var params map[string]json.RawMessage
	if err := json.Unmarshal(body, &params); err != nil {
		return nil, fmt.Errorf("activity parameters must encode to a JSON object: %w", err)
	}
	delete(params, "organizationId")
	delete(params, "timestampMs")
	flat, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.ActivityRequest{
		Type:           req.Type,
		OrganizationID: req.OrganizationID,
		TimestampMs:    strconv.FormatInt(now.UnixMilli(), 10),
		Parameters:     flat,
	})
}

// mergeResult spreads activity.result.<resultKey> into the top level of the
// outer response, mirroring the server's convention of nesting typed results.
func mergeResult(activityType string, raw, result []byte) ([]byte, error) {
	if len(result) == 0 {
		return raw, nil
	}
	var containers map[string]json.RawMessage
	if err := json.Unmarshal(result, &containers); err != nil {
		return nil, fmt.Errorf("%w: activity result: %v", ErrInvalidResponse, err)
	}
	names := make([]string, 0, len(containers))
	for k := range containers {
		names = append(names, k)
	}
	key := resultKey(activityType, names)
	if key == "" {
		return raw, nil
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(containers[key], &nested); err != nil {
		return nil, fmt.Errorf("%w: result container %s: %v", ErrInvalidResponse, key, err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	for k, v := range nested {
		top[k] = v
	}
	return json.Marshal(top)
}

func decodeInto(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
