// Package syncclient delivers queued mutations to the remote API.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marcus/offsync/internal/models"
)

// DefaultTimeout bounds each remote call when Client.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Request headers sent with every replayed mutation.
const (
	HeaderTenant      = "X-Tenant-ID"
	HeaderOfflineSync = "X-Offline-Sync"
	HeaderIdempotency = "Idempotency-Key"
)

// Client is an HTTP client for the remote API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	// Timeout bounds each call; expiry is reported as ErrTimeout.
	Timeout time.Duration
	// Now stamps _syncTimestamp. Defaults to time.Now.
	Now func() time.Time
}

// New creates a new sync client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{},
		Timeout: DefaultTimeout,
	}
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	respBody, status, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &StatusError{StatusCode: status, Body: string(respBody)}
	}
	var resp HealthResponse
	if len(respBody) > 0 {
		json.Unmarshal(respBody, &resp)
	}
	return &resp, nil
}

// --- Delivery ---

// Deliver sends rec to its default endpoint. A 409 yields *ConflictError.
func (c *Client) Deliver(ctx context.Context, rec *models.MutationRecord) error {
	return c.deliver(ctx, rec, VariantDefault, rec.Payload)
}

// Force re-sends rec to the force-apply variant of its endpoint.
func (c *Client) Force(ctx context.Context, rec *models.MutationRecord) error {
	return c.deliver(ctx, rec, VariantForce, rec.Payload)
}

// SubmitMerged sends merged state for rec to the merge variant of its endpoint.
func (c *Client) SubmitMerged(ctx context.Context, rec *models.MutationRecord, merged json.RawMessage) error {
	return c.deliver(ctx, rec, VariantMerge, merged)
}

func (c *Client) deliver(ctx context.Context, rec *models.MutationRecord, v Variant, payload json.RawMessage) error {
	method, path, err := Endpoint(rec.ResourceType, rec.Action, v)
	if err != nil {
		return err
	}
	body, err := c.buildBody(rec, payload)
	if err != nil {
		return err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTenant, rec.Tenant)
	req.Header.Set(HeaderOfflineSync, "true")
	req.Header.Set(HeaderIdempotency, rec.ID)
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	respBody, status, err := c.send(ctx, req)
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusConflict:
		return &ConflictError{StatusCode: status, ServerData: extractServerData(respBody)}
	case status < 200 || status >= 300:
		return &StatusError{StatusCode: status, Body: string(respBody)}
	}
	return nil
}

// buildBody returns the payload object with _syncId and _syncTimestamp added.
// Non-object payloads are wrapped under "data".
func (c *Client) buildBody(rec *models.MutationRecord, payload json.RawMessage) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
			fields = map[string]json.RawMessage{"data": payload}
		}
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	id, _ := json.Marshal(rec.ID)
	ts, _ := json.Marshal(now().UnixMilli())
	fields["_syncId"] = id
	fields["_syncTimestamp"] = ts

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return data, nil
}

// --- HTTP helpers ---

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// send executes req and reads the whole body. A deadline hit on the per-call
// context is reported as ErrTimeout.
func (c *Client) send(ctx context.Context, req *http.Request) ([]byte, int, error) {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, 0, fmt.Errorf("%w: %s %s", ErrTimeout, req.Method, req.URL.Path)
		}
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, 0, fmt.Errorf("%w: %s %s", ErrTimeout, req.Method, req.URL.Path)
		}
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// extractServerData returns body.serverData when present, else the whole body.
func extractServerData(body []byte) json.RawMessage {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return json.RawMessage("null")
	}
	var wrapped struct {
		ServerData json.RawMessage `json:"serverData"`
	}
	if json.Unmarshal(body, &wrapped) == nil && len(wrapped.ServerData) > 0 {
		return wrapped.ServerData
	}
	if !json.Valid(body) {
		quoted, _ := json.Marshal(string(body))
		return quoted
	}
	return json.RawMessage(body)
}
