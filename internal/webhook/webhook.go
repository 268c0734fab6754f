// Package webhook forwards sync events to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marcus/offsync/internal/events"
)

// Request headers
const (
	HeaderTimestamp = "X-Offsync-Timestamp"
	HeaderSignature = "X-Offsync-Signature"
)

// DefaultTimeout bounds one POST.
const DefaultTimeout = 10 * time.Second

// queueSize is how many events may wait for delivery before new ones are dropped.
const queueSize = 64

// Payload is the webhook POST body for one sync event.
type Payload struct {
	Event        string `json:"event"`
	Tenant       string `json:"tenant"`
	Timestamp    string `json:"timestamp"`
	Successful   int    `json:"successful,omitempty"`
	Failed       int    `json:"failed,omitempty"`
	MutationID   string `json:"mutation_id,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	Action       string `json:"action,omitempty"`
	Error        string `json:"error,omitempty"`
}

// BuildPayload converts an event into its webhook body.
func BuildPayload(ev events.Event) Payload {
	p := Payload{
		Event:      string(ev.Name),
		Tenant:     ev.Tenant,
		Timestamp:  ev.Time.UTC().Format(time.RFC3339Nano),
		Successful: ev.Successful,
		Failed:     ev.Failed,
	}
	if ev.Item != nil {
		p.MutationID = ev.Item.ID
		p.ResourceType = string(ev.Item.ResourceType)
		p.Action = string(ev.Item.Action)
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return p
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Dispatch performs a synchronous HTTP POST to the webhook URL.
// Returns nil on success (2xx status).
func Dispatch(ctx context.Context, client *http.Client, url, secret string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "offsync-webhook/1")

	unixTS := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(HeaderTimestamp, unixTS)
	if secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+Sign(secret, unixTS, body))
	}

	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// Forwarder posts events from a notifier to one URL on a background
// goroutine, so slow endpoints never stall a drain. Delivery is best effort:
// failures are logged and events are dropped when the buffer is full.
type Forwarder struct {
	URL    string
	Secret string
	Client *http.Client
	Logger *slog.Logger

	mu     sync.Mutex
	closed bool
	ch     chan Payload
	unsubs []func()
	wg     sync.WaitGroup
}

// SubscribeFunc registers cb for name events of tenant. Both
// (*events.Notifier).On and (*engine.Engine).OnSyncTenant satisfy it.
type SubscribeFunc func(tenant string, name events.Name, cb events.Callback) (unsubscribe func())

// NewForwarder creates a forwarder; call Start to begin delivery.
func NewForwarder(url, secret string, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		URL:    url,
		Secret: secret,
		Client: &http.Client{Timeout: DefaultTimeout},
		Logger: logger,
		ch:     make(chan Payload, queueSize),
	}
}

// Start subscribes to every event of every tenant and delivers until Close.
func (f *Forwarder) Start(subscribe SubscribeFunc) {
	for _, name := range events.AllNames() {
		f.unsubs = append(f.unsubs, subscribe(events.AllTenants, name, f.enqueue))
	}
	f.wg.Add(1)
	go f.run()
}

func (f *Forwarder) enqueue(ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- BuildPayload(ev):
	default:
		f.Logger.Warn("webhook: queue full, dropping event", "event", ev.Name)
	}
}

func (f *Forwarder) run() {
	defer f.wg.Done()
	for p := range f.ch {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		if err := Dispatch(ctx, f.Client, f.URL, f.Secret, p); err != nil {
			f.Logger.Warn("webhook: dispatch", "event", p.Event, "err", err)
		} else {
			f.Logger.Debug("webhook: dispatched", "event", p.Event)
		}
		cancel()
	}
}

// Close unsubscribes, delivers what is already queued and waits.
func (f *Forwarder) Close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		for _, u := range f.unsubs {
			u()
		}
		close(f.ch)
	}
	f.mu.Unlock()
	f.wg.Wait()
}
