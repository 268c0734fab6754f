package netmon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ProbeFunc returns nil when the remote is reachable.
type ProbeFunc func(ctx context.Context) error

// ProberOptions configures a Prober. Zero values take the defaults.
type ProberOptions struct {
	Interval time.Duration // default 15s
	Timeout  time.Duration // per probe, default 5s
	Online   bool          // initial state
	Logger   *slog.Logger
}

// Prober is a Monitor that polls a probe function.
type Prober struct {
	broadcaster
	probe    ProbeFunc
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewProber returns a prober; call Start to begin polling.
func NewProber(probe ProbeFunc, opts ProberOptions) *Prober {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Prober{
		probe:    probe,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	p.online = opts.Online
	return p
}

// HTTPProbe returns a probe that GETs url and treats any 2xx as reachable.
func HTTPProbe(client *http.Client, url string) ProbeFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("health check: status %d", resp.StatusCode)
		}
		return nil
	}
}

// Check runs one probe and updates the state. It returns the new state.
func (p *Prober) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.probe(ctx)
	online := err == nil
	if p.set(online) {
		if online {
			p.logger.Info("connectivity restored")
		} else {
			p.logger.Info("connectivity lost", "err", err)
		}
	}
	return online
}

// Start probes immediately and then every interval until ctx is done or
// Stop is called.
func (p *Prober) Start(ctx context.Context) {
	go func() {
		defer close(p.doneCh)
		p.Check(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.Check(ctx)
			}
		}
	}()
}

// Stop ends polling and waits for the loop to exit. Only valid after Start.
func (p *Prober) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}
