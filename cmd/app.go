package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marcus/offsync/internal/config"
	"github.com/marcus/offsync/internal/conflict"
	"github.com/marcus/offsync/internal/db"
	"github.com/marcus/offsync/internal/engine"
	"github.com/marcus/offsync/internal/netmon"
	"github.com/marcus/offsync/internal/syncclient"
	"github.com/marcus/offsync/internal/webhook"
)

// app bundles the pieces every command works with.
type app struct {
	db      *db.DB
	client  *syncclient.Client
	monitor netmon.Monitor
	prober  *netmon.Prober // nil when probing is disabled
	engine  *engine.Engine
	hooks   *webhook.Forwarder // nil without webhook_url

	probing bool
	running bool
}

// openApp opens the database and builds an engine wired to the remote API.
// With probing enabled connectivity starts offline until checkOnline or
// start runs; with probing disabled the remote is assumed reachable.
func openApp(s *config.Settings) (*app, error) {
	database, err := db.Open(s.DBPath)
	if err != nil {
		return nil, err
	}

	client := syncclient.New(s.URL, s.APIKey)
	client.Timeout = s.RequestTimeout

	a := &app{db: database, client: client}
	if s.Probe {
		a.prober = netmon.NewProber(healthProbe(client), netmon.ProberOptions{
			Interval: s.ProbeInterval,
			Logger:   slog.Default(),
		})
		a.monitor = a.prober
	} else {
		a.monitor = netmon.NewManual(true)
	}

	eng, err := engine.New(engine.Config{
		Store:        database,
		Remote:       client,
		Monitor:      a.monitor,
		Tenant:       s.Tenant,
		SyncInterval: s.SyncInterval,
		MaxRetries:   s.MaxRetries,
		Logger:       slog.Default(),
	})
	if err != nil {
		database.Close()
		return nil, err
	}

	for rt, strategy := range s.Conflicts {
		var merge conflict.MergeFunc
		if strategy == conflict.Merge {
			merge = conflict.ShallowMerge
		}
		if err := eng.SetConflictResolver(rt, strategy, merge); err != nil {
			database.Close()
			return nil, fmt.Errorf("conflict strategy for %s: %w", rt, err)
		}
	}

	a.engine = eng
	if s.WebhookURL != "" {
		a.hooks = webhook.NewForwarder(s.WebhookURL, s.WebhookSecret, slog.Default())
	}
	return a, nil
}

// healthProbe checks reachability through the client's own transport.
func healthProbe(c *syncclient.Client) netmon.ProbeFunc {
	return func(ctx context.Context) error {
		_, err := c.HealthCheck(ctx)
		return err
	}
}

// checkOnline runs one connectivity check and returns the result.
func (a *app) checkOnline(ctx context.Context) bool {
	if a.prober == nil {
		return a.monitor.IsOnline()
	}
	return a.prober.Check(ctx)
}

// start begins connectivity polling, webhook forwarding and the engine's
// background loop.
func (a *app) start(ctx context.Context) error {
	if a.hooks != nil {
		a.hooks.Start(a.engine.OnSyncTenant)
	}
	if a.prober != nil {
		a.prober.Start(ctx)
		a.probing = true
	}
	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	a.running = true
	return nil
}

func (a *app) Close() error {
	if a.running {
		a.engine.Stop()
	}
	if a.probing {
		a.prober.Stop()
	}
	if a.hooks != nil {
		a.hooks.Close()
	}
	return a.db.Close()
}
