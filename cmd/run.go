package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marcus/offsync/internal/engine"
	"github.com/marcus/offsync/internal/events"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync engine in the foreground",
	Long: `Probe connectivity and drain the queue whenever the remote becomes
reachable, on every sync interval, and at startup. Sync events are logged
and, when webhook_url is configured, POSTed there.
Stops on SIGINT or SIGTERM.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runEngine(ctx)
	},
}

// runEngine starts the engine and blocks until ctx is done.
func runEngine(ctx context.Context) error {
	a, err := openApp(settings)
	if err != nil {
		slog.Error("open", "err", err)
		return err
	}
	defer a.Close()

	logSyncEvents(a.engine)

	if err := a.start(ctx); err != nil {
		slog.Error("start engine", "err", err)
		return err
	}
	slog.Info("engine started",
		"tenant", a.engine.Tenant(),
		"url", settings.URL,
		"pending", a.engine.Status().PendingCount,
		"interval", settings.SyncInterval)

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

// logSyncEvents logs every sync event of every tenant.
func logSyncEvents(eng *engine.Engine) {
	on := func(name events.Name, cb events.Callback) {
		eng.OnSyncTenant(events.AllTenants, name, cb)
	}
	on(events.Online, func(ev events.Event) {
		slog.Info("online")
	})
	on(events.Offline, func(ev events.Event) {
		slog.Warn("offline")
	})
	on(events.SyncCompleted, func(ev events.Event) {
		slog.Info("sync completed", "tenant", ev.Tenant, "successful", ev.Successful, "failed", ev.Failed)
	})
	on(events.SyncFailed, func(ev events.Event) {
		attrs := []any{"err", ev.Err}
		if ev.Item != nil {
			attrs = append(attrs, "id", ev.Item.ID, "type", ev.Item.ResourceType, "action", ev.Item.Action)
		}
		slog.Warn("sync failed", attrs...)
	})
}

func init() {
	rootCmd.AddCommand(runCmd)
}
