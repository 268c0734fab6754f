package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/marcus/offsync/internal/engine"
	"github.com/marcus/offsync/internal/tui/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live TUI dashboard for the queue, conflicts and sync history",
	Long: `Launch a live-updating TUI dashboard showing:
- Header: connectivity, queue depth and the last sync
- Queue: pending mutations in drain order
- Conflicts: unresolved conflicts parked by the manual strategy
- History: recent per-mutation outcomes

The engine runs in the background while the monitor is open.

Key bindings:
  Tab/Shift+Tab  Switch panels
  1/2/3          Jump to panel
  j/k            Scroll
  /              Filter queue
  s              Sync now
  r              Force refresh
  ?              Toggle help
  q              Quit`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval < 500*time.Millisecond {
			interval = 2 * time.Second
		}

		// keep log lines from tearing the alt screen
		setupLogging("error", settings.LogFormat)
		defer setupLogging(settings.LogLevel, settings.LogFormat)

		a, err := openApp(settings)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return err
		}
		defer a.Close()

		if noSync, _ := cmd.Flags().GetBool("no-engine"); !noSync {
			if err := a.start(cmd.Context()); err != nil {
				return err
			}
		}

		syncNow := func(ctx context.Context) (engine.Result, error) {
			a.checkOnline(ctx)
			return a.engine.SyncPendingData(ctx)
		}
		model := monitor.NewModel(a.engine, syncNow, interval)
		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			slog.Error("monitor", "err", err)
			return fmt.Errorf("error running monitor: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Duration("interval", 2*time.Second, "Refresh interval")
	monitorCmd.Flags().Bool("no-engine", false, "Only observe; do not run the background sync loop")
}
