package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/offsync/internal/engine"
	"github.com/marcus/offsync/internal/output"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the queue now",
	Long: `Check connectivity and replay every pending mutation in priority order.
Fails with "offline" when the remote is unreachable.`,
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		a, err := openApp(settings)
		if err != nil {
			return reportError(jsonOut, err)
		}
		defer a.Close()

		ctx := cmd.Context()
		a.checkOnline(ctx)

		res, err := a.engine.SyncPendingData(ctx)
		if err != nil {
			if errors.Is(err, engine.ErrOffline) && !jsonOut {
				output.Warning("remote unreachable at %s; %d mutation(s) remain queued", settings.URL, a.engine.Status().PendingCount)
				return err
			}
			return reportError(jsonOut, err)
		}

		if jsonOut {
			return output.JSON(res)
		}
		printResult(res, a.engine.Status().PendingCount)
		return nil
	},
}

func printResult(res engine.Result, pending int) {
	if res.Attempted == 0 {
		output.Info("Nothing to sync")
		return
	}
	msg := fmt.Sprintf("Synced %d/%d in %s", res.Successful, res.Attempted, res.Duration.Round(time.Millisecond))
	if res.Failed == 0 {
		output.Success("%s", msg)
	} else {
		output.Warning("%s, %d failed", msg, res.Failed)
	}
	if res.Conflicts > 0 {
		fmt.Printf("  %d conflict(s) settled\n", res.Conflicts)
	}
	if res.Abandoned > 0 {
		fmt.Printf("  %d mutation(s) abandoned after exhausting retries\n", res.Abandoned)
	}
	if pending > 0 {
		fmt.Printf("  %d still queued\n", pending)
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("json", false, "JSON output")
}
