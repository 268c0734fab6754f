package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/offsync/internal/engine"
	"github.com/marcus/offsync/internal/models"
	"github.com/marcus/offsync/internal/output"
)

// autoSyncTimeout bounds the drain attempted after `add --sync`.
const autoSyncTimeout = 10 * time.Second

var addPriority = newPriorityValue(models.PriorityMedium)

var addCmd = &cobra.Command{
	Use:   "add <resource-type> <action> [payload-json]",
	Short: "Queue a mutation for delivery",
	Long: `Queue a create, update or delete for one of the resource types
(booking, profile, payment, notification, custom).

The payload is a JSON document given inline, read from a file with --file,
or from stdin with --file -.`,
	Example: `  offsync add booking create '{"room":"A1","guests":2}'
  offsync add profile update --file profile.json --priority high
  offsync add payment delete '{"id":"p-42"}' --sync`,
	GroupID: "core",
	Args:    cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		rt, err := models.ParseResourceType(args[0])
		if err != nil {
			return reportError(jsonOut, err)
		}
		action, err := models.ParseAction(args[1])
		if err != nil {
			return reportError(jsonOut, err)
		}

		file, _ := cmd.Flags().GetString("file")
		payload, err := readPayload(args[2:], file, cmd.InOrStdin())
		if err != nil {
			return reportError(jsonOut, err)
		}

		maxRetries, _ := cmd.Flags().GetInt("max-retries")
		tenant, _ := cmd.Flags().GetString("for-tenant")

		a, err := openApp(settings)
		if err != nil {
			return reportError(jsonOut, err)
		}
		defer a.Close()

		id, err := a.engine.AddToQueue(rt, action, payload, engine.Options{
			Priority:   addPriority.p,
			MaxRetries: maxRetries,
			Tenant:     tenant,
		})
		if err != nil {
			return reportError(jsonOut, err)
		}

		var result *engine.Result
		if doSync, _ := cmd.Flags().GetBool("sync"); doSync {
			result = autoSyncAfterAdd(cmd.Context(), a)
		}

		if jsonOut {
			return output.JSON(map[string]interface{}{
				"id":      id,
				"pending": a.engine.Status().PendingCount,
				"sync":    result,
			})
		}
		output.Success("QUEUED %s", id)
		if result != nil {
			fmt.Printf("Synced %d/%d", result.Successful, result.Attempted)
			if result.Failed > 0 {
				fmt.Printf(" (%d failed)", result.Failed)
			}
			fmt.Println()
		}
		return nil
	},
}

// readPayload returns the inline payload, the contents of file ("-" for
// stdin), or null when neither is given.
func readPayload(inline []string, file string, stdin io.Reader) (json.RawMessage, error) {
	var data []byte
	switch {
	case len(inline) > 0 && file != "":
		return nil, errors.New("give the payload inline or with --file, not both")
	case len(inline) > 0:
		data = []byte(inline[0])
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		data = b
	default:
		return json.RawMessage("null"), nil
	}

	if !json.Valid(data) {
		return nil, errors.New("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// autoSyncAfterAdd drains the queue once if the remote is reachable.
// Errors are logged, not returned.
func autoSyncAfterAdd(ctx context.Context, a *app) *engine.Result {
	ctx, cancel := context.WithTimeout(ctx, autoSyncTimeout)
	defer cancel()

	if !a.checkOnline(ctx) {
		slog.Debug("autosync: offline, leaving mutation queued")
		return nil
	}
	res, err := a.engine.SyncPendingData(ctx)
	if err != nil {
		slog.Debug("autosync: drain", "err", err)
		return nil
	}
	return &res
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().VarP(addPriority, "priority", "p", "Priority: high, medium, low")
	addCmd.Flags().Int("max-retries", 0, "Retry ceiling for this mutation (default from config)")
	addCmd.Flags().String("for-tenant", "", "Tenant to record on the mutation (default --tenant)")
	addCmd.Flags().StringP("file", "f", "", "Read payload JSON from file (- for stdin)")
	addCmd.Flags().Bool("sync", false, "Try to sync immediately after queueing")
	addCmd.Flags().Bool("json", false, "JSON output")
}
