package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/offsync/internal/models"
	"github.com/marcus/offsync/internal/output"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"log"},
	Short:   "Show per-mutation sync outcomes",
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		limit, _ := cmd.Flags().GetInt("limit")
		outcome, _ := cmd.Flags().GetString("outcome")

		a, err := openApp(settings)
		if err != nil {
			return reportError(jsonOut, err)
		}
		defer a.Close()

		entries, err := a.engine.History(limit)
		if err != nil {
			return reportError(jsonOut, err)
		}
		if outcome != "" {
			filtered := entries[:0]
			for _, e := range entries {
				if string(e.Outcome) == outcome {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}

		if jsonOut {
			if entries == nil {
				entries = []models.SyncHistoryEntry{}
			}
			return output.JSON(entries)
		}
		if len(entries) == 0 {
			output.Info("No sync history")
			return nil
		}
		for _, e := range entries {
			fmt.Println(output.FormatHistoryLine(e))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Number of entries")
	historyCmd.Flags().String("outcome", "", "Only this outcome (synced, conflict, retry, abandoned, expired)")
	historyCmd.Flags().Bool("json", false, "JSON output")
}
