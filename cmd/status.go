package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/marcus/offsync/internal/models"
	"github.com/marcus/offsync/internal/output"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show connectivity, queue depth and the last sync",
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		a, err := openApp(settings)
		if err != nil {
			return reportError(jsonOut, err)
		}
		defer a.Close()

		if skip, _ := cmd.Flags().GetBool("no-probe"); !skip {
			a.checkOnline(cmd.Context())
		}

		st := a.engine.Status()
		open, err := a.db.CountConflicts(true)
		if err != nil {
			return reportError(jsonOut, err)
		}

		if jsonOut {
			return output.JSON(map[string]interface{}{
				"status":         st,
				"open_conflicts": open,
				"strategies":     a.engine.ConflictStrategies(),
				"url":            settings.URL,
				"database":       a.db.Path(),
			})
		}

		fmt.Printf("%s  %s\n", output.ConnectivityBadge(st.IsOnline), settings.URL)
		fmt.Printf("Tenant:    %s\n", st.Tenant)
		fmt.Printf("Pending:   %d", st.PendingCount)
		if st.FailedCount > 0 {
			fmt.Printf(" (%d failing)", st.FailedCount)
		}
		fmt.Println()
		if st.LastSyncTime != nil {
			fmt.Printf("Last sync: %s (%d ok, %d failed)\n",
				output.FormatTimeAgo(*st.LastSyncTime), st.LastSuccessful, st.LastFailed)
		} else {
			fmt.Println("Last sync: never")
		}
		if open > 0 {
			output.Warning("%d unresolved conflict(s); see `offsync conflicts list`", open)
		}

		fmt.Print(output.SectionHeader("strategies"))
		strategies := a.engine.ConflictStrategies()
		types := make([]models.ResourceType, 0, len(strategies))
		for rt := range strategies {
			types = append(types, rt)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		for _, rt := range types {
			fmt.Printf("  %-13s %s\n", rt, strategies[rt])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "JSON output")
	statusCmd.Flags().Bool("no-probe", false, "Skip the connectivity check")
}
