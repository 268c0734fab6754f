package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/offsync/internal/output"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Expire old mutations and prune resolved conflicts and history",
	Long: `Remove queued mutations older than --days (recorded as expired in
history), resolved conflicts, history rows and stale metadata older than the
same cutoff. Waits for any running drain to finish first.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		days, _ := cmd.Flags().GetInt("days")
		if days < 0 {
			return reportError(jsonOut, fmt.Errorf("--days must not be negative"))
		}

		a, err := openApp(settings)
		if err != nil {
			return reportError(jsonOut, err)
		}
		defer a.Close()

		res, err := a.engine.Cleanup(days)
		if err != nil {
			return reportError(jsonOut, err)
		}

		if jsonOut {
			return output.JSON(res)
		}
		output.Success("Cleaned up data older than %s", res.Cutoff.Local().Format("2006-01-02 15:04"))
		fmt.Printf("  expired mutations:  %d\n", res.ExpiredMutations)
		fmt.Printf("  resolved conflicts: %d\n", res.Conflicts)
		fmt.Printf("  history rows:       %d\n", res.History)
		fmt.Printf("  stale metadata:     %d\n", res.Metadata)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().Int("days", 7, "Age threshold in days")
	cleanupCmd.Flags().Bool("json", false, "JSON output")
}
