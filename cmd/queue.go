package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/offsync/internal/models"
	"github.com/marcus/offsync/internal/output"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	Aliases: []string{"ls", "pending"},
	Short:   "List pending mutations in drain order",
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		limit, _ := cmd.Flags().GetInt("limit")
		typeFilter, _ := cmd.Flags().GetString("type")
		failing, _ := cmd.Flags().GetBool("failing")

		var rt models.ResourceType
		if typeFilter != "" {
			parsed, err := models.ParseResourceType(typeFilter)
			if err != nil {
				return reportError(jsonOut, err)
			}
			rt = parsed
		}

		a, err := openApp(settings)
		if err != nil {
			return reportError(jsonOut, err)
		}
		defer a.Close()

		var recs []*models.MutationRecord
		for _, r := range a.engine.Pending() {
			if rt != "" && r.ResourceType != rt {
				continue
			}
			if failing && r.RetryCount == 0 {
				continue
			}
			recs = append(recs, r)
		}
		total := len(recs)
		if limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}

		if jsonOut {
			if recs == nil {
				recs = []*models.MutationRecord{}
			}
			return output.JSON(recs)
		}

		if total == 0 {
			output.Info("Queue is empty")
			return nil
		}
		width := output.TerminalWidth(120)
		for _, r := range recs {
			fmt.Println(output.FormatMutationShort(r, width))
		}
		if total > len(recs) {
			fmt.Printf("... and %d more\n", total-len(recs))
		}
		return nil
	},
}

var queueShowCmd = &cobra.Command{
	Use:   "show <mutation-id>",
	Short: "Show one pending mutation with its payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		a, err := openApp(settings)
		if err != nil {
			return reportError(jsonOut, err)
		}
		defer a.Close()

		rec, err := a.db.GetMutation(args[0])
		if err != nil {
			return reportError(jsonOut, fmt.Errorf("mutation %s: %w", args[0], err))
		}

		if jsonOut {
			return output.JSON(rec)
		}
		fmt.Print(output.FormatMutationLong(rec))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueShowCmd)

	queueCmd.Flags().IntP("limit", "n", 0, "Show at most n mutations")
	queueCmd.Flags().StringP("type", "t", "", "Only this resource type")
	queueCmd.Flags().Bool("failing", false, "Only mutations that have failed at least once")
	queueCmd.Flags().Bool("json", false, "JSON output")
	queueShowCmd.Flags().Bool("json", false, "JSON output")
}
