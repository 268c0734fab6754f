package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/marcus/offsync/internal/db"
	"github.com/marcus/offsync/internal/models"
	"github.com/marcus/offsync/internal/output"
)

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	Aliases: []string{"conflict"},
	Short:   "Inspect and resolve conflicts parked by the manual strategy",
	GroupID: "conflicts",
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conflicts, newest first (unresolved only unless --all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")
		typeFilter, _ := cmd.Flags().GetString("type")

		filter := db.ConflictFilter{UnresolvedOnly: !all, Limit: limit}
		if typeFilter != "" {
			rt, err := models.ParseResourceType(typeFilter)
			if err != nil {
				return reportError(jsonOut, err)
			}
			filter.ResourceType = rt
		}

		a, err := openApp(settings)
		if err != nil {
			return reportError(jsonOut, err)
		}
		defer a.Close()

		conflicts, err := a.engine.ListConflicts(filter)
		if err != nil {
			return reportError(jsonOut, err)
		}

		if jsonOut {
			if conflicts == nil {
				conflicts = []*models.ConflictRecord{}
			}
			return output.JSON(conflicts)
		}
		if len(conflicts) == 0 {
			output.Info("No conflicts")
			return nil
		}
		for _, c := range conflicts {
			fmt.Println(output.FormatConflictShort(c))
		}
		return nil
	},
}

var conflictsShowCmd = &cobra.Command{
	Use:   "show <conflict-id>",
	Short: "Show both versions of a conflict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		a, err := openApp(settings)
		if err != nil {
			return reportError(jsonOut, err)
		}
		defer a.Close()

		c, err := a.engine.GetConflict(args[0])
		if err != nil {
			return reportError(jsonOut, fmt.Errorf("conflict %s: %w", args[0], err))
		}

		if jsonOut {
			return output.JSON(c)
		}
		rendered, err := output.RenderMarkdown(output.ConflictMarkdown(c))
		if err != nil {
			// plain markdown is still readable
			rendered = output.ConflictMarkdown(c)
		}
		fmt.Println(rendered)
		return nil
	},
}

var resolveKeep = &resolutionValue{}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Settle a conflict by keeping the server or the client version",
	Long: `Keeping the server version only marks the conflict resolved.
Keeping the client version re-queues the client data at high priority
(a create is replayed as an update) and marks the conflict resolved.

Without --keep an interactive prompt is shown when stdin is a terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		a, err := openApp(settings)
		if err != nil {
			return reportError(jsonOut, err)
		}
		defer a.Close()

		c, err := a.engine.GetConflict(args[0])
		if err != nil {
			return reportError(jsonOut, fmt.Errorf("conflict %s: %w", args[0], err))
		}

		keep := resolveKeep.r
		if keep == "" {
			if jsonOut || !term.IsTerminal(int(os.Stdin.Fd())) {
				return reportError(jsonOut, errors.New("--keep server|client is required"))
			}
			keep, err = promptResolution(c)
			if err != nil {
				return reportError(jsonOut, err)
			}
		}

		newID, err := a.engine.ResolveConflict(c.ID, keep)
		if err != nil {
			return reportError(jsonOut, err)
		}

		if jsonOut {
			return output.JSON(map[string]interface{}{
				"id":          c.ID,
				"kept":        keep,
				"mutation_id": newID,
			})
		}
		output.Success("RESOLVED %s (kept %s)", c.ID, keep)
		if newID != "" {
			fmt.Printf("  re-queued as %s\n", newID)
		}
		return nil
	},
}

// promptResolution shows both versions and asks which to keep.
func promptResolution(c *models.ConflictRecord) (models.ConflictResolution, error) {
	choice := string(models.ResolutionServer)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title(fmt.Sprintf("Conflict %s (%s/%s)", c.ID, c.ResourceType, c.Action)).
				Description("Client:\n"+output.PrettyJSON(c.ClientData)+"\n\nServer:\n"+output.PrettyJSON(c.ServerData)),
			huh.NewSelect[string]().
				Title("Keep which version?").
				Options(
					huh.NewOption("Server (discard local change)", string(models.ResolutionServer)),
					huh.NewOption("Client (re-send local change)", string(models.ResolutionClient)),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return parseResolution(choice)
}

func init() {
	rootCmd.AddCommand(conflictsCmd)
	conflictsCmd.AddCommand(conflictsListCmd, conflictsShowCmd, conflictsResolveCmd)

	conflictsListCmd.Flags().Bool("all", false, "Include resolved conflicts")
	conflictsListCmd.Flags().IntP("limit", "n", 0, "Show at most n conflicts")
	conflictsListCmd.Flags().StringP("type", "t", "", "Only this resource type")
	conflictsListCmd.Flags().Bool("json", false, "JSON output")

	conflictsShowCmd.Flags().Bool("json", false, "JSON output")

	conflictsResolveCmd.Flags().Var(resolveKeep, "keep", "Version to keep: server or client")
	conflictsResolveCmd.Flags().Bool("json", false, "JSON output")
}
