package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marcus/offsync/internal/config"
	"github.com/marcus/offsync/internal/conflict"
	"github.com/marcus/offsync/internal/models"
	"github.com/marcus/offsync/internal/output"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Show or change configuration",
	GroupID: "system",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print effective settings (env > config file > default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(settings)
		}
		data, err := yaml.Marshal(settings)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		if settings.APIKey != "" {
			fmt.Println("api_key: (set)")
		}
		if settings.WebhookSecret != "" {
			fmt.Println("webhook_secret: (set)")
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(config.Path(configDir))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write one key to the config file",
	Long: `Keys: url, api_key, tenant, db_path, sync_interval, request_timeout,
probe_interval, probe, max_retries, log_level, log_format, webhook_url,
webhook_secret, conflicts.<resource-type>`,
	Example: `  offsync config set url https://api.example.com
  offsync config set sync_interval 1m
  offsync config set conflicts.booking manual`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Set(configDir, args[0], args[1]); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Set %s", args[0])
		return nil
	},
}

var strategySet = &strategyValue{}

var strategyCmd = &cobra.Command{
	Use:   "strategy [resource-type]",
	Short: "Show conflict strategies, or set one with --set",
	Example: `  offsync strategy
  offsync strategy payment --set merge`,
	GroupID: "conflicts",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strategySet.s != "" {
			if len(args) == 0 {
				return fmt.Errorf("--set needs a resource type")
			}
			rt, err := models.ParseResourceType(args[0])
			if err != nil {
				return err
			}
			if err := config.Set(configDir, "conflicts."+string(rt), string(strategySet.s)); err != nil {
				output.Error("%v", err)
				return err
			}
			output.Success("%s conflicts now use %s", rt, strategySet.s)
			return nil
		}

		current := make(map[models.ResourceType]conflict.Strategy)
		for _, rt := range models.AllResourceTypes() {
			current[rt] = conflict.ServerWins
		}
		for rt, s := range settings.Conflicts {
			current[rt] = s
		}

		if len(args) == 1 {
			rt, err := models.ParseResourceType(args[0])
			if err != nil {
				return err
			}
			fmt.Println(current[rt])
			return nil
		}

		types := make([]string, 0, len(current))
		for rt := range current {
			types = append(types, string(rt))
		}
		sort.Strings(types)
		for _, rt := range types {
			fmt.Printf("%-13s %s\n", rt, current[models.ResourceType(rt)])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd, strategyCmd)
	configCmd.AddCommand(configShowCmd, configPathCmd, configSetCmd)
	configShowCmd.Flags().Bool("json", false, "JSON output")
	strategyCmd.Flags().Var(strategySet, "set", "Strategy: server_wins, client_wins, merge, manual")
}
