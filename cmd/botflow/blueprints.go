package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/botflow/internal/cli"
	"github.com/spf13/cobra"
)

var blueprintsCmd = &cobra.Command{
	Use:   "blueprints",
	Short: "Manage stored blueprints",
}

var blueprintsLoadCmd = &cobra.Command{
	Use:   "load <dir>",
	Short: "Validate blueprint files and store them in the configured blueprint store",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		tenant, _ := cmd.Flags().GetString("tenant")

		ctx := context.Background()
		app, err := cli.NewApp(cfg, logger)
		if err != nil {
			fmt.Printf("Error initializing botflow: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = app.Close(ctx) }()

		n, err := app.LoadBlueprints(ctx, args[0], tenant)
		fmt.Printf("Stored %d blueprint(s)\n", n)
		if err != nil {
			fmt.Printf("Some blueprints were rejected: %v\n", err)
			_ = app.Close(ctx)
			os.Exit(1)
		}
	},
}

var blueprintsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the blueprint ids stored for a tenant",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		tenant, _ := cmd.Flags().GetString("tenant")

		ctx := context.Background()
		app, err := cli.NewApp(cfg, logger)
		if err != nil {
			fmt.Printf("Error initializing botflow: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = app.Close(ctx) }()

		ids, err := app.Blueprints.List(ctx, tenant)
		if err != nil {
			fmt.Printf("Error listing blueprints: %v\n", err)
			return
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	},
}

func init() {
	rootCmd.AddCommand(blueprintsCmd)
	blueprintsCmd.AddCommand(blueprintsLoadCmd, blueprintsListCmd)
	blueprintsCmd.PersistentFlags().String("tenant", "", "Tenant the blueprints belong to")
	_ = blueprintsCmd.MarkPersistentFlagRequired("tenant")
}
