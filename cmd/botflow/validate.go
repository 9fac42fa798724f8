package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/botflow/internal/validator"
	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/blueprint"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/registry"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check blueprint files for consistency",
	Long: `Loads every blueprint under the directory and reports broken step references,
unknown actions and steps unreachable from the entry step.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		tenant, _ := cmd.Flags().GetString("tenant")
		if err := runValidate(dir, tenant); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Blueprints are valid!")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("tenant", "validate", "Tenant assigned to blueprints that declare none")
}

func runValidate(dir, tenant string) error {
	bps, err := blueprint.LoadDir(dir, tenant)
	if err != nil {
		return err
	}
	if len(bps) == 0 {
		return fmt.Errorf("no blueprint files found in %s", dir)
	}

	// Built-in actions, schedule_job included.
	reg := registry.NewRegistry()
	actions.New(nil, actions.WithScheduler(noScheduler{})).Register(reg)

	failed := 0
	for _, bp := range bps {
		res := validator.ValidateBlueprint(bp, reg)
		for _, w := range res.Warnings {
			fmt.Printf("  warning %s: %s\n", bp.ID, w)
		}
		for _, e := range res.Errors {
			fmt.Printf("  error   %s: %s\n", bp.ID, e)
		}
		if !res.OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d blueprint(s) invalid", failed, len(bps))
	}
	return nil
}

// noScheduler registers schedule_job for validation without a running hub.
type noScheduler struct{}

func (noScheduler) Schedule(context.Context, *domain.RemarketingJob) (domain.ScheduleResult, error) {
	return domain.ScheduleResult{}, errors.New("scheduler not available during validation")
}
