package cmd

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/careops/services/automation/config"
	"example.com/careops/services/automation/internal/automation"
	"example.com/careops/services/automation/internal/repositories"
)

var seedWorkspaceID string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed default automation rules",
	Long:  `Seed the default automation rule set into a workspace that has no rules yet`,
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedWorkspaceID, "workspace", "", "workspace UUID to seed")
	_ = seedCmd.MarkFlagRequired("workspace")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	workspaceID, err := uuid.Parse(seedWorkspaceID)
	if err != nil {
		return errors.Wrap(err, "workspace must be a UUID")
	}

	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	workspaceRepo := repositories.NewWorkspaceRepository(db)
	if _, err := workspaceRepo.GetByID(ctx, workspaceID); err != nil {
		return err
	}

	ruleRepo := repositories.NewRuleRepository(db)
	existing, err := ruleRepo.List(ctx, workspaceID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Info().
			Int("existing", len(existing)).
			Str("workspace_id", workspaceID.String()).
			Msg("Workspace already has rules, nothing to seed")
		return nil
	}

	defaults := automation.DefaultRules()
	for i := range defaults {
		defaults[i].ID = uuid.New()
		defaults[i].WorkspaceID = workspaceID
		if err := ruleRepo.Create(ctx, &defaults[i]); err != nil {
			return err
		}
	}

	log.Info().
		Int("count", len(defaults)).
		Str("workspace_id", workspaceID.String()).
		Msg("Seeded default automation rules")
	return nil
}
