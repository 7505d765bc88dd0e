package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"example.com/careops/services/automation/config"
	"example.com/careops/services/automation/internal/models"
)

var rootCmd = &cobra.Command{
	Use:   "automation",
	Short: "CareOps booking lifecycle and automation rule engine",
	Long:  `Runs the CareOps booking API, the automation worker, or the default-rule seeder`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initDatabase opens the Postgres connection, runs migrations and applies
// the configured pool limits.
func initDatabase(cfg config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if err := models.SetupModels(db); err != nil {
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	return db, nil
}
