package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/phishdrill/internal/app"
	"github.com/foxzi/phishdrill/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE:  runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo targets and templates into an empty store",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(migrateCmd, seedCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Opening a store applies pending migrations
	st, err := app.OpenStore(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Fprintln(cmd.OutOrStdout(), "Migrations completed successfully")
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := app.OpenStore(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	seeded, err := store.Seed(cmd.Context(), st)
	if err != nil {
		return fmt.Errorf("failed to seed store: %w", err)
	}

	if seeded {
		fmt.Fprintln(cmd.OutOrStdout(), "Demo data inserted")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Store already has data, nothing inserted")
	}
	return nil
}
