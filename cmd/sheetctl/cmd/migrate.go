package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetsmith/sheetsmith/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply the embedded SQL migrations that have not run yet.

Only DATABASE_URL (or --database-url) is required.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("database-url", "", "PostgreSQL connection string (default $DATABASE_URL)")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	databaseURL, _ := cmd.Flags().GetString("database-url")
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	repo, err := repository.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer repo.Close()

	applied, err := repo.Migrate(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat(cmd) == "json" {
		return printJSON(out, map[string]any{"applied": applied})
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "database is up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Fprintln(out, "applied", name)
	}
	return nil
}
