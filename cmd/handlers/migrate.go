package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/commentlens/internal/persistence"
)

// NewMigrateCmd creates the migrate command for database migrations
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage the comment store schema.

Pending migrations are applied automatically whenever the database is
opened, so running "migrate" on its own simply creates or upgrades the
database file.

Subcommands:
  status   Show migration status
  rollback Forget the last migration (use with caution!)

Examples:
  commentlens migrate
  commentlens migrate status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context())
		},
	}

	cmd.AddCommand(newMigrateStatusCmd())
	cmd.AddCommand(newMigrateRollbackCmd())

	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context())
		},
	}
}

func newMigrateRollbackCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Forget the last applied migration",
		Long: `Remove the last migration record from schema_migrations.

⚠️  WARNING: schema changes are not reverted. Opening the database again
    re-applies the migration, so this is only useful while developing one.

Use --force to skip the confirmation prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateRollback(cmd.Context(), force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")

	return cmd
}

func withMigrator(ctx context.Context, fn func(ctx context.Context, m *persistence.MigrationManager) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, persistence.NewMigrationManager(db))
}

func runMigrateUp(ctx context.Context) error {
	return withMigrator(ctx, func(ctx context.Context, m *persistence.MigrationManager) error {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Println("✅ All migrations applied successfully")
		return nil
	})
}

func runMigrateStatus(ctx context.Context) error {
	return withMigrator(ctx, func(ctx context.Context, m *persistence.MigrationManager) error {
		status, err := m.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}

		if len(status) == 0 {
			fmt.Println("No migrations found")
			return nil
		}

		fmt.Println("📊 Migration Status")
		fmt.Println(rule)
		fmt.Printf("%-10s %-10s %s\n", "Version", "Status", "Description")
		fmt.Println(rule)

		applied := 0
		for _, s := range status {
			statusStr, icon := "pending", "⏳"
			if s.Applied {
				statusStr, icon = "applied", "✅"
				applied++
			}
			fmt.Printf("%-10d %s %-8s %s\n", s.Version, icon, statusStr, s.Description)
		}

		fmt.Println()
		fmt.Printf("Applied: %d | Pending: %d | Total: %d\n", applied, len(status)-applied, len(status))
		return nil
	})
}

func runMigrateRollback(ctx context.Context, force bool) error {
	if !force {
		fmt.Println("⚠️  WARNING: This only removes the migration record from schema_migrations.")
		fmt.Print("Are you sure you want to proceed? (yes/no): ")

		var response string
		if _, err := fmt.Scanln(&response); err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if response != "yes" {
			fmt.Println("Rollback cancelled")
			return nil
		}
	}

	return withMigrator(ctx, func(ctx context.Context, m *persistence.MigrationManager) error {
		if err := m.Rollback(ctx); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		fmt.Println("⚠️  Migration record removed")
		return nil
	})
}
