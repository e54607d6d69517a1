package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/devfurlan/cuidly-sub007/internal/bootstrap"
	"github.com/devfurlan/cuidly-sub007/pkg/migrate"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the embedded schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(m *migrate.Migrator) error {
				applied, err := m.Up(cmd.Context())
				printApplied(cmd, applied)
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(m *migrate.Migrator) error {
				applied, err := m.Down(cmd.Context())
				printApplied(cmd, applied)
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version <YYYYMMDDHHMMSS>",
		Short: "Migrate up or down to a target version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(m *migrate.Migrator) error {
				applied, err := m.To(cmd.Context(), args[0])
				printApplied(cmd, applied)
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(m *migrate.Migrator) error {
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tAPPLIED AT\tFILE")
				for _, s := range statuses {
					appliedAt := s.AppliedAt
					if !s.Applied {
						appliedAt = "pending"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, appliedAt, s.Path)
				}
				return w.Flush()
			})
		},
	})

	var dir string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty SQL migration in the source tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := migrate.Create(dir, args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created", path)
			return nil
		},
	}
	create.Flags().StringVar(&dir, "dir", migrate.SourceDir, "directory to write the migration into")
	cmd.AddCommand(create)

	var validateDir string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check migration names and goose annotations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fsys := migrate.Migrations()
			if validateDir != "" {
				fsys = os.DirFS(validateDir)
			}
			if err := migrate.Validate(fsys); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations ok")
			return nil
		},
	}
	validate.Flags().StringVar(&validateDir, "dir", "", "validate a directory instead of the embedded set")
	cmd.AddCommand(validate)

	return cmd
}

func printApplied(cmd *cobra.Command, applied []migrate.Applied) {
	if len(applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "schema already up to date")
		return
	}
	for _, a := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "%-4s %d %s (%s)\n", a.Direction, a.Version, a.Path, a.Duration)
	}
}

// withMigrator opens only the database; migrations never need redis or the gateway.
func withMigrator(ctx context.Context, fn func(*migrate.Migrator) error) error {
	cfg, logg, err := bootstrap.LoadConfig(serviceName)
	if err != nil {
		return err
	}
	rt, err := bootstrap.Open(ctx, cfg, logg, bootstrap.RuntimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	sqlDB, err := rt.DB.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	m, err := migrate.New(sqlDB)
	if err != nil {
		return err
	}
	return fn(m)
}
