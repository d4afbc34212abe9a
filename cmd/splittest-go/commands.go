package main

import (
	"context"
	"fmt"
	"os"

	"github.com/AtRiskMedia/splittest-go/internal/application/services"
	"github.com/AtRiskMedia/splittest-go/internal/application/startup"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
	"github.com/AtRiskMedia/splittest-go/pkg/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "splittest-go",
		Short:         "Multi-tenant A/B split test assignment server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newRebuildCmd(),
		newSeedCmd(),
		newUserCmd(),
	)
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			return startup.Initialize(settings)
		},
	}
}

// withTenant bootstraps the runtime and resolves one tenant for a one-shot
// command. The runtime always uses the memory cache so it never contends for
// a badger directory held by the running server.
func withTenant(cmd *cobra.Command, tenantID string, fn func(ctx context.Context, rt *startup.Runtime, tc *tenant.Context) error) error {
	settings, err := config.Load()
	if err != nil {
		return err
	}
	settings.CacheBackend = "memory"
	if err := tenant.RegisterTenant(settings.ConfigDir(), tenantID); err != nil {
		return fmt.Errorf("failed to register tenant %s: %w", tenantID, err)
	}

	rt, err := startup.Bootstrap(settings)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	tc, err := rt.TenantManager.ContextFor(ctx, tenantID)
	if err != nil {
		return err
	}
	return fn(ctx, rt, tc)
}

func newMigrateCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the split test tables for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTenant(cmd, tenantID, func(ctx context.Context, rt *startup.Runtime, tc *tenant.Context) error {
				// the tenant context ensures the schema when it opens
				fmt.Fprintf(cmd.OutOrStdout(), "Schema ready for tenant %s (%s)\n", tc.TenantID, tc.GetDatabaseInfo())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", tenant.DefaultTenantID, "tenant id")
	return cmd
}

func newRebuildCmd() *cobra.Command {
	var tenantID string
	var refresh serverRefresh
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the active set of a running server from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := refresh.validate(); err != nil {
				return err
			}
			return withTenant(cmd, tenantID, func(ctx context.Context, rt *startup.Runtime, tc *tenant.Context) error {
				snapshot, err := rt.Container.ActiveSetService.RebuildWithTrigger(ctx, tc, metrics.TriggerManual)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Active set for tenant %s: %d experiments, %d cohorts\n",
					tc.TenantID, len(snapshot.ExperimentActiveUUIDs), len(snapshot.CohortActiveUUIDs))
				return refresh.run(ctx, cmd.OutOrStdout(), rt.Settings.Port, tc)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", tenant.DefaultTenantID, "tenant id")
	refresh.bindFlags(cmd)
	return cmd
}

func newSeedCmd() *cobra.Command {
	var tenantID, file string
	var refresh serverRefresh
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert experiments and cohorts from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := refresh.validate(); err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open seed file: %w", err)
			}
			defer f.Close()

			seed, err := services.ParseSeed(f)
			if err != nil {
				return err
			}

			return withTenant(cmd, tenantID, func(ctx context.Context, rt *startup.Runtime, tc *tenant.Context) error {
				result, err := rt.Container.SeedService.Apply(ctx, tc, seed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded tenant %s: experiments %d created, %d updated; cohorts %d created, %d updated\n",
					tc.TenantID, result.ExperimentsCreated, result.ExperimentsUpdated, result.CohortsCreated, result.CohortsUpdated)
				return refresh.run(ctx, cmd.OutOrStdout(), rt.Settings.Port, tc)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", tenant.DefaultTenantID, "tenant id")
	cmd.Flags().StringVar(&file, "file", "", "seed YAML file")
	refresh.bindFlags(cmd)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newUserCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage login accounts",
	}

	var tenantID, username, password string
	var staff bool
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a login account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTenant(cmd, tenantID, func(ctx context.Context, rt *startup.Runtime, tc *tenant.Context) error {
				account, err := rt.Container.AuthService.CreateUser(ctx, tc, username, password, staff)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d, staff %t) for tenant %s\n", account.Username, account.ID, account.IsStaff, tc.TenantID)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&tenantID, "tenant", tenant.DefaultTenantID, "tenant id")
	createCmd.Flags().StringVar(&username, "username", "", "login name")
	createCmd.Flags().StringVar(&password, "password", "", "login password")
	createCmd.Flags().BoolVar(&staff, "staff", false, "grant access to the admin API")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("password")

	userCmd.AddCommand(createCmd)
	return userCmd
}
