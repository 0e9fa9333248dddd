package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

var tierCmd = &cobra.Command{
	Use:   "tier",
	Short: "Manage subscription tiers",
}

var tierSetCmd = &cobra.Command{
	Use:   "set <user-id> <free|beta|pro|enterprise>",
	Short: "Move a profile to a tier and reset its limit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := entitlement.ParseTier(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			p, err := a.entitlements.SetTier(ctx, args[0], tier)
			if err != nil {
				return err
			}
			return printProfile(cmd, p)
		})
	},
}

var betaCmd = &cobra.Command{
	Use:   "beta",
	Short: "Review beta access requests",
}

var betaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending beta requests, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			pending, err := a.accounts.ListBetaRequests(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if outputFormat(cmd) == "json" {
				return printJSON(out, pending)
			}
			return writeProfileTable(out, pending, time.Now().UTC())
		})
	},
}

var betaApproveCmd = &cobra.Command{
	Use:   "approve <user-id>",
	Short: "Approve a beta request and move the profile to the beta tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return entitlementAction(cmd, args[0], func(ctx context.Context, a *app, id string) (*model.Profile, error) {
			return a.entitlements.ApproveBeta(ctx, id)
		})
	},
}

var betaRevokeCmd = &cobra.Command{
	Use:   "revoke <user-id>",
	Short: "Revoke beta access and return the profile to the free tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return entitlementAction(cmd, args[0], func(ctx context.Context, a *app, id string) (*model.Profile, error) {
			return a.entitlements.RevokeBeta(ctx, id)
		})
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect and reset operation counters",
}

var usageResetCmd = &cobra.Command{
	Use:   "reset <user-id>",
	Short: "Zero the operation counter and start a new period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return entitlementAction(cmd, args[0], func(ctx context.Context, a *app, id string) (*model.Profile, error) {
			return a.entitlements.ResetUsage(ctx, id)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show user, tier and installation counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			st, err := a.accounts.Stats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if outputFormat(cmd) == "json" {
				return printJSON(out, st)
			}
			fmt.Fprintf(out, "users: %d\n", st.Users)
			for _, t := range entitlement.ValidTiers {
				fmt.Fprintf(out, "  %-10s %d\n", t, st.ByTier[t])
			}
			fmt.Fprintf(out, "pending beta: %d\n", st.PendingBeta)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(tierCmd, betaCmd, usageCmd, statsCmd)
	tierCmd.AddCommand(tierSetCmd)
	betaCmd.AddCommand(betaListCmd, betaApproveCmd, betaRevokeCmd)
	usageCmd.AddCommand(usageResetCmd)

	betaListCmd.Flags().Int("limit", 100, "maximum requests to list")
}

func entitlementAction(cmd *cobra.Command, id string, fn func(ctx context.Context, a *app, id string) (*model.Profile, error)) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		p, err := fn(ctx, a, id)
		if err != nil {
			return err
		}
		return printProfile(cmd, p)
	})
}
