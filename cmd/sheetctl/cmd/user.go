package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Inspect and manage user profiles",
}

var userShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a profile with its entitlement and usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			p, err := a.accounts.GetProfile(ctx, args[0])
			if err != nil {
				return err
			}
			return printProfile(cmd, p)
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles, newest first",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a profile, its API keys and the identity account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to delete %s without --yes", args[0])
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.accounts.DeleteAccount(ctx, operatorID, args[0], true)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if outputFormat(cmd) == "json" {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "deleted %s\n", args[0])
			if res.Warning != "" {
				fmt.Fprintf(out, "warning: %s\n", res.Warning)
			}
			return nil
		})
	},
}

var userAdminCmd = &cobra.Command{
	Use:   "admin <user-id> <true|false>",
	Short: "Grant or remove the admin flag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var isAdmin bool
		switch args[1] {
		case "true":
			isAdmin = true
		case "false":
		default:
			return fmt.Errorf("admin flag must be true or false, got %q", args[1])
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			p, err := a.accounts.SetAdmin(ctx, operatorID, args[0], isAdmin)
			if err != nil {
				return err
			}
			return printProfile(cmd, p)
		})
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userShowCmd, userListCmd, userDeleteCmd, userAdminCmd)

	userListCmd.Flags().String("tier", "", "only profiles on this tier")
	userListCmd.Flags().String("beta-status", "", "only profiles in this beta state (none, pending, approved, revoked)")
	userListCmd.Flags().String("email", "", "only profiles whose email contains this text")
	userListCmd.Flags().String("cursor", "", "resume after this cursor")
	userListCmd.Flags().Int("limit", 50, "maximum profiles to list")

	userDeleteCmd.Flags().Bool("yes", false, "confirm the deletion")
}

func runUserList(cmd *cobra.Command, _ []string) error {
	tier, _ := cmd.Flags().GetString("tier")
	beta, _ := cmd.Flags().GetString("beta-status")
	email, _ := cmd.Flags().GetString("email")
	cursor, _ := cmd.Flags().GetString("cursor")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := model.ProfileFilter{
		Tier:       entitlement.Tier(tier),
		BetaStatus: entitlement.BetaStatus(beta),
		Email:      email,
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		page, err := a.accounts.ListUsers(ctx, filter, cursor, limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if outputFormat(cmd) == "json" {
			return printJSON(out, map[string]any{"users": page.Users, "next_cursor": page.NextCursor})
		}
		if err := writeProfileTable(out, page.Users, time.Now().UTC()); err != nil {
			return err
		}
		if page.NextCursor != "" {
			fmt.Fprintf(out, "\nnext cursor: %s\n", page.NextCursor)
		}
		return nil
	})
}
