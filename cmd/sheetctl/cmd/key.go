package cmd

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Issue API keys outside the self-service flow",
}

var keyBootstrapCmd = &cobra.Command{
	Use:   "bootstrap <user-id>",
	Short: "Mint an API key for an existing profile, admin scope allowed",
	Long: `Mint an API key for an existing profile. Unlike the self-service endpoint
this may grant the admin scope. The plaintext key is printed once.`,
	Args: cobra.ExactArgs(1),
	RunE: runKeyBootstrap,
}

type bootstrapOutput struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email"`
	KeyID     string   `json:"key_id"`
	Key       string   `json:"key"`
	KeyPrefix string   `json:"key_prefix"`
	Scopes    []string `json:"scopes"`
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyBootstrapCmd)
	keyBootstrapCmd.Flags().String("name", "bootstrap", "API key name")
	keyBootstrapCmd.Flags().String("scopes", "usage,bridge", "comma-separated scopes (usage,bridge,admin)")
}

func runKeyBootstrap(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	scopesInput, _ := cmd.Flags().GetString("scopes")
	scopes, err := parseScopes(scopesInput)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		p, err := a.repo.GetProfile(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load profile %s: %w", args[0], err)
		}

		generated, err := auth.GenerateAPIKey(a.cfg.APIKeyEnv())
		if err != nil {
			return fmt.Errorf("generate api key: %w", err)
		}
		key := &model.APIKey{
			ID:        ulid.Make().String(),
			UserID:    p.ID,
			KeyHash:   generated.Hash,
			KeyPrefix: generated.Prefix,
			Scopes:    scopes,
			Name:      name,
			CreatedAt: time.Now().UTC(),
		}
		if err := a.repo.CreateAPIKey(ctx, key); err != nil {
			return fmt.Errorf("create api key: %w", err)
		}

		out := cmd.OutOrStdout()
		if outputFormat(cmd) == "json" {
			return printJSON(out, bootstrapOutput{
				UserID:    p.ID,
				Email:     p.Email,
				KeyID:     key.ID,
				Key:       generated.Plaintext,
				KeyPrefix: key.KeyPrefix,
				Scopes:    scopes,
			})
		}
		fmt.Fprintln(out, generated.Plaintext)
		return nil
	})
}

// parseScopes splits a comma-separated list, rejecting unknown scopes.
// An empty list yields the default scopes.
func parseScopes(input string) ([]string, error) {
	var scopes []string
	for _, part := range strings.Split(input, ",") {
		scope := strings.ToLower(strings.TrimSpace(part))
		if scope == "" {
			continue
		}
		if !slices.Contains(model.ValidScopes, scope) {
			return nil, fmt.Errorf("invalid scope: %s", scope)
		}
		if !slices.Contains(scopes, scope) {
			scopes = append(scopes, scope)
		}
	}
	if len(scopes) == 0 {
		return slices.Clone(model.DefaultScopes), nil
	}
	return scopes, nil
}
