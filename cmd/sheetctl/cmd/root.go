// Package cmd implements the sheetctl commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetsmith/sheetsmith/internal/cache"
	"github.com/sheetsmith/sheetsmith/internal/config"
	"github.com/sheetsmith/sheetsmith/internal/identity"
	"github.com/sheetsmith/sheetsmith/internal/metrics"
	"github.com/sheetsmith/sheetsmith/internal/notify"
	"github.com/sheetsmith/sheetsmith/internal/repository"
	"github.com/sheetsmith/sheetsmith/internal/service"
)

// operatorID is the actor recorded for deletions made from the CLI. It
// never matches a profile, so the self-delete guard does not apply.
const operatorID = "sheetctl"

var rootCmd = &cobra.Command{
	Use:   "sheetctl",
	Short: "Operate a Sheetsmith deployment",
	Long: `sheetctl runs maintenance tasks against the Sheetsmith database and cache
using the same configuration as the API server (DATABASE_URL, REDIS_URL, ...).

Examples:
  sheetctl migrate
  sheetctl user show 2b1f...
  sheetctl tier set 2b1f... pro
  sheetctl beta approve 2b1f...
  sheetctl key bootstrap 2b1f... --scopes admin`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("format", "text", "output format: text, json")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "overall command timeout")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// app holds the services a command needs. Close releases connections.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	repo         *repository.Repository
	cache        *cache.Cache
	accounts     *service.AccountService
	entitlements *service.EntitlementService
}

func (a *app) Close() {
	_ = a.cache.Close()
	a.repo.Close()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	c, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.SendGridAPIKey != "" {
		notifier = notify.NewSendGrid(cfg.SendGridAPIKey, cfg.MailFromEmail, cfg.MailFromName, logger)
	}
	recorder := metrics.NewNoop()
	idp := identity.NewClient(cfg.IdentityURL, cfg.IdentityServiceKey, identity.NewHTTPClient(cfg.IdentityTimeout))

	return &app{
		cfg:          cfg,
		logger:       logger,
		repo:         repo,
		cache:        c,
		accounts:     service.NewAccountService(repo, c, idp, notifier, recorder, logger),
		entitlements: service.NewEntitlementService(repo, c, notifier, recorder, logger),
	}, nil
}

// withApp runs fn with a connected app under the --timeout deadline.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func outputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("format")
	return format
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
