package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sheetsmith/sheetsmith/internal/model"
)

// BulkInsertInstallations inserts events idempotently; replays of the same
// event_id are ignored.
func (r *Repository) BulkInsertInstallations(ctx context.Context, events []*model.Installation) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO installations (
			id, event_id, install_id, profile_id, event, addon_version, domain, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query,
			e.ID,
			e.EventID,
			e.InstallID,
			nullableString(e.ProfileID),
			e.Event,
			nullableString(e.AddonVersion),
			nullableString(e.Domain),
			e.OccurredAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert installation %d: %w", i, err)
		}
	}

	return nil
}

// InstallationStats counts lifecycle events. An installation is active when
// its most recent event is not an uninstall.
func (r *Repository) InstallationStats(ctx context.Context) (*model.InstallationStats, error) {
	var s model.InstallationStats

	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE event = 'installed'),
			COUNT(*) FILTER (WHERE event = 'uninstalled')
		FROM installations
	`).Scan(&s.Installed, &s.Uninstalled)
	if err != nil {
		return nil, fmt.Errorf("query installation counts: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT DISTINCT ON (install_id) event
			FROM installations
			ORDER BY install_id, occurred_at DESC
		) latest
		WHERE event <> 'uninstalled'
	`).Scan(&s.Active)
	if err != nil {
		return nil, fmt.Errorf("query active installations: %w", err)
	}

	return &s, nil
}

// UpsertEmailPreferences records the marketing opt-in for a profile.
func (r *Repository) UpsertEmailPreferences(ctx context.Context, prefs *model.EmailPreferences) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO email_preferences (profile_id, newsletter, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (profile_id) DO UPDATE SET
			newsletter = EXCLUDED.newsletter,
			updated_at = EXCLUDED.updated_at
	`, prefs.ProfileID, prefs.Newsletter, prefs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert email preferences: %w", err)
	}
	return nil
}
