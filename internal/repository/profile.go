package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

// Common errors for profile repository operations.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrEmailExists     = errors.New("email already exists")
)

const profileColumns = `
	id, email, display_name, tier, operations_used, operations_limit,
	usage_period_start, is_admin, beta_requested_at, beta_approved_at,
	beta_revoked_at, email_verified, newsletter_subscribed, created_at, updated_at
`

// CreateProfile inserts a new profile.
func (r *Repository) CreateProfile(ctx context.Context, p *model.Profile) error {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.pool.Exec(ctx, query,
		p.ID,
		model.NormalizeEmail(p.Email),
		p.DisplayName,
		string(p.Tier),
		p.OperationsUsed,
		p.OperationsLimit.Nullable(),
		p.UsagePeriodStart,
		p.IsAdmin,
		p.BetaRequestedAt,
		p.BetaApprovedAt,
		p.BetaRevokedAt,
		p.EmailVerified,
		p.NewsletterSubscribed,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// GetProfile retrieves a profile by identity user id.
func (r *Repository) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return scanProfile(r.pool.QueryRow(ctx, query, id))
}

// GetProfileByEmail retrieves a profile by normalized email.
func (r *Repository) GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE email = $1`
	return scanProfile(r.pool.QueryRow(ctx, query, model.NormalizeEmail(email)))
}

// EnsureProfile returns the profile for p.ID, inserting p if none exists.
// created reports whether this call inserted the row. Concurrent first
// sign-ins for the same user converge on a single row.
func (r *Repository) EnsureProfile(ctx context.Context, p *model.Profile) (profile *model.Profile, created bool, err error) {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		p.ID,
		model.NormalizeEmail(p.Email),
		p.DisplayName,
		string(p.Tier),
		p.OperationsUsed,
		p.OperationsLimit.Nullable(),
		p.UsagePeriodStart,
		p.IsAdmin,
		p.BetaRequestedAt,
		p.BetaApprovedAt,
		p.BetaRevokedAt,
		p.EmailVerified,
		p.NewsletterSubscribed,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, ErrEmailExists
		}
		return nil, false, fmt.Errorf("failed to ensure profile: %w", err)
	}

	profile, err = r.GetProfile(ctx, p.ID)
	if errors.Is(err, ErrProfileNotFound) {
		// The insert was skipped because another profile owns the email.
		return nil, false, ErrEmailExists
	}
	if err != nil {
		return nil, false, err
	}

	// Verification status only moves forward.
	if tag.RowsAffected() == 0 && p.EmailVerified && !profile.EmailVerified {
		if _, err := r.pool.Exec(ctx,
			`UPDATE profiles SET email_verified = TRUE, updated_at = $2 WHERE id = $1`,
			p.ID, r.now().UTC(),
		); err != nil {
			return nil, false, fmt.Errorf("failed to mark email verified: %w", err)
		}
		profile.EmailVerified = true
	}

	return profile, tag.RowsAffected() == 1, nil
}

// UpdateProfileFields applies user-editable changes and returns the result.
func (r *Repository) UpdateProfileFields(ctx context.Context, id string, upd model.ProfileUpdate) (*model.Profile, error) {
	query := `
		UPDATE profiles SET
			display_name = COALESCE($2, display_name),
			newsletter_subscribed = COALESCE($3, newsletter_subscribed),
			updated_at = $4
		WHERE id = $1
		RETURNING ` + profileColumns

	p, err := scanProfile(r.pool.QueryRow(ctx, query, id, upd.DisplayName, upd.NewsletterSubscribed, r.now().UTC()))
	if err != nil {
		return nil, err
	}

	if upd.NewsletterSubscribed != nil {
		if err := r.UpsertEmailPreferences(ctx, &model.EmailPreferences{
			ProfileID:  id,
			Newsletter: *upd.NewsletterSubscribed,
			UpdatedAt:  p.UpdatedAt,
		}); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// SetAdmin flips the admin flag.
func (r *Repository) SetAdmin(ctx context.Context, id string, isAdmin bool) (*model.Profile, error) {
	query := `
		UPDATE profiles SET is_admin = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + profileColumns

	return scanProfile(r.pool.QueryRow(ctx, query, id, isAdmin, r.now().UTC()))
}

// WithProfileForUpdate runs fn against a row-locked copy of the profile and
// persists the entitlement columns fn leaves behind, all in one transaction.
// If fn returns an error nothing is written and the error is returned as is.
func (r *Repository) WithProfileForUpdate(ctx context.Context, id string, fn func(p *model.Profile) error) (*model.Profile, error) {
	var out *model.Profile

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := scanProfile(tx.QueryRow(ctx,
			`SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if err := fn(p); err != nil {
			return err
		}

		p.UpdatedAt = r.now().UTC()
		if err := saveEntitlement(ctx, tx, p); err != nil {
			return err
		}

		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// saveEntitlement writes the entitlement columns of p. Tier and limit are
// always written together.
func saveEntitlement(ctx context.Context, q querier, p *model.Profile) error {
	query := `
		UPDATE profiles SET
			tier = $2,
			operations_limit = $3,
			operations_used = $4,
			usage_period_start = $5,
			beta_requested_at = $6,
			beta_approved_at = $7,
			beta_revoked_at = $8,
			updated_at = $9
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query,
		p.ID,
		string(p.Tier),
		p.OperationsLimit.Nullable(),
		p.OperationsUsed,
		p.UsagePeriodStart,
		p.BetaRequestedAt,
		p.BetaApprovedAt,
		p.BetaRevokedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save entitlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}

	return nil
}

// ListProfiles returns a page of profiles, newest first.
func (r *Repository) ListProfiles(ctx context.Context, filter model.ProfileFilter, cursor string, limit int) ([]*model.Profile, string, error) {
	var cursorData *PaginationCursor
	if cursor != "" {
		var err error
		if cursorData, err = decodeCursor(cursor); err != nil {
			return nil, "", err
		}
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Tier != "" {
		query += " AND tier = " + arg(string(filter.Tier))
	}
	if filter.Email != "" {
		query += " AND email ILIKE " + arg("%"+model.NormalizeEmail(filter.Email)+"%")
	}
	if filter.BetaStatus != "" {
		clause, ok := betaStatusClause[filter.BetaStatus]
		if !ok {
			return nil, "", fmt.Errorf("unknown beta status %q", filter.BetaStatus)
		}
		query += " AND " + clause
	}
	if cursorData != nil {
		query += fmt.Sprintf(" AND (created_at, id) < (%s, %s)", arg(cursorData.CreatedAt), arg(cursorData.ID))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(limit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, "", err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating profiles: %w", err)
	}

	var next string
	if len(profiles) > limit {
		profiles = profiles[:limit]
		last := profiles[len(profiles)-1]
		next = encodeCursor(&PaginationCursor{ID: last.ID, CreatedAt: last.CreatedAt})
	}

	return profiles, next, nil
}

// pendingBeta mirrors entitlement.StatusOf for the pending state.
const pendingBeta = `(tier <> 'beta' AND beta_requested_at IS NOT NULL
	AND (beta_revoked_at IS NULL OR beta_requested_at > beta_revoked_at)
	AND (beta_approved_at IS NULL OR beta_requested_at > beta_approved_at))`

var betaStatusClause = map[entitlement.BetaStatus]string{
	entitlement.BetaApproved:  `tier = 'beta'`,
	entitlement.BetaPending:   pendingBeta,
	entitlement.BetaRevoked:   `(tier <> 'beta' AND beta_revoked_at IS NOT NULL AND NOT ` + pendingBeta + `)`,
	entitlement.BetaNoRequest: `(tier <> 'beta' AND beta_revoked_at IS NULL AND NOT ` + pendingBeta + `)`,
}

// ListPendingBeta returns profiles awaiting beta approval, oldest request first.
func (r *Repository) ListPendingBeta(ctx context.Context, limit int) ([]*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE ` + pendingBeta +
		` ORDER BY beta_requested_at ASC, id ASC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list beta requests: %w", err)
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

// DeleteProfile removes the profile and every dependent row in one
// transaction.
func (r *Repository) DeleteProfile(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM installations WHERE profile_id = $1`,
			`DELETE FROM email_preferences WHERE profile_id = $1`,
			`DELETE FROM api_keys WHERE user_id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return fmt.Errorf("failed to delete profile dependents: %w", err)
			}
		}

		tag, err := tx.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete profile: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrProfileNotFound
		}
		return nil
	})
}

// CountByTier returns the number of profiles on each tier. Tiers with no
// profiles are reported as zero.
func (r *Repository) CountByTier(ctx context.Context) (map[entitlement.Tier]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT tier, COUNT(*) FROM profiles GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("failed to count profiles by tier: %w", err)
	}
	defer rows.Close()

	counts := make(map[entitlement.Tier]int64, len(entitlement.ValidTiers))
	for _, t := range entitlement.ValidTiers {
		counts[t] = 0
	}
	for rows.Next() {
		var tier string
		var n int64
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("failed to scan tier count: %w", err)
		}
		counts[entitlement.Tier(tier)] = n
	}

	return counts, rows.Err()
}

// CountPendingBeta returns the size of the beta approval queue.
func (r *Repository) CountPendingBeta(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM profiles WHERE `+pendingBeta).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count beta requests: %w", err)
	}
	return n, nil
}

// scanProfile scans one profile row from a pgx.Row or pgx.Rows.
func scanProfile(row pgx.Row) (*model.Profile, error) {
	var (
		p     model.Profile
		tier  string
		limit *int64
	)

	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.DisplayName,
		&tier,
		&p.OperationsUsed,
		&limit,
		&p.UsagePeriodStart,
		&p.IsAdmin,
		&p.BetaRequestedAt,
		&p.BetaApprovedAt,
		&p.BetaRevokedAt,
		&p.EmailVerified,
		&p.NewsletterSubscribed,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	p.Tier = entitlement.Tier(tier)
	p.OperationsLimit = entitlement.LimitFromNullable(limit)
	p.UsagePeriodStart = p.UsagePeriodStart.UTC()
	return &p, nil
}
