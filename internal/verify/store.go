// Package verify reads the monitored system's database to cross-check
// journey progress. All reads use raw SQL against the application
// schema; every query excludes soft-deleted rows.
package verify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/maxeo-ai/journey-canary/internal/domain"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	selectIdentityQuery = `SELECT id, email, totp_secret, created_at
	 FROM users
	 WHERE email ILIKE $1 AND NOT is_deleted
	 LIMIT 1`

	selectWorkspaceQuery = `SELECT id, ulid, status, email, first_name, last_name, created_at, is_deleted
	 FROM workspaces
	 WHERE email ILIKE $1 AND NOT is_deleted
	 ORDER BY created_at DESC
	 LIMIT 1`

	countCategoriesQuery = `SELECT COUNT(*) FROM workspace_categories
	 WHERE workspace_id = $1 AND NOT is_deleted`

	countPromptsQuery = `SELECT COUNT(*) FROM workspace_prompts
	 WHERE workspace_id = $1 AND NOT is_deleted`

	countCompetitorsQuery = `SELECT COUNT(*) FROM workspace_competitors
	 WHERE workspace_id = $1 AND NOT is_deleted`

	listCategoriesQuery = `SELECT id, name, created_at
	 FROM workspace_categories
	 WHERE workspace_id = $1 AND NOT is_deleted
	 ORDER BY created_at ASC
	 LIMIT $2`

	listPromptsQuery = `SELECT id, name, is_tracked, created_at
	 FROM workspace_prompts
	 WHERE workspace_id = $1 AND NOT is_deleted
	 ORDER BY created_at ASC
	 LIMIT $2`

	listCompetitorsQuery = `SELECT wc.id,
	   COALESCE(NULLIF(bdi.name, ''), bdi.domain, 'Unknown') AS name,
	   COALESCE(bdi.domain, 'N/A') AS domain,
	   wc.created_at
	 FROM workspace_competitors wc
	 LEFT JOIN brand_domain_info bdi ON wc.brand_domain_info_id = bdi.id
	 WHERE wc.workspace_id = $1 AND NOT wc.is_deleted
	 ORDER BY wc.created_at ASC
	 LIMIT $2`

	selectLatestSnapshotQuery = `SELECT id, status, created_at
	 FROM snapshots
	 WHERE workspace_id = $1
	 ORDER BY created_at DESC
	 LIMIT 1`

	subitemStatusCountsQuery = `SELECT status, COUNT(*)
	 FROM snapshot_prompts
	 WHERE snapshot_id = $1
	 GROUP BY status`

	modelUsageQuery = `SELECT
	   model,
	   COUNT(*) AS call_count,
	   ROUND(AVG(time_elapsed)::numeric, 2) AS avg_time,
	   ROUND(SUM(time_elapsed)::numeric, 2) AS total_time,
	   ROUND(SUM(total_cost)::numeric, 4) AS total_cost,
	   COALESCE(SUM(total_tokens), 0) AS total_tokens
	 FROM model_invocations
	 WHERE workspace_id = $1
	 GROUP BY model
	 ORDER BY total_time DESC`

	slowestInvocationsQuery = `SELECT model, time_elapsed, COALESCE(total_tokens, 0), created_at
	 FROM model_invocations
	 WHERE workspace_id = $1 AND time_elapsed IS NOT NULL
	 ORDER BY time_elapsed DESC
	 LIMIT $2`

	softDeleteWorkspaceQuery = `UPDATE workspaces
	 SET is_deleted = true, deleted_at = NOW()
	 WHERE id = $1 AND NOT is_deleted AND email ILIKE '%@' || $2`

	softDeleteIdentityQuery = `UPDATE users
	 SET is_deleted = true, deleted_at = NOW()
	 WHERE id = $1 AND NOT is_deleted AND email ILIKE '%@' || $2`
)

// Store executes the raw queries. The email domain guard restricts the
// soft delete statements to canary-owned rows regardless of which id is
// passed in.
type Store struct {
	db          DB
	emailDomain string
}

func NewStore(db DB, emailDomain string) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db, emailDomain: strings.TrimSpace(emailDomain)}
}

func (s *Store) FindIdentity(ctx context.Context, email string) (domain.Identity, error) {
	if s == nil || s.db == nil {
		return domain.Identity{}, fmt.Errorf("verify store not initialized")
	}
	var (
		id     domain.Identity
		secret sql.NullString
	)
	err := s.db.QueryRowContext(ctx, selectIdentityQuery, email).
		Scan(&id.ID, &id.Email, &secret, &id.CreatedAt)
	if err != nil {
		return domain.Identity{}, handleNotFound(err)
	}
	id.TOTPSecret = secret.String
	return id, nil
}

func (s *Store) FindWorkspace(ctx context.Context, email string) (domain.Workspace, error) {
	if s == nil || s.db == nil {
		return domain.Workspace{}, fmt.Errorf("verify store not initialized")
	}
	var (
		ws        domain.Workspace
		firstName sql.NullString
		lastName  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, selectWorkspaceQuery, email).
		Scan(&ws.ID, &ws.ULID, &ws.Status, &ws.Email, &firstName, &lastName, &ws.CreatedAt, &ws.Deleted)
	if err != nil {
		return domain.Workspace{}, handleNotFound(err)
	}
	ws.FirstName = firstName.String
	ws.LastName = lastName.String
	return ws, nil
}

func (s *Store) Count(ctx context.Context, kind domain.EntityKind, workspaceID int64) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("verify store not initialized")
	}
	query, err := countQueryFor(kind)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, workspaceID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) List(ctx context.Context, kind domain.EntityKind, workspaceID int64, limit int) ([]domain.EntityRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("verify store not initialized")
	}
	if limit < 1 {
		limit = 10
	}

	switch kind {
	case domain.KindCategory:
		return s.listCategories(ctx, workspaceID, limit)
	case domain.KindPrompt:
		return s.listPrompts(ctx, workspaceID, limit)
	case domain.KindCompetitor:
		return s.listCompetitors(ctx, workspaceID, limit)
	default:
		return nil, fmt.Errorf("cannot list entity kind %q", kind)
	}
}

func (s *Store) listCategories(ctx context.Context, workspaceID int64, limit int) ([]domain.EntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, listCategoriesQuery, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EntityRecord
	for rows.Next() {
		var rec domain.EntityRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) listPrompts(ctx context.Context, workspaceID int64, limit int) ([]domain.EntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, listPromptsQuery, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EntityRecord
	for rows.Next() {
		var rec domain.EntityRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Tracked, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) listCompetitors(ctx context.Context, workspaceID int64, limit int) ([]domain.EntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, listCompetitorsQuery, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EntityRecord
	for rows.Next() {
		var rec domain.EntityRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) LatestJob(ctx context.Context, workspaceID int64) (domain.Snapshot, error) {
	if s == nil || s.db == nil {
		return domain.Snapshot{}, fmt.Errorf("verify store not initialized")
	}
	var snap domain.Snapshot
	err := s.db.QueryRowContext(ctx, selectLatestSnapshotQuery, workspaceID).
		Scan(&snap.ID, &snap.Status, &snap.CreatedAt)
	if err != nil {
		return domain.Snapshot{}, handleNotFound(err)
	}
	return snap, nil
}

func (s *Store) JobSubitemStatusCounts(ctx context.Context, snapshotID int64) (domain.SubitemStatusCounts, error) {
	if s == nil || s.db == nil {
		return domain.SubitemStatusCounts{}, fmt.Errorf("verify store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, subitemStatusCountsQuery, snapshotID)
	if err != nil {
		return domain.SubitemStatusCounts{}, err
	}
	defer rows.Close()

	var counts domain.SubitemStatusCounts
	for rows.Next() {
		var (
			status sql.NullString
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return domain.SubitemStatusCounts{}, err
		}
		counts.Total += count
		switch strings.ToLower(status.String) {
		case "pending":
			counts.Pending = count
		case "processing":
			counts.Processing = count
		case "completed":
			counts.Completed = count
		case "failed":
			counts.Failed = count
		}
	}
	return counts, rows.Err()
}

func (s *Store) ModelUsage(ctx context.Context, workspaceID int64) (domain.ModelUsageStats, error) {
	if s == nil || s.db == nil {
		return domain.ModelUsageStats{}, fmt.Errorf("verify store not initialized")
	}
	rows, err := s.db.QueryContext(ctx, modelUsageQuery, workspaceID)
	if err != nil {
		return domain.ModelUsageStats{}, err
	}
	defer rows.Close()

	var stats domain.ModelUsageStats
	for rows.Next() {
		var (
			usage   domain.ModelUsage
			avgTime sql.NullFloat64
			total   sql.NullFloat64
			cost    sql.NullFloat64
		)
		if err := rows.Scan(&usage.Model, &usage.Calls, &avgTime, &total, &cost, &usage.TotalTokens); err != nil {
			return domain.ModelUsageStats{}, err
		}
		usage.AvgSeconds = avgTime.Float64
		usage.TotalSeconds = total.Float64
		usage.TotalCost = cost.Float64

		stats.ByModel = append(stats.ByModel, usage)
		stats.TotalCalls += usage.Calls
		stats.TotalSeconds += usage.TotalSeconds
		stats.TotalCost += usage.TotalCost
		stats.TotalTokens += usage.TotalTokens
	}
	return stats, rows.Err()
}

func (s *Store) SlowestInvocations(ctx context.Context, workspaceID int64, limit int) ([]domain.SlowInvocation, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("verify store not initialized")
	}
	if limit < 1 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, slowestInvocationsQuery, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SlowInvocation
	for rows.Next() {
		var inv domain.SlowInvocation
		if err := rows.Scan(&inv.Model, &inv.Seconds, &inv.Tokens, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// SoftDelete marks one canary-owned row deleted. The statement matches
// only rows whose email belongs to the canary domain, so a wrong id can
// never touch customer data.
func (s *Store) SoftDelete(ctx context.Context, kind domain.EntityKind, id int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("verify store not initialized")
	}
	if s.emailDomain == "" {
		return errors.New("email domain guard is required for soft delete")
	}

	var query string
	switch kind {
	case domain.KindWorkspace:
		query = softDeleteWorkspaceQuery
	case domain.KindIdentity:
		query = softDeleteIdentityQuery
	default:
		return fmt.Errorf("cannot soft delete entity kind %q", kind)
	}

	res, err := s.db.ExecContext(ctx, query, id, s.emailDomain)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func countQueryFor(kind domain.EntityKind) (string, error) {
	switch kind {
	case domain.KindCategory:
		return countCategoriesQuery, nil
	case domain.KindPrompt:
		return countPromptsQuery, nil
	case domain.KindCompetitor:
		return countCompetitorsQuery, nil
	default:
		return "", fmt.Errorf("cannot count entity kind %q", kind)
	}
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}
