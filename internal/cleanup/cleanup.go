// Package cleanup removes leftover canary rows from the monitored
// database. Interrupted runs leave identities and workspaces behind;
// the sweeper soft-deletes anything older than the retention window.
// Every statement carries the canary email domain guard, so customer
// rows are unreachable by construction.
package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const (
	sweepWorkspacesQuery = `UPDATE workspaces
	 SET is_deleted = true, deleted_at = NOW()
	 WHERE NOT is_deleted
	   AND email ILIKE '%@' || $1
	   AND created_at < NOW() - $2::interval`

	sweepIdentitiesQuery = `UPDATE users
	 SET is_deleted = true, deleted_at = NOW()
	 WHERE NOT is_deleted
	   AND email ILIKE '%@' || $1
	   AND created_at < NOW() - $2::interval`
)

// Stats reports how many rows one sweep removed.
type Stats struct {
	Workspaces int64
	Identities int64
}

func (s Stats) Total() int64 {
	return s.Workspaces + s.Identities
}

// Sweeper soft-deletes stale canary rows.
type Sweeper struct {
	db          DB
	emailDomain string
	retention   time.Duration
	log         *slog.Logger
}

func NewSweeper(db DB, emailDomain string, retention time.Duration, log *slog.Logger) (*Sweeper, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	if strings.TrimSpace(emailDomain) == "" {
		return nil, errors.New("email domain guard is required")
	}
	if retention <= 0 {
		return nil, errors.New("retention must be positive")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		db:          db,
		emailDomain: strings.TrimSpace(emailDomain),
		retention:   retention,
		log:         log,
	}, nil
}

// Sweep removes every canary row older than the retention window and
// reports how many rows each statement touched.
func (s *Sweeper) Sweep(ctx context.Context) (Stats, error) {
	interval := intervalLiteral(s.retention)
	s.log.Info("sweeping stale canary data",
		"email_domain", s.emailDomain, "older_than", s.retention)

	var stats Stats
	var err error
	if stats.Workspaces, err = s.exec(ctx, sweepWorkspacesQuery, interval); err != nil {
		return stats, fmt.Errorf("sweep workspaces: %w", err)
	}
	if stats.Identities, err = s.exec(ctx, sweepIdentitiesQuery, interval); err != nil {
		return stats, fmt.Errorf("sweep identities: %w", err)
	}

	s.log.Info("sweep finished",
		"workspaces", stats.Workspaces, "identities", stats.Identities)
	return stats, nil
}

func (s *Sweeper) exec(ctx context.Context, query, interval string) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, s.emailDomain, interval)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// intervalLiteral renders the retention as a Postgres interval string.
func intervalLiteral(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d.Seconds()))
}
