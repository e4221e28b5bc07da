package cleanup

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type fakeResult struct{ affected int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

type fakeDB struct {
	queries []string
	args    [][]any
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return fakeResult{affected: 3}, nil
}

func TestSweepQueriesGuardByDomain(t *testing.T) {
	for _, query := range []string{sweepWorkspacesQuery, sweepIdentitiesQuery} {
		for _, want := range []string{
			"is_deleted = true",
			"NOT is_deleted",
			"email ILIKE '%@' || $1",
			"created_at < NOW() - $2::interval",
		} {
			if !strings.Contains(query, want) {
				t.Fatalf("query missing %q:\n%s", want, query)
			}
		}
	}
}

func TestSweepRunsBothStatements(t *testing.T) {
	db := &fakeDB{}
	s, err := NewSweeper(db, "canary.test", 24*time.Hour, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}

	stats, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(db.queries) != 2 {
		t.Fatalf("executed %d statements, want 2", len(db.queries))
	}
	if stats.Workspaces != 3 || stats.Identities != 3 || stats.Total() != 6 {
		t.Fatalf("stats=%+v", stats)
	}
	for _, args := range db.args {
		if args[0] != "canary.test" {
			t.Fatalf("domain arg=%v", args[0])
		}
		if args[1] != "86400 seconds" {
			t.Fatalf("interval arg=%v", args[1])
		}
	}
}

func TestNewSweeperValidation(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	if _, err := NewSweeper(nil, "canary.test", time.Hour, log); err == nil {
		t.Fatalf("accepted nil db")
	}
	if _, err := NewSweeper(&fakeDB{}, "  ", time.Hour, log); err == nil {
		t.Fatalf("accepted empty domain")
	}
	if _, err := NewSweeper(&fakeDB{}, "canary.test", 0, log); err == nil {
		t.Fatalf("accepted zero retention")
	}
}
