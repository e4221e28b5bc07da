package verify

import (
	"strings"
	"testing"

	"github.com/maxeo-ai/journey-canary/internal/domain"
)

func TestQueriesExcludeDeletedRows(t *testing.T) {
	queries := map[string]string{
		"selectIdentity":   selectIdentityQuery,
		"selectWorkspace":  selectWorkspaceQuery,
		"countCategories":  countCategoriesQuery,
		"countPrompts":     countPromptsQuery,
		"countCompetitors": countCompetitorsQuery,
		"listCategories":   listCategoriesQuery,
		"listPrompts":      listPromptsQuery,
		"listCompetitors":  listCompetitorsQuery,
	}
	for name, query := range queries {
		if !strings.Contains(query, "is_deleted") {
			t.Fatalf("%s query does not filter deleted rows", name)
		}
	}
}

func TestIdentityQueriesMatchCaseInsensitively(t *testing.T) {
	for name, query := range map[string]string{
		"selectIdentity":  selectIdentityQuery,
		"selectWorkspace": selectWorkspaceQuery,
	} {
		if !strings.Contains(query, "ILIKE") {
			t.Fatalf("%s query must match email case-insensitively", name)
		}
	}
}

func TestWorkspaceQueryPicksNewestRow(t *testing.T) {
	if !strings.Contains(selectWorkspaceQuery, "ORDER BY created_at DESC") {
		t.Fatalf("workspace query must order newest first")
	}
	if !strings.Contains(selectWorkspaceQuery, "LIMIT 1") {
		t.Fatalf("workspace query must return a single row")
	}
	if !strings.Contains(selectLatestSnapshotQuery, "ORDER BY created_at DESC") {
		t.Fatalf("snapshot query must order newest first")
	}
}

func TestSoftDeleteQueriesGuardedByEmailDomain(t *testing.T) {
	for name, query := range map[string]string{
		"softDeleteWorkspace": softDeleteWorkspaceQuery,
		"softDeleteIdentity":  softDeleteIdentityQuery,
	} {
		if !strings.Contains(query, "email ILIKE '%@' || $2") {
			t.Fatalf("%s query missing the email domain guard", name)
		}
		if !strings.Contains(query, "NOT is_deleted") {
			t.Fatalf("%s query must skip already deleted rows", name)
		}
		if !strings.Contains(query, "is_deleted = true") {
			t.Fatalf("%s query must soft delete, not hard delete", name)
		}
	}
}

func TestCountQueryFor(t *testing.T) {
	for _, kind := range []domain.EntityKind{domain.KindCategory, domain.KindPrompt, domain.KindCompetitor} {
		if _, err := countQueryFor(kind); err != nil {
			t.Fatalf("countQueryFor(%q) err=%v", kind, err)
		}
	}
	if _, err := countQueryFor(domain.KindIdentity); err == nil {
		t.Fatalf("countQueryFor(identity) expected error")
	}
}

func TestNewStoreNilDB(t *testing.T) {
	if NewStore(nil, "canary.maxeo.ai") != nil {
		t.Fatalf("NewStore(nil) must return nil")
	}
}
