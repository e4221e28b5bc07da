package verify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maxeo-ai/journey-canary/internal/domain"
)

// Thresholds are the minimum counts a fully healthy workspace reaches.
type Thresholds struct {
	MinCategories  int
	MinPrompts     int
	MinCompetitors int
}

// Verifier owns one database connection pool for the lifetime of a run
// and layers the verification checks over the raw Store reads.
type Verifier struct {
	*Store
	db         *sql.DB
	email      string
	thresholds Thresholds
}

func NewVerifier(db *sql.DB, email string, emailDomain string, thresholds Thresholds) *Verifier {
	if db == nil {
		return nil
	}
	return &Verifier{
		Store:      NewStore(db, emailDomain),
		db:         db,
		email:      email,
		thresholds: thresholds,
	}
}

func (v *Verifier) Close() error {
	if v == nil || v.db == nil {
		return nil
	}
	return v.db.Close()
}

// FullVerification runs the comprehensive final pass across every
// entity the journey should have produced. Reads failing with
// ErrNotFound become failed checks; any other read error aborts.
func (v *Verifier) FullVerification(ctx context.Context) (domain.DeepVerification, error) {
	if v == nil || v.Store == nil {
		return domain.DeepVerification{}, fmt.Errorf("verifier not initialized")
	}
	var out domain.DeepVerification

	identity, err := v.FindIdentity(ctx, v.email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		out.Identity = domain.Fail(fmt.Sprintf("user not found for email %s", v.email), nil)
	case err != nil:
		return out, fmt.Errorf("find identity: %w", err)
	default:
		out.Identity = domain.Pass(fmt.Sprintf("user found with id %d", identity.ID),
			map[string]any{"user_id": identity.ID, "email": identity.Email})
	}

	ws, err := v.FindWorkspace(ctx, v.email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		out.Workspace = domain.Fail(fmt.Sprintf("workspace not found for email %s", v.email), nil)
		markSkipped(&out)
		out.Success = false
		return out, nil
	case err != nil:
		return out, fmt.Errorf("find workspace: %w", err)
	}
	out.Workspace = domain.Pass(fmt.Sprintf("workspace found with id %d, ulid %s", ws.ID, ws.ULID),
		map[string]any{"workspace_id": ws.ID, "ulid": ws.ULID, "status": ws.Status})
	out.WorkspaceStatus = checkWorkspaceStatus(ws, domain.WorkspaceStatusCompleted)

	categories, err := v.Count(ctx, domain.KindCategory, ws.ID)
	if err != nil {
		return out, fmt.Errorf("count categories: %w", err)
	}
	out.Categories = checkCount("categories", categories, v.thresholds.MinCategories)

	prompts, err := v.Count(ctx, domain.KindPrompt, ws.ID)
	if err != nil {
		return out, fmt.Errorf("count prompts: %w", err)
	}
	out.Prompts = checkCount("prompts", prompts, v.thresholds.MinPrompts)

	competitors, err := v.Count(ctx, domain.KindCompetitor, ws.ID)
	if err != nil {
		return out, fmt.Errorf("count competitors: %w", err)
	}
	out.Competitors = checkCount("competitors", competitors, v.thresholds.MinCompetitors)

	snap, err := v.LatestJob(ctx, ws.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		out.Snapshot = domain.Fail("no snapshot found for workspace", map[string]any{"workspace_id": ws.ID})
		out.SnapshotComplete = domain.Fail("no snapshot to check", nil)
		out.SubitemsComplete = domain.Fail("no snapshot to check", nil)
	case err != nil:
		return out, fmt.Errorf("latest snapshot: %w", err)
	default:
		out.Snapshot = domain.Pass(fmt.Sprintf("snapshot found with id %d, status %s", snap.ID, snap.Status),
			map[string]any{"snapshot_id": snap.ID, "status": snap.Status})
		out.SnapshotComplete = checkSnapshotStatus(snap)

		counts, err := v.JobSubitemStatusCounts(ctx, snap.ID)
		if err != nil {
			return out, fmt.Errorf("subitem status counts: %w", err)
		}
		out.SubitemsComplete = checkSubitems(counts)
	}

	out.Success = true
	for _, check := range out.Checks() {
		if !check.Result.Success {
			out.Success = false
			break
		}
	}
	return out, nil
}

// Summary captures the full workspace state for reporting. It is
// best-effort around the optional snapshot: a workspace without one
// still yields a summary.
func (v *Verifier) Summary(ctx context.Context) (domain.StateSummary, error) {
	if v == nil || v.Store == nil {
		return domain.StateSummary{}, fmt.Errorf("verifier not initialized")
	}
	ws, err := v.FindWorkspace(ctx, v.email)
	if err != nil {
		return domain.StateSummary{}, fmt.Errorf("find workspace: %w", err)
	}

	out := domain.StateSummary{Workspace: ws}

	if out.CategoryCount, err = v.Count(ctx, domain.KindCategory, ws.ID); err != nil {
		return out, fmt.Errorf("count categories: %w", err)
	}
	if out.Categories, err = v.List(ctx, domain.KindCategory, ws.ID, 10); err != nil {
		return out, fmt.Errorf("list categories: %w", err)
	}
	if out.PromptCount, err = v.Count(ctx, domain.KindPrompt, ws.ID); err != nil {
		return out, fmt.Errorf("count prompts: %w", err)
	}
	if out.Prompts, err = v.List(ctx, domain.KindPrompt, ws.ID, 10); err != nil {
		return out, fmt.Errorf("list prompts: %w", err)
	}
	if out.CompetitorCount, err = v.Count(ctx, domain.KindCompetitor, ws.ID); err != nil {
		return out, fmt.Errorf("count competitors: %w", err)
	}
	if out.Competitors, err = v.List(ctx, domain.KindCompetitor, ws.ID, 10); err != nil {
		return out, fmt.Errorf("list competitors: %w", err)
	}

	snap, err := v.LatestJob(ctx, ws.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return out, fmt.Errorf("latest snapshot: %w", err)
	default:
		out.Snapshot = &snap
		counts, err := v.JobSubitemStatusCounts(ctx, snap.ID)
		if err != nil {
			return out, fmt.Errorf("subitem status counts: %w", err)
		}
		out.SubitemCounts = &counts
	}

	if out.ModelUsage, err = v.ModelUsage(ctx, ws.ID); err != nil {
		return out, fmt.Errorf("model usage: %w", err)
	}
	if out.Slowest, err = v.SlowestInvocations(ctx, ws.ID, 5); err != nil {
		return out, fmt.Errorf("slowest invocations: %w", err)
	}
	return out, nil
}

func markSkipped(out *domain.DeepVerification) {
	skipped := domain.Fail("skipped: workspace not found", nil)
	out.WorkspaceStatus = skipped
	out.Categories = skipped
	out.Prompts = skipped
	out.Snapshot = skipped
	out.SnapshotComplete = skipped
	out.SubitemsComplete = skipped
	out.Competitors = skipped
}

func checkCount(label string, count, minCount int) domain.VerificationResult {
	data := map[string]any{fmt.Sprintf("%s_count", label): count}
	if count >= minCount {
		return domain.Pass(fmt.Sprintf("found %d %s (minimum: %d)", count, label, minCount), data)
	}
	return domain.Fail(fmt.Sprintf("found only %d %s, expected at least %d", count, label, minCount), data)
}

func checkWorkspaceStatus(ws domain.Workspace, expected string) domain.VerificationResult {
	if ws.Status == expected {
		return domain.Pass(fmt.Sprintf("workspace status is %s", expected),
			map[string]any{"workspace_id": ws.ID, "status": ws.Status})
	}
	return domain.Fail(fmt.Sprintf("workspace status is %s, expected %s", ws.Status, expected),
		map[string]any{"workspace_id": ws.ID, "actual_status": ws.Status})
}

func checkSnapshotStatus(snap domain.Snapshot) domain.VerificationResult {
	if snap.Status == domain.SnapshotStatusCompleted {
		return domain.Pass(fmt.Sprintf("snapshot %d is completed", snap.ID),
			map[string]any{"snapshot_id": snap.ID, "status": snap.Status})
	}
	return domain.Fail(fmt.Sprintf("snapshot status is %s, expected %s", snap.Status, domain.SnapshotStatusCompleted),
		map[string]any{"snapshot_id": snap.ID, "actual_status": snap.Status})
}

func checkSubitems(counts domain.SubitemStatusCounts) domain.VerificationResult {
	data := map[string]any{
		"total":      counts.Total,
		"pending":    counts.Pending,
		"processing": counts.Processing,
		"completed":  counts.Completed,
		"failed":     counts.Failed,
	}
	switch {
	case counts.Total == 0:
		return domain.Fail("no snapshot prompts found", data)
	case counts.Failed > 0:
		return domain.Fail(fmt.Sprintf("%d prompts failed", counts.Failed), data)
	case !counts.Settled():
		return domain.Fail(fmt.Sprintf("prompts still processing: %d pending, %d processing",
			counts.Pending, counts.Processing), data)
	default:
		return domain.Pass(fmt.Sprintf("all %d prompts completed", counts.Completed), data)
	}
}
