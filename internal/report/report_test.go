package report

import (
	"strings"
	"testing"
	"time"

	"github.com/maxeo-ai/journey-canary/internal/anomaly"
	"github.com/maxeo-ai/journey-canary/internal/domain"
	"github.com/maxeo-ai/journey-canary/internal/metrics"
)

var thresholds = anomaly.Thresholds{MinPrompts: 15, HealthyPrompts: 20, MinCompetitors: 1}

func completedState() *domain.StateSummary {
	return &domain.StateSummary{
		Workspace:       domain.Workspace{ID: 1, ULID: "01ABC", Status: domain.WorkspaceStatusCompleted},
		PromptCount:     25,
		CompetitorCount: 2,
		Snapshot:        &domain.Snapshot{ID: 3, Status: domain.SnapshotStatusCompleted},
		SubitemCounts:   &domain.SubitemStatusCounts{Total: 25, Completed: 25},
	}
}

func collectorFor(t *testing.T, runID string) *metrics.Collector {
	t.Helper()
	col := metrics.NewCollector(runID)
	start := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	col.Start(start)
	col.Finish(start.Add(6 * time.Minute))
	return col
}

func TestBuildHealthy(t *testing.T) {
	run := domain.CanaryRun{
		ID:            "run-1",
		Email:         "probe@canary.test",
		WorkspaceID:   1,
		WorkspaceULID: "01ABC",
		Outcome:       domain.Outcome{Kind: domain.OutcomeSuccess},
	}
	result := Build(run, collectorFor(t, run.ID), completedState(), nil, nil, nil, thresholds)

	if !result.Healthy {
		t.Fatalf("Healthy=false for a completed run")
	}
	if result.TotalDuration() != 6*time.Minute {
		t.Fatalf("TotalDuration()=%v", result.TotalDuration())
	}
	if len(result.Findings) != 1 || result.Findings[0].Severity != domain.SeverityInfo {
		t.Fatalf("findings=%+v, want single all-clear", result.Findings)
	}
}

func TestBuildDowngradesIncompleteState(t *testing.T) {
	run := domain.CanaryRun{
		ID:      "run-2",
		Email:   "probe@canary.test",
		Outcome: domain.Outcome{Kind: domain.OutcomeSuccess},
	}

	state := completedState()
	state.Workspace.Status = domain.WorkspaceStatusInterStep2
	result := Build(run, collectorFor(t, run.ID), state, nil, nil, nil, thresholds)
	if result.Healthy {
		t.Fatalf("Healthy=true with workspace not COMPLETED")
	}

	state = completedState()
	state.Snapshot.Status = domain.SnapshotStatusFailed
	result = Build(run, collectorFor(t, run.ID), state, nil, nil, nil, thresholds)
	if result.Healthy {
		t.Fatalf("Healthy=true with snapshot FAILED")
	}

	result = Build(run, collectorFor(t, run.ID), nil, nil, nil, nil, thresholds)
	if result.Healthy {
		t.Fatalf("Healthy=true with no state summary")
	}
}

func TestBuildFailedRunNeverHealthy(t *testing.T) {
	run := domain.CanaryRun{
		ID:      "run-3",
		Email:   "probe@canary.test",
		Outcome: domain.Outcome{Kind: domain.OutcomeFailed, Step: domain.StepWorkspaceCreated, Message: "timeout"},
	}
	result := Build(run, collectorFor(t, run.ID), completedState(), nil, nil, nil, thresholds)
	if result.Healthy {
		t.Fatalf("Healthy=true for failed run")
	}
}

func TestBuildSortsFindings(t *testing.T) {
	run := domain.CanaryRun{
		ID:      "run-4",
		Email:   "probe@canary.test",
		Outcome: domain.Outcome{Kind: domain.OutcomeSuccess},
	}
	col := collectorFor(t, run.ID)
	if err := col.RecordStep(domain.StepWaitCategories, 150*time.Second, ""); err != nil {
		t.Fatalf("RecordStep: %v", err)
	}

	state := completedState()
	state.CompetitorCount = 0
	state.Workspace.Status = domain.WorkspaceStatusInterStep1

	baselines := map[domain.StepID]time.Duration{domain.StepWaitCategories: 60 * time.Second}
	result := Build(run, col, state, nil, nil, baselines, thresholds)

	if len(result.Findings) < 2 {
		t.Fatalf("findings=%+v", result.Findings)
	}
	if result.Findings[0].Severity != domain.SeverityCritical {
		t.Fatalf("first finding severity=%q, want critical", result.Findings[0].Severity)
	}
}

func TestTimingReportFlags(t *testing.T) {
	result := domain.CanaryResult{
		Steps: []domain.StepRecord{
			{Step: domain.StepNavigateLanding, Duration: 3 * time.Second},
			{Step: domain.StepWaitCategories, Duration: 90 * time.Second},
			{Step: domain.StepWaitSnapshot, Duration: 650 * time.Second},
			{Step: domain.StepFillOTP, Duration: 30 * time.Second},
			{Step: domain.StepVerifyUserCreated, Duration: 2 * time.Second, Error: "user missing"},
		},
		Baselines: map[domain.StepID]time.Duration{
			domain.StepNavigateLanding: 3 * time.Second,
			domain.StepWaitCategories:  60 * time.Second,
			domain.StepWaitSnapshot:    300 * time.Second,
			domain.StepFillOTP:         70 * time.Second,
		},
	}

	lines := TimingReport(result)
	if len(lines) != 5 {
		t.Fatalf("TimingReport()=%d lines", len(lines))
	}
	checks := []struct {
		idx  int
		part string
	}{
		{0, "[ok]"},
		{1, "[slow +50%]"},
		{2, "[overrun +116%]"},
		{3, "[fast -57%]"},
		{4, "FAILED: user missing"},
	}
	for _, c := range checks {
		if !strings.Contains(lines[c.idx], c.part) {
			t.Fatalf("line %d = %q, want %q", c.idx, lines[c.idx], c.part)
		}
	}
}

func TestSlowestSteps(t *testing.T) {
	result := domain.CanaryResult{
		Steps: []domain.StepRecord{
			{Step: domain.StepNavigateLanding, Duration: 2 * time.Second},
			{Step: domain.StepWaitSnapshot, Duration: 400 * time.Second},
			{Step: domain.StepApprovePrompts, Duration: 120 * time.Second},
			{Step: domain.StepFillOTP, Duration: 40 * time.Second},
		},
		Baselines: map[domain.StepID]time.Duration{
			domain.StepWaitSnapshot:   300 * time.Second,
			domain.StepApprovePrompts: 90 * time.Second,
			domain.StepFillOTP:        70 * time.Second,
		},
	}

	lines := SlowestSteps(result)
	if len(lines) != 2 {
		t.Fatalf("SlowestSteps()=%v", lines)
	}
	if !strings.Contains(lines[0], "wait_snapshot") || !strings.Contains(lines[0], "+100.0s") {
		t.Fatalf("lines[0]=%q", lines[0])
	}
	if !strings.Contains(lines[1], "approve_prompts") {
		t.Fatalf("lines[1]=%q", lines[1])
	}
}

func TestSummary(t *testing.T) {
	start := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)

	pass := domain.CanaryResult{
		RunID:         "run-1",
		Outcome:       domain.Outcome{Kind: domain.OutcomeSuccess},
		StartedAt:     start,
		EndedAt:       start.Add(312 * time.Second),
		WorkspaceULID: "01ABC",
		Healthy:       true,
	}
	if got := Summary(pass); !strings.Contains(got, "passed") || !strings.Contains(got, "healthy") {
		t.Fatalf("Summary(pass)=%q", got)
	}

	pass.Healthy = false
	if got := Summary(pass); !strings.Contains(got, "degraded") {
		t.Fatalf("Summary(degraded)=%q", got)
	}

	fail := domain.CanaryResult{
		RunID:     "run-2",
		Outcome:   domain.Outcome{Kind: domain.OutcomeFailed, Step: domain.StepWorkspaceCreated, Message: "not created"},
		StartedAt: start,
		EndedAt:   start.Add(90 * time.Second),
	}
	if got := Summary(fail); !strings.Contains(got, "failed at workspace_created") {
		t.Fatalf("Summary(fail)=%q", got)
	}

	unexpected := domain.CanaryResult{
		RunID:   "run-3",
		Outcome: domain.Outcome{Kind: domain.OutcomeUnexpected, Message: "panic: nil map"},
	}
	if got := Summary(unexpected); !strings.Contains(got, "unexpected") {
		t.Fatalf("Summary(unexpected)=%q", got)
	}
}
