package anomaly

import (
	"strings"
	"testing"
	"time"

	"github.com/maxeo-ai/journey-canary/internal/domain"
)

var testThresholds = Thresholds{MinPrompts: 15, HealthyPrompts: 20, MinCompetitors: 1}

func healthyState() *domain.StateSummary {
	return &domain.StateSummary{
		Workspace:       domain.Workspace{ID: 1, Status: domain.WorkspaceStatusCompleted},
		PromptCount:     25,
		CompetitorCount: 3,
		Snapshot:        &domain.Snapshot{ID: 9, Status: domain.SnapshotStatusCompleted},
		SubitemCounts:   &domain.SubitemStatusCounts{Total: 25, Completed: 25},
	}
}

func TestDetectAllClear(t *testing.T) {
	result := domain.CanaryResult{
		State: healthyState(),
		Steps: []domain.StepRecord{
			{Step: domain.StepNavigateLanding, Duration: 3 * time.Second},
			{Step: domain.StepWaitSnapshot, Duration: 280 * time.Second},
		},
	}
	baselines := map[domain.StepID]time.Duration{
		domain.StepNavigateLanding: 3 * time.Second,
		domain.StepWaitSnapshot:    300 * time.Second,
	}

	findings := Detect(result, baselines, testThresholds)
	if len(findings) != 1 {
		t.Fatalf("Detect()=%d findings, want the single all-clear", len(findings))
	}
	if findings[0].Severity != domain.SeverityInfo {
		t.Fatalf("all-clear severity=%q", findings[0].Severity)
	}
}

func TestDetectWorkspaceNotCompleted(t *testing.T) {
	state := healthyState()
	state.Workspace.Status = domain.WorkspaceStatusInterStep2

	findings := Detect(domain.CanaryResult{State: state}, nil, testThresholds)
	if len(findings) != 1 || findings[0].Severity != domain.SeverityCritical {
		t.Fatalf("findings=%+v", findings)
	}
	if !strings.Contains(findings[0].Message, domain.WorkspaceStatusInterStep2) {
		t.Fatalf("finding %q does not name the status", findings[0].Message)
	}
}

func TestDetectPromptThresholds(t *testing.T) {
	state := healthyState()
	state.PromptCount = 10
	findings := Detect(domain.CanaryResult{State: state}, nil, testThresholds)
	if len(findings) != 1 || findings[0].Severity != domain.SeverityCritical {
		t.Fatalf("below-minimum findings=%+v", findings)
	}
	if !strings.Contains(findings[0].Message, "10") {
		t.Fatalf("finding %q does not cite the count", findings[0].Message)
	}

	state = healthyState()
	state.PromptCount = 17
	findings = Detect(domain.CanaryResult{State: state}, nil, testThresholds)
	if len(findings) != 1 || findings[0].Severity != domain.SeverityWarning {
		t.Fatalf("below-healthy findings=%+v", findings)
	}
}

func TestDetectSnapshotProblems(t *testing.T) {
	state := healthyState()
	state.Snapshot = nil
	state.SubitemCounts = nil
	findings := Detect(domain.CanaryResult{State: state}, nil, testThresholds)
	if len(findings) != 1 || findings[0].Severity != domain.SeverityCritical {
		t.Fatalf("missing-snapshot findings=%+v", findings)
	}

	state = healthyState()
	state.Snapshot.Status = "PROCESSING"
	findings = Detect(domain.CanaryResult{State: state}, nil, testThresholds)
	if len(findings) != 1 || findings[0].Severity != domain.SeverityCritical {
		t.Fatalf("incomplete-snapshot findings=%+v", findings)
	}

	state = healthyState()
	state.SubitemCounts.Failed = 4
	state.SubitemCounts.Completed = 21
	findings = Detect(domain.CanaryResult{State: state}, nil, testThresholds)
	if len(findings) != 1 || findings[0].Severity != domain.SeverityCritical {
		t.Fatalf("failed-subitems findings=%+v", findings)
	}
	if !strings.Contains(findings[0].Message, "4") {
		t.Fatalf("finding %q does not carry the failed count", findings[0].Message)
	}
}

func TestDetectNoCompetitors(t *testing.T) {
	state := healthyState()
	state.CompetitorCount = 0
	findings := Detect(domain.CanaryResult{State: state}, nil, testThresholds)
	if len(findings) != 1 || findings[0].Severity != domain.SeverityWarning {
		t.Fatalf("findings=%+v", findings)
	}
}

func TestDetectTimingOverrun(t *testing.T) {
	result := domain.CanaryResult{
		State: healthyState(),
		Steps: []domain.StepRecord{
			{Step: domain.StepWaitCategories, Duration: 150 * time.Second},
		},
	}
	baselines := map[domain.StepID]time.Duration{
		domain.StepWaitCategories: 60 * time.Second,
	}

	findings := Detect(result, baselines, testThresholds)
	if len(findings) != 1 || findings[0].Severity != domain.SeverityWarning {
		t.Fatalf("findings=%+v", findings)
	}
	if !strings.Contains(findings[0].Message, "150%") {
		t.Fatalf("finding %q does not cite the overrun percentage", findings[0].Message)
	}
}

func TestDetectModerateOverrunNotEscalated(t *testing.T) {
	result := domain.CanaryResult{
		State: healthyState(),
		Steps: []domain.StepRecord{
			{Step: domain.StepWaitCategories, Duration: 90 * time.Second},
		},
	}
	baselines := map[domain.StepID]time.Duration{
		domain.StepWaitCategories: 60 * time.Second,
	}

	findings := Detect(result, baselines, testThresholds)
	if len(findings) != 1 || findings[0].Severity != domain.SeverityInfo {
		t.Fatalf("50%% overrun escalated to findings: %+v", findings)
	}
}

func TestOverrunPercent(t *testing.T) {
	if got := OverrunPercent(150*time.Second, 60*time.Second); got != 150 {
		t.Fatalf("OverrunPercent(150s, 60s)=%d, want 150", got)
	}
	if got := OverrunPercent(60*time.Second, 60*time.Second); got != 0 {
		t.Fatalf("OverrunPercent(equal)=%d, want 0", got)
	}
	if got := OverrunPercent(30*time.Second, 60*time.Second); got != -50 {
		t.Fatalf("OverrunPercent(fast)=%d, want -50", got)
	}
	if got := OverrunPercent(time.Second, 0); got != 0 {
		t.Fatalf("OverrunPercent(no baseline)=%d, want 0", got)
	}
}

func TestSortBySeverity(t *testing.T) {
	findings := []domain.Finding{
		{Severity: domain.SeverityWarning, Message: "w1"},
		{Severity: domain.SeverityCritical, Message: "c1"},
		{Severity: domain.SeverityWarning, Message: "w2"},
	}
	SortBySeverity(findings)
	if findings[0].Message != "c1" || findings[1].Message != "w1" || findings[2].Message != "w2" {
		t.Fatalf("sorted=%+v", findings)
	}
}
