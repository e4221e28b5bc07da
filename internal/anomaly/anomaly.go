// Package anomaly inspects a finished run and surfaces deviations from
// expected state and timing. Detect is pure: same inputs, same findings.
package anomaly

import (
	"fmt"
	"sort"
	"time"

	"github.com/maxeo-ai/journey-canary/internal/domain"
)

// Thresholds are the count limits findings are judged against.
type Thresholds struct {
	MinPrompts     int
	HealthyPrompts int
	MinCompetitors int
}

// Detect evaluates the captured state and step timings against
// baselines, in priority order. When nothing is wrong it returns the
// single synthetic all-clear finding so downstream dashboards always
// receive a signal.
func Detect(result domain.CanaryResult, baselines map[domain.StepID]time.Duration, t Thresholds) []domain.Finding {
	var findings []domain.Finding

	if state := result.State; state != nil {
		if state.Workspace.Status != domain.WorkspaceStatusCompleted {
			findings = append(findings, domain.Finding{
				Severity: domain.SeverityCritical,
				Message:  fmt.Sprintf("workspace status is %s, expected COMPLETED", state.Workspace.Status),
			})
		}

		switch {
		case state.PromptCount < t.MinPrompts:
			findings = append(findings, domain.Finding{
				Severity: domain.SeverityCritical,
				Message:  fmt.Sprintf("prompt count %d is below minimum %d", state.PromptCount, t.MinPrompts),
			})
		case state.PromptCount < t.HealthyPrompts:
			findings = append(findings, domain.Finding{
				Severity: domain.SeverityWarning,
				Message:  fmt.Sprintf("prompt count %d is below healthy threshold %d", state.PromptCount, t.HealthyPrompts),
			})
		}

		switch {
		case state.Snapshot == nil:
			findings = append(findings, domain.Finding{
				Severity: domain.SeverityCritical,
				Message:  "no snapshot was created",
			})
		case state.Snapshot.Status != domain.SnapshotStatusCompleted:
			findings = append(findings, domain.Finding{
				Severity: domain.SeverityCritical,
				Message:  fmt.Sprintf("snapshot status is %s, expected COMPLETED", state.Snapshot.Status),
			})
		}

		if state.SubitemCounts != nil && state.SubitemCounts.Failed > 0 {
			findings = append(findings, domain.Finding{
				Severity: domain.SeverityCritical,
				Message:  fmt.Sprintf("%d snapshot prompts failed", state.SubitemCounts.Failed),
			})
		}

		if state.CompetitorCount < t.MinCompetitors {
			findings = append(findings, domain.Finding{
				Severity: domain.SeverityWarning,
				Message:  fmt.Sprintf("found %d competitors, expected at least %d", state.CompetitorCount, t.MinCompetitors),
			})
		}
	}

	findings = append(findings, timingFindings(result.Steps, baselines)...)

	if len(findings) == 0 {
		findings = append(findings, domain.Finding{
			Severity: domain.SeverityInfo,
			Message:  "no anomalies detected, all systems normal",
		})
	}
	return findings
}

// timingFindings escalates only overruns above 100% of baseline. Smaller
// overruns stay inline in the timing report.
func timingFindings(steps []domain.StepRecord, baselines map[domain.StepID]time.Duration) []domain.Finding {
	var out []domain.Finding
	for _, rec := range steps {
		baseline, ok := baselines[rec.Step]
		if !ok || baseline <= 0 {
			continue
		}
		overrun := OverrunPercent(rec.Duration, baseline)
		if overrun > 100 {
			out = append(out, domain.Finding{
				Severity: domain.SeverityWarning,
				Message: fmt.Sprintf("step %s ran %d%% over baseline (%.1fs vs %.1fs)",
					rec.Step, overrun, rec.Duration.Seconds(), baseline.Seconds()),
			})
		}
	}
	return out
}

// OverrunPercent returns how far duration exceeds baseline, in whole
// percent. Durations at or under baseline yield values <= 0.
func OverrunPercent(duration, baseline time.Duration) int {
	if baseline <= 0 {
		return 0
	}
	return int(float64(duration-baseline) / float64(baseline) * 100)
}

// SortBySeverity orders findings critical first, then warnings, then
// info, keeping the original order within each class.
func SortBySeverity(findings []domain.Finding) {
	rank := map[domain.Severity]int{
		domain.SeverityCritical: 0,
		domain.SeverityWarning:  1,
		domain.SeverityInfo:     2,
	}
	sort.SliceStable(findings, func(i, j int) bool {
		return rank[findings[i].Severity] < rank[findings[j].Severity]
	})
}
