// Package report assembles the terminal CanaryResult and renders the
// human-readable timing views used by the CLI and the notifier.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/maxeo-ai/journey-canary/internal/anomaly"
	"github.com/maxeo-ai/journey-canary/internal/domain"
	"github.com/maxeo-ai/journey-canary/internal/metrics"
)

// slowStepFloor is the minimum duration before a step is worth naming
// in the slowest-steps section.
const slowStepFloor = 30 * time.Second

// Build produces the single CanaryResult handed to the notifier.
// Healthy applies the stricter rule: executing without failure is
// necessary but not sufficient; the workspace and the snapshot must
// both have reached COMPLETED.
func Build(
	run domain.CanaryRun,
	col *metrics.Collector,
	state *domain.StateSummary,
	verification *domain.DeepVerification,
	ui *domain.PageSnapshot,
	baselines map[domain.StepID]time.Duration,
	thresholds anomaly.Thresholds,
) domain.CanaryResult {
	result := domain.CanaryResult{
		RunID:         run.ID,
		Email:         run.Email,
		Outcome:       run.Outcome,
		StartedAt:     col.StartedAt(),
		EndedAt:       col.EndedAt(),
		Steps:         col.Steps(),
		Timings:       col.Timings(),
		Errors:        col.Errors(),
		WorkspaceID:   run.WorkspaceID,
		WorkspaceULID: run.WorkspaceULID,
		State:         state,
		Verification:  verification,
		UI:            ui,
		Baselines:     baselines,
	}

	result.Findings = anomaly.Detect(result, baselines, thresholds)
	anomaly.SortBySeverity(result.Findings)

	result.Healthy = run.Outcome.Succeeded() &&
		state != nil &&
		state.Workspace.Status == domain.WorkspaceStatusCompleted &&
		state.Snapshot != nil &&
		state.Snapshot.Status == domain.SnapshotStatusCompleted

	return result
}

// TimingReport renders one line per executed step, comparing against
// the baseline table. Steps without a baseline are printed plain.
func TimingReport(result domain.CanaryResult) []string {
	lines := make([]string, 0, len(result.Steps))
	for _, rec := range result.Steps {
		line := fmt.Sprintf("%2d. %s: %.1fs", domain.StepOrdinal(rec.Step), rec.Step, rec.Duration.Seconds())

		baseline, ok := result.Baselines[rec.Step]
		if ok && baseline > 0 {
			overrun := anomaly.OverrunPercent(rec.Duration, baseline)
			switch {
			case overrun > 100:
				line += fmt.Sprintf(" [overrun +%d%%]", overrun)
			case overrun > 20:
				line += fmt.Sprintf(" [slow +%d%%]", overrun)
			case overrun < -20:
				line += fmt.Sprintf(" [fast %d%%]", overrun)
			default:
				line += " [ok]"
			}
		}
		if rec.Error != "" {
			line += fmt.Sprintf(" FAILED: %s", rec.Error)
		}
		lines = append(lines, line)
	}
	return lines
}

// SlowestSteps names up to three steps that took longest, skipping
// anything under 30s or at/below its baseline.
func SlowestSteps(result domain.CanaryResult) []string {
	steps := make([]domain.StepRecord, len(result.Steps))
	copy(steps, result.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Duration > steps[j].Duration
	})
	if len(steps) > 3 {
		steps = steps[:3]
	}

	var lines []string
	for _, rec := range steps {
		if rec.Duration < slowStepFloor {
			continue
		}
		baseline, ok := result.Baselines[rec.Step]
		if !ok || baseline <= 0 || rec.Duration <= baseline {
			continue
		}
		over := rec.Duration - baseline
		lines = append(lines, fmt.Sprintf("%s: %.1fs (+%.1fs over baseline)",
			rec.Step, rec.Duration.Seconds(), over.Seconds()))
	}
	return lines
}

// Summary is the one-line outcome printed by the CLI.
func Summary(result domain.CanaryResult) string {
	total := result.TotalDuration().Seconds()
	switch result.Outcome.Kind {
	case domain.OutcomeSuccess:
		status := "healthy"
		if !result.Healthy {
			status = "degraded"
		}
		return fmt.Sprintf("canary run %s passed in %.1fs (%s, workspace %s)",
			result.RunID, total, status, result.WorkspaceULID)
	case domain.OutcomeFailed:
		return fmt.Sprintf("canary run %s failed at %s after %.1fs: %s",
			result.RunID, result.Outcome.Step, total, result.Outcome.Message)
	default:
		return fmt.Sprintf("canary run %s hit an unexpected error after %.1fs: %s",
			result.RunID, total, result.Outcome.Message)
	}
}
