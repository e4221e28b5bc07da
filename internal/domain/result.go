package domain

import "time"

// Severity classifies an anomaly finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	// SeverityInfo is used only for the synthetic all-clear finding
	// emitted when nothing else was detected.
	SeverityInfo Severity = "info"
)

// Finding is an anomaly surfaced at result-aggregation time.
type Finding struct {
	Severity Severity
	Message  string
}

// CanaryResult is the terminal view of one run, built exactly once and
// handed to the notifier.
type CanaryResult struct {
	RunID         string
	Email         string
	Outcome       Outcome
	StartedAt     time.Time
	EndedAt       time.Time
	Steps         []StepRecord
	Timings       map[string]time.Duration
	Errors        []ErrorRecord
	WorkspaceID   int64
	WorkspaceULID string
	State         *StateSummary
	Verification  *DeepVerification
	UI            *PageSnapshot
	Baselines     map[StepID]time.Duration
	Findings      []Finding

	// Healthy is the stricter declared status: the run executed without
	// failure AND the workspace and snapshot both reached COMPLETED.
	Healthy bool
}

// TotalDuration is the wall-clock span of the run.
func (r CanaryResult) TotalDuration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
