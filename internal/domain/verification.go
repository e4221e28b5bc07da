package domain

// VerificationResult is the immutable outcome of one state probe.
type VerificationResult struct {
	Success bool
	Message string
	Data    map[string]any
}

// Pass builds a successful result.
func Pass(message string, data map[string]any) VerificationResult {
	return VerificationResult{Success: true, Message: message, Data: data}
}

// Fail builds a failed result.
func Fail(message string, data map[string]any) VerificationResult {
	return VerificationResult{Success: false, Message: message, Data: data}
}

// DeepVerification is the comprehensive final pass across all entities
// the journey should have produced. Checks that could not run because a
// prerequisite entity was missing have Success=false with an explanatory
// message.
type DeepVerification struct {
	Identity         VerificationResult
	Workspace        VerificationResult
	WorkspaceStatus  VerificationResult
	Categories       VerificationResult
	Prompts          VerificationResult
	Snapshot         VerificationResult
	SnapshotComplete VerificationResult
	SubitemsComplete VerificationResult
	Competitors      VerificationResult
	Success          bool
}

// Checks returns the named individual results in report order.
func (v DeepVerification) Checks() []struct {
	Name   string
	Result VerificationResult
} {
	return []struct {
		Name   string
		Result VerificationResult
	}{
		{"identity", v.Identity},
		{"workspace", v.Workspace},
		{"workspace_status", v.WorkspaceStatus},
		{"categories", v.Categories},
		{"prompts", v.Prompts},
		{"snapshot", v.Snapshot},
		{"snapshot_completed", v.SnapshotComplete},
		{"subitems_completed", v.SubitemsComplete},
		{"competitors", v.Competitors},
	}
}

// StateSummary is the point-in-time deep state capture included in the
// final report.
type StateSummary struct {
	Workspace       Workspace
	CategoryCount   int
	Categories      []EntityRecord
	PromptCount     int
	Prompts         []EntityRecord
	CompetitorCount int
	Competitors     []EntityRecord
	Snapshot        *Snapshot
	SubitemCounts   *SubitemStatusCounts
	ModelUsage      ModelUsageStats
	Slowest         []SlowInvocation
}

// PageSnapshot is the typed capture of the rendered results surface.
type PageSnapshot struct {
	DashboardLoaded bool     `json:"dashboard_loaded"`
	ChartsVisible   bool     `json:"charts_visible"`
	ChartCount      int      `json:"chart_count"`
	CardCount       int      `json:"card_count"`
	CurrentURL      string   `json:"current_url"`
	PageTitle       string   `json:"page_title"`
	BrandName       string   `json:"brand_name"`
	Sections        []string `json:"sections"`
}
