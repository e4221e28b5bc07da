package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by state reads when the requested row does not
// exist (yet). Polling callers treat it as a failed probe, not an error.
var ErrNotFound = errors.New("not found")

// EntityKind names the monitored entities a StateReader can query.
type EntityKind string

const (
	KindIdentity   EntityKind = "identity"
	KindWorkspace  EntityKind = "workspace"
	KindCategory   EntityKind = "category"
	KindPrompt     EntityKind = "prompt"
	KindCompetitor EntityKind = "competitor"
)

// Workspace statuses observed during the journey. INTER_STEP_1_READY and
// INTER_STEP_2_READY are the intermediate states between prompt generation
// and snapshot completion.
const (
	WorkspaceStatusInterStep1 = "INTER_STEP_1_READY"
	WorkspaceStatusInterStep2 = "INTER_STEP_2_READY"
	WorkspaceStatusCompleted  = "COMPLETED"
)

// Snapshot (background job) terminal statuses.
const (
	SnapshotStatusCompleted = "COMPLETED"
	SnapshotStatusFailed    = "FAILED"
)

// Identity is the user row created when the signup form is submitted.
// TOTPSecret is stored encrypted; decryption happens at the OTP step.
type Identity struct {
	ID         int64
	Email      string
	TOTPSecret string
	CreatedAt  time.Time
}

// Workspace is the primary entity created mid-journey.
type Workspace struct {
	ID        int64
	ULID      string
	Status    string
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
	Deleted   bool
}

// Snapshot is the heavyweight background job tied to a workspace.
type Snapshot struct {
	ID        int64
	Status    string
	CreatedAt time.Time
}

// SubitemStatusCounts summarizes the snapshot's per-prompt work items.
type SubitemStatusCounts struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// Settled reports whether no sub-item is still pending or in flight.
func (c SubitemStatusCounts) Settled() bool {
	return c.Pending == 0 && c.Processing == 0
}

// EntityRecord is a generic listing row for categories, prompts and
// competitors; Detail carries the competitor domain, Tracked is only
// meaningful for prompts.
type EntityRecord struct {
	ID        int64
	Name      string
	Detail    string
	Tracked   bool
	CreatedAt time.Time
}

// ModelUsage aggregates model invocations for one model.
type ModelUsage struct {
	Model        string
	Calls        int
	AvgSeconds   float64
	TotalSeconds float64
	TotalCost    float64
	TotalTokens  int64
}

// ModelUsageStats is the workspace-wide invocation rollup.
type ModelUsageStats struct {
	ByModel      []ModelUsage
	TotalCalls   int
	TotalSeconds float64
	TotalCost    float64
	TotalTokens  int64
}

// SlowInvocation is one of the slowest model calls, kept for diagnosis.
type SlowInvocation struct {
	Model     string
	Seconds   float64
	Tokens    int64
	CreatedAt time.Time
}
