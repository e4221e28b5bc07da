package domain

import (
	"errors"
	"strings"
	"time"
)

// OutcomeKind is the terminal classification of a run.
type OutcomeKind string

const (
	OutcomeSuccess    OutcomeKind = "success"
	OutcomeFailed     OutcomeKind = "failed"
	OutcomeUnexpected OutcomeKind = "unexpected"
)

// Outcome is the tagged terminal result of a run. Step and Details are
// only set for OutcomeFailed; Message is set for both failure kinds.
type Outcome struct {
	Kind    OutcomeKind
	Step    StepID
	Message string
	Details map[string]any
}

func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// StepRecord is one executed step's timing. Error is the failure message
// when the step aborted the run, empty otherwise. Records are append-only
// and never mutated once written.
type StepRecord struct {
	Step     StepID
	Duration time.Duration
	Error    string
}

// ErrorRecord captures a classified error for reporting.
type ErrorRecord struct {
	Step    StepID
	Message string
	Details map[string]any
	At      time.Time
}

// CanaryRun is the mutable state of one journey execution, owned by the
// orchestrator for the run's lifetime and frozen once the run ends.
type CanaryRun struct {
	ID            string
	Email         string
	StartedAt     time.Time
	EndedAt       time.Time
	Steps         []StepRecord
	WorkspaceID   int64
	WorkspaceULID string
	Outcome       Outcome
}

func (r CanaryRun) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("run email is required")
	}
	if !r.EndedAt.IsZero() && r.EndedAt.Before(r.StartedAt) {
		return errors.New("run must not end before it starts")
	}
	return nil
}

// SetWorkspace records the discovered workspace identity. The assignment
// is permanent: later calls are ignored once an id is set.
func (r *CanaryRun) SetWorkspace(id int64, ulid string) {
	if r.WorkspaceID != 0 {
		return
	}
	r.WorkspaceID = id
	r.WorkspaceULID = ulid
}
