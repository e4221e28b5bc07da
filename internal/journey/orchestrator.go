// Package journey contains the step-sequenced state machine at the core
// of the canary: it drives the UI automation surface, cross-checks
// progress against the state reader, collects per-step timings, and
// translates every failure into the tagged run outcome.
package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maxeo-ai/journey-canary/internal/anomaly"
	"github.com/maxeo-ai/journey-canary/internal/config"
	"github.com/maxeo-ai/journey-canary/internal/domain"
	"github.com/maxeo-ai/journey-canary/internal/metrics"
	"github.com/maxeo-ai/journey-canary/internal/report"
)

// Orchestrator owns one run end to end. It is single-use: construct,
// Run once, discard.
type Orchestrator struct {
	cfg      config.Config
	ui       UIDriver
	reader   StateReader
	notifier Notifier
	shots    ScreenshotSink
	log      *slog.Logger
	now      func() time.Time
	runID    string
}

type Option func(*Orchestrator)

// WithScreenshotSink uploads each captured screenshot after it is
// written locally.
func WithScreenshotSink(sink ScreenshotSink) Option {
	return func(o *Orchestrator) { o.shots = sink }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunID fixes the run id instead of generating one. Callers that
// derive the run email before constructing the orchestrator need the id
// up front.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

func New(cfg config.Config, ui UIDriver, reader StateReader, notifier Notifier, log *slog.Logger, opts ...Option) *Orchestrator {
	if ui == nil || reader == nil || notifier == nil {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		cfg:      cfg,
		ui:       ui,
		reader:   reader,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// runState is the per-run mutable state shared between steps. It lives
// on the orchestrator's single goroutine only.
type runState struct {
	run                domain.CanaryRun
	col                *metrics.Collector
	formSubmittedAt    time.Time
	promptsConfirmedAt time.Time
	verification       *domain.DeepVerification
	summary            *domain.StateSummary
	ui                 *domain.PageSnapshot
}

// Run executes the full journey and always produces a result: the
// notifier receives it for success and failure alike so downstream
// dashboards keep a continuous signal.
func (o *Orchestrator) Run(ctx context.Context) domain.CanaryResult {
	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()[:8]
	}
	st := &runState{col: metrics.NewCollector(runID)}
	st.run = domain.CanaryRun{ID: runID, Email: o.cfg.RunEmail(runID)}

	start := o.now()
	st.col.Start(start)
	st.run.StartedAt = start
	o.log.Info("starting canary run", "run_id", runID, "email", st.run.Email)

	defer o.releaseResources(ctx)

	err := o.execute(ctx, st)

	end := o.now()
	st.col.Finish(end)
	st.run.EndedAt = end

	var stepErr *StepError
	switch {
	case err == nil:
		st.run.Outcome = domain.Outcome{Kind: domain.OutcomeSuccess}
		o.log.Info("canary run succeeded", "run_id", runID, "duration", st.col.TotalDuration())
	case errors.As(err, &stepErr):
		st.run.Outcome = domain.Outcome{
			Kind:    domain.OutcomeFailed,
			Step:    stepErr.Step,
			Message: stepErr.Message,
			Details: stepErr.Details,
		}
		o.log.Error("canary run failed", "run_id", runID, "step", stepErr.Step, "error", stepErr.Message)
	default:
		st.run.Outcome = domain.Outcome{Kind: domain.OutcomeUnexpected, Message: err.Error()}
		o.log.Error("canary run hit an unexpected error", "run_id", runID, "error", err)
	}

	o.captureFinalState(ctx, st)

	result := report.Build(st.run, st.col, st.summary, st.verification, st.ui, o.cfg.Baselines, anomaly.Thresholds{
		MinPrompts:     o.cfg.Thresholds.MinPrompts,
		HealthyPrompts: o.cfg.Thresholds.HealthyPrompts,
		MinCompetitors: o.cfg.Thresholds.MinCompetitors,
	})

	o.notifier.Deliver(ctx, result)

	if result.Outcome.Succeeded() && o.cfg.AutoCleanup {
		o.cleanupData(ctx, st)
	}

	return result
}

// execute walks the transition table. The first failing step aborts the
// remainder; its duration is still recorded.
func (o *Orchestrator) execute(ctx context.Context, st *runState) error {
	handlers := map[domain.StepID]func(context.Context, *runState) error{
		domain.StepNavigateLanding:   o.stepNavigateLanding,
		domain.StepClickGetReport:    o.stepClickGetReport,
		domain.StepSubmitSignupForm:  o.stepSubmitSignupForm,
		domain.StepVerifyUserCreated: o.stepVerifyUserCreated,
		domain.StepFillOTP:           o.stepFillOTP,
		domain.StepWorkspaceCreated:  o.stepWorkspaceCreated,
		domain.StepWaitCategories:    o.stepWaitCategories,
		domain.StepApprovePrompts:    o.stepApprovePrompts,
		domain.StepWaitSnapshot:      o.stepWaitSnapshot,
		domain.StepVerifyDashboard:   o.stepVerifyDashboard,
		domain.StepFullVerification:  o.stepFullVerification,
	}

	for step, ok := domain.FirstStep(), true; ok; step, ok = domain.NextStep(step) {
		fn, found := handlers[step]
		if !found {
			return fmt.Errorf("no handler for step %q", step)
		}
		if err := o.runStep(ctx, st, step, fn); err != nil {
			return err
		}
	}
	return nil
}

// runStep times one step and records its outcome. A panic inside the
// step is converted to an error so the duration is never lost.
func (o *Orchestrator) runStep(ctx context.Context, st *runState, step domain.StepID, fn func(context.Context, *runState) error) (err error) {
	start := o.now()
	o.log.Info("step starting", "step", step, "ordinal", domain.StepOrdinal(step))

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in step %s: %v", step, r)
			}
		}()
		err = fn(ctx, st)
	}()

	duration := o.now().Sub(start)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if recErr := st.col.RecordStep(step, duration, msg); recErr != nil {
		o.log.Error("failed to record step timing", "step", step, "error", recErr)
	}

	if err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			st.col.RecordError(stepErr.Step, stepErr.Message, stepErr.Details)
		} else {
			st.col.RecordError(step, err.Error(), nil)
		}
		return err
	}

	o.log.Info("step completed", "step", step, "duration", duration)
	return nil
}

// captureFinalState fetches the verification and summary best-effort
// when the steps did not get that far. Errors here are logged only: the
// run outcome is already decided.
func (o *Orchestrator) captureFinalState(ctx context.Context, st *runState) {
	if st.verification == nil {
		if v, err := o.reader.FullVerification(ctx); err != nil {
			o.log.Error("post-run verification failed", "error", err)
		} else {
			st.verification = &v
		}
	}
	if st.summary == nil {
		if s, err := o.reader.Summary(ctx); err != nil {
			o.log.Error("post-run state summary failed", "error", err)
		} else {
			st.summary = &s
		}
	}
}

// cleanupData soft-deletes the entities this run created. It runs only
// after a successful, notified run and never affects the outcome.
func (o *Orchestrator) cleanupData(ctx context.Context, st *runState) {
	o.log.Info("cleaning up canary data", "run_id", st.run.ID)

	if st.run.WorkspaceID != 0 {
		if err := o.reader.SoftDelete(ctx, domain.KindWorkspace, st.run.WorkspaceID); err != nil {
			o.log.Error("workspace cleanup failed", "workspace_id", st.run.WorkspaceID, "error", err)
		} else {
			o.log.Info("workspace soft deleted", "workspace_id", st.run.WorkspaceID, "ulid", st.run.WorkspaceULID)
		}
	}

	identity, err := o.reader.FindIdentity(ctx, st.run.Email)
	if err != nil {
		o.log.Error("identity lookup for cleanup failed", "email", st.run.Email, "error", err)
		return
	}
	if err := o.reader.SoftDelete(ctx, domain.KindIdentity, identity.ID); err != nil {
		o.log.Error("identity cleanup failed", "user_id", identity.ID, "error", err)
	} else {
		o.log.Info("identity soft deleted", "user_id", identity.ID, "email", st.run.Email)
	}
}

// releaseResources closes the UI session and the state reader. It runs
// for every outcome, after the result is built and delivered.
func (o *Orchestrator) releaseResources(ctx context.Context) {
	if err := o.ui.Close(context.WithoutCancel(ctx)); err != nil {
		o.log.Error("ui driver close failed", "error", err)
	}
	if err := o.reader.Close(); err != nil {
		o.log.Error("state reader close failed", "error", err)
	}
}
