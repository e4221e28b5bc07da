package journey

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/maxeo-ai/journey-canary/internal/domain"
	"github.com/maxeo-ai/journey-canary/internal/otp"
	"github.com/maxeo-ai/journey-canary/internal/wait"
)

// Post-confirmation wait windows. These cover transitions the product
// performs in the background after the prompts are confirmed; missing
// them degrades the run but does not fail it.
const (
	promptsReadyWindow      = time.Minute
	interStep2Window        = 90 * time.Second
	workspaceCompleteWindow = 2 * time.Minute
)

var errSnapshotFailed = errors.New("snapshot job reached FAILED")

// Step 1: open the landing page and wait for the primary call to action.
func (o *Orchestrator) stepNavigateLanding(ctx context.Context, st *runState) error {
	if err := o.ui.Navigate(ctx, o.cfg.BaseURL); err != nil {
		return failf(domain.StepNavigateLanding, "navigate to %s: %v", o.cfg.BaseURL, err)
	}
	if err := o.ui.WaitForElement(ctx, TargetGetReport, o.cfg.Timeouts.PageLoad); err != nil {
		return failf(domain.StepNavigateLanding, "landing page did not render within %s: %v", o.cfg.Timeouts.PageLoad, err)
	}
	return nil
}

// Step 2: start the signup flow.
func (o *Orchestrator) stepClickGetReport(ctx context.Context, st *runState) error {
	if err := o.ui.InvokeAction(ctx, TargetGetReport); err != nil {
		return failf(domain.StepClickGetReport, "click get report: %v", err)
	}
	if err := o.ui.WaitForElement(ctx, TargetSignupForm, o.cfg.Timeouts.Element); err != nil {
		return failf(domain.StepClickGetReport, "signup form did not appear within %s: %v", o.cfg.Timeouts.Element, err)
	}
	return nil
}

// Step 3: fill and submit the signup form. The brand URL goes in first
// because the form derives suggested values from it.
func (o *Orchestrator) stepSubmitSignupForm(ctx context.Context, st *runState) error {
	step := domain.StepSubmitSignupForm

	fields := []struct {
		field Field
		value string
	}{
		{FieldBrandURL, o.cfg.Identity.BrandDomain},
		{FieldBrandName, o.cfg.Identity.BrandName},
		{FieldFirstName, o.cfg.Identity.FirstName},
		{FieldLastName, o.cfg.Identity.LastName},
		{FieldEmail, st.run.Email},
	}
	for _, f := range fields {
		if err := o.ui.FillField(ctx, f.field, f.value); err != nil {
			return failf(step, "fill %s: %v", f.field, err)
		}
	}
	if err := o.ui.SelectOption(ctx, FieldCountry, o.cfg.Identity.Country); err != nil {
		return failf(step, "select country: %v", err)
	}
	if err := o.ui.SelectOption(ctx, FieldLanguage, o.cfg.Identity.Language); err != nil {
		return failf(step, "select language: %v", err)
	}

	if err := o.ui.InvokeAction(ctx, TargetSubmitForm); err != nil {
		return failf(step, "submit signup form: %v", err)
	}
	st.formSubmittedAt = o.now()
	o.screenshot(ctx, st, "after_submit")

	if err := o.ui.WaitForElement(ctx, TargetOTPInput, o.cfg.Timeouts.PageLoad); err != nil {
		return failf(step, "OTP input did not appear within %s: %v", o.cfg.Timeouts.PageLoad, err)
	}
	return nil
}

// Step 4: poll until the submitted form has produced a user row.
func (o *Orchestrator) stepVerifyUserCreated(ctx context.Context, st *runState) error {
	step := domain.StepVerifyUserCreated

	cond := func(ctx context.Context) (domain.VerificationResult, error) {
		identity, err := o.reader.FindIdentity(ctx, st.run.Email)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Fail("user row not present yet", nil), nil
		}
		if err != nil {
			return domain.VerificationResult{}, err
		}
		return domain.Pass("user created", map[string]any{
			"user_id":    identity.ID,
			"created_at": identity.CreatedAt,
		}), nil
	}

	res, err := wait.Until(ctx, cond, o.cfg.PollInterval, o.cfg.Timeouts.UserCreated)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return failf(step, "user lookup failed: %v", err)
	}
	if !res.Success {
		return failWith(step, res.Data, "user was not created within %s: %s", o.cfg.Timeouts.UserCreated, res.Message)
	}
	o.log.Info("user created", "email", st.run.Email)
	return nil
}

// Step 5: read the encrypted TOTP secret from the user row, derive the
// current code and submit it.
func (o *Orchestrator) stepFillOTP(ctx context.Context, st *runState) error {
	step := domain.StepFillOTP

	if o.cfg.SkipOTP {
		o.log.Warn("OTP verification skipped by configuration")
		return nil
	}

	identity, err := o.reader.FindIdentity(ctx, st.run.Email)
	if err != nil {
		return failf(step, "load user for OTP: %v", err)
	}
	secret, err := otp.DecryptSecret(identity.TOTPSecret, o.cfg.FernetKey)
	if err != nil {
		return failf(step, "decrypt TOTP secret (set CANARY_SKIP_OTP=true for local runs): %v", err)
	}
	code, err := otp.GenerateCode(secret, o.now())
	if err != nil {
		return failf(step, "generate TOTP code: %v", err)
	}

	if err := o.ui.FillField(ctx, FieldOTP, code); err != nil {
		return failf(step, "fill OTP code: %v", err)
	}
	if err := o.ui.InvokeAction(ctx, TargetSubmitOTP); err != nil {
		return failf(step, "submit OTP: %v", err)
	}
	if err := o.ui.WaitForElement(ctx, TargetTopicsLoading, o.cfg.Timeouts.OTPTransition); err != nil {
		return failf(step, "post-OTP transition did not start within %s: %v", o.cfg.Timeouts.OTPTransition, err)
	}
	o.screenshot(ctx, st, "after_otp")
	return nil
}

// Step 6: the workspace row must exist before anything downstream can be
// verified, so a timeout here is a hard failure.
func (o *Orchestrator) stepWorkspaceCreated(ctx context.Context, st *runState) error {
	step := domain.StepWorkspaceCreated

	var ws domain.Workspace
	cond := func(ctx context.Context) (domain.VerificationResult, error) {
		found, err := o.reader.FindWorkspace(ctx, st.run.Email)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Fail("workspace not present yet", nil), nil
		}
		if err != nil {
			return domain.VerificationResult{}, err
		}
		ws = found
		return domain.Pass("workspace created", map[string]any{
			"workspace_id": found.ID,
			"ulid":         found.ULID,
			"status":       found.Status,
		}), nil
	}

	res, err := wait.Until(ctx, cond, o.cfg.PollInterval, o.cfg.Timeouts.Workspace)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return failf(step, "workspace lookup failed: %v", err)
	}
	if !res.Success {
		return failWith(step, res.Data, "workspace was not created within %s", o.cfg.Timeouts.Workspace)
	}

	st.run.SetWorkspace(ws.ID, ws.ULID)
	o.log.Info("workspace created", "workspace_id", ws.ID, "ulid", ws.ULID, "status", ws.Status)
	return nil
}

// Step 7: wait for category generation to finish, then for the prompt
// set to reach its minimum size. Only the category phase can fail the
// run; the prompt wait records the first loading metric and degrades to
// a warning on timeout.
func (o *Orchestrator) stepWaitCategories(ctx context.Context, st *runState) error {
	step := domain.StepWaitCategories

	statusCond := func(ctx context.Context) (domain.VerificationResult, error) {
		ws, err := o.reader.FindWorkspace(ctx, st.run.Email)
		if err != nil {
			return domain.VerificationResult{}, err
		}
		count, err := o.reader.Count(ctx, domain.KindCategory, ws.ID)
		if err != nil {
			return domain.VerificationResult{}, err
		}
		data := map[string]any{"status": ws.Status, "category_count": count}
		switch ws.Status {
		case domain.WorkspaceStatusInterStep1, domain.WorkspaceStatusInterStep2, domain.WorkspaceStatusCompleted:
			return domain.Pass("categories ready", data), nil
		}
		return domain.Fail(fmt.Sprintf("workspace status %s", ws.Status), data), nil
	}

	res, err := wait.Until(ctx, statusCond, o.cfg.PollInterval, o.cfg.Timeouts.Categories)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return failf(step, "category status check failed: %v", err)
	}
	if !res.Success {
		return failWith(step, res.Data, "categories not ready within %s: %s", o.cfg.Timeouts.Categories, res.Message)
	}
	o.log.Info("categories ready", "detail", res.Data)

	promptCond := o.promptCountCond(st, o.cfg.Thresholds.MinPrompts)
	res, err = wait.Until(ctx, promptCond, o.cfg.PollInterval, promptsReadyWindow)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		o.log.Warn("prompt probe failed", "error", err)
		return nil
	}
	if !res.Success {
		o.log.Warn("prompts did not reach minimum in time", "detail", res.Data)
		return nil
	}
	if !st.formSubmittedAt.IsZero() {
		st.col.RecordTiming(domain.TimingFormToPrompts, o.now().Sub(st.formSubmittedAt))
	}
	o.log.Info("prompts ready", "detail", res.Data)
	return nil
}

// Step 8: confirm the generated prompt set. Every wait in this step is
// advisory; the snapshot wait that follows is the authoritative check.
func (o *Orchestrator) stepApprovePrompts(ctx context.Context, st *runState) error {
	promptCond := o.promptCountCond(st, o.cfg.Thresholds.MinPrompts)
	res, err := wait.Until(ctx, promptCond, o.cfg.PollInterval, o.cfg.Timeouts.Categories)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		o.log.Warn("prompt probe failed before confirmation", "error", err)
	} else if !res.Success {
		o.log.Warn("confirming prompts below minimum count", "detail", res.Data)
	}

	o.screenshot(ctx, st, "prompts_modal")

	if err := o.ui.InvokeAction(ctx, TargetConfirmPrompts); err != nil {
		o.log.Warn("prompt confirmation click failed, prompts may auto-confirm", "error", err)
		return nil
	}
	st.promptsConfirmedAt = o.now()
	o.log.Info("prompts confirmed")

	statusCond := o.workspaceStatusCond(st, domain.WorkspaceStatusInterStep2, domain.WorkspaceStatusCompleted)
	res, err = wait.Until(ctx, statusCond, o.cfg.PollInterval, interStep2Window)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		o.log.Warn("post-confirmation status probe failed", "error", err)
		return nil
	}
	if !res.Success {
		o.log.Warn("workspace did not advance after confirmation", "detail", res.Data)
	}
	return nil
}

// Step 9: wait out the snapshot job. A FAILED job and a timeout both
// degrade the run instead of failing it; the aggregated health check
// downgrades the result later. The two remaining loading metrics are
// recorded here.
func (o *Orchestrator) stepWaitSnapshot(ctx context.Context, st *runState) error {
	step := domain.StepWaitSnapshot

	snapCond := func(ctx context.Context) (domain.VerificationResult, error) {
		ws, err := o.reader.FindWorkspace(ctx, st.run.Email)
		if err != nil {
			return domain.VerificationResult{}, err
		}
		snap, err := o.reader.LatestJob(ctx, ws.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Fail("waiting for snapshot job to start", nil), nil
		}
		if err != nil {
			return domain.VerificationResult{}, err
		}
		switch snap.Status {
		case domain.SnapshotStatusCompleted:
			return domain.Pass("snapshot completed", map[string]any{"snapshot_id": snap.ID}), nil
		case domain.SnapshotStatusFailed:
			return domain.VerificationResult{}, wait.Fatal(errSnapshotFailed)
		}
		counts, err := o.reader.JobSubitemStatusCounts(ctx, snap.ID)
		if err != nil {
			return domain.VerificationResult{}, err
		}
		return domain.Fail(fmt.Sprintf("snapshot %s", snap.Status), map[string]any{
			"snapshot_id": snap.ID,
			"completed":   counts.Completed,
			"failed":      counts.Failed,
			"total":       counts.Total,
		}), nil
	}

	res, err := wait.Until(ctx, snapCond, o.cfg.PollInterval, o.cfg.Timeouts.Snapshot)
	switch {
	case errors.Is(err, errSnapshotFailed):
		st.col.RecordError(step, "snapshot job reached FAILED", res.Data)
		o.log.Error("snapshot job failed, continuing to dashboard verification")
	case err != nil:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return failf(step, "snapshot probe failed: %v", err)
	case !res.Success:
		o.log.Warn("snapshot did not complete within timeout", "timeout", o.cfg.Timeouts.Snapshot, "detail", res.Data)
	default:
		o.log.Info("snapshot completed", "detail", res.Data)
	}

	statusCond := o.workspaceStatusCond(st, domain.WorkspaceStatusCompleted)
	res, err = wait.Until(ctx, statusCond, o.cfg.PollInterval, workspaceCompleteWindow)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		o.log.Warn("workspace completion probe failed", "error", err)
	} else if res.Success {
		if !st.promptsConfirmedAt.IsZero() {
			st.col.RecordTiming(domain.TimingConfirmToDashboard, o.now().Sub(st.promptsConfirmedAt))
		}
		o.log.Info("workspace completed")
	} else {
		o.log.Warn("workspace not COMPLETED after snapshot wait", "detail", res.Data)
	}

	if !st.promptsConfirmedAt.IsZero() {
		st.col.RecordTiming(domain.TimingSnapshotProcessing, o.now().Sub(st.promptsConfirmedAt))
	}
	return nil
}

// Step 10: the dashboard must actually render. The URL check covers the
// SPA redirect after processing; when the app has not navigated on its
// own, the overview page is loaded directly.
func (o *Orchestrator) stepVerifyDashboard(ctx context.Context, st *runState) error {
	step := domain.StepVerifyDashboard

	url, err := o.ui.CurrentURL(ctx)
	if err != nil {
		return failf(step, "read current URL: %v", err)
	}
	if st.run.WorkspaceULID != "" && !strings.Contains(url, "/overview") {
		target := fmt.Sprintf("%s/workspace/%s/overview", o.cfg.BaseURL, st.run.WorkspaceULID)
		o.log.Info("navigating to dashboard", "url", target)
		if err := o.ui.Navigate(ctx, target); err != nil {
			return failf(step, "navigate to dashboard: %v", err)
		}
	}

	snapshot, err := o.ui.EvaluatePageState(ctx)
	if err != nil {
		return failf(step, "evaluate dashboard state: %v", err)
	}
	st.ui = &snapshot

	if !snapshot.DashboardLoaded {
		return failWith(step, map[string]any{
			"current_url": snapshot.CurrentURL,
			"page_title":  snapshot.PageTitle,
		}, "dashboard did not load")
	}
	o.screenshot(ctx, st, "dashboard")
	o.log.Info("dashboard verified", "charts", snapshot.ChartCount, "cards", snapshot.CardCount)
	return nil
}

// Step 11: full cross-entity verification. Individual check failures
// surface as findings in the report, never as a step failure; only an
// inability to run the verification at all fails here.
func (o *Orchestrator) stepFullVerification(ctx context.Context, st *runState) error {
	verification, err := o.reader.FullVerification(ctx)
	if err != nil {
		return failf(domain.StepFullVerification, "run full verification: %v", err)
	}
	st.verification = &verification
	o.log.Info("full verification finished", "success", verification.Success)

	summary, err := o.reader.Summary(ctx)
	if err != nil {
		o.log.Error("state summary failed", "error", err)
		return nil
	}
	st.summary = &summary
	return nil
}

// promptCountCond probes whether the workspace has at least min prompts.
func (o *Orchestrator) promptCountCond(st *runState, min int) wait.Condition {
	return func(ctx context.Context) (domain.VerificationResult, error) {
		ws, err := o.reader.FindWorkspace(ctx, st.run.Email)
		if err != nil {
			return domain.VerificationResult{}, err
		}
		count, err := o.reader.Count(ctx, domain.KindPrompt, ws.ID)
		if err != nil {
			return domain.VerificationResult{}, err
		}
		data := map[string]any{"prompt_count": count, "minimum": min}
		if count >= min {
			return domain.Pass("prompts generated", data), nil
		}
		return domain.Fail(fmt.Sprintf("%d of %d prompts", count, min), data), nil
	}
}

// workspaceStatusCond probes whether the workspace has reached one of
// the wanted statuses.
func (o *Orchestrator) workspaceStatusCond(st *runState, wanted ...string) wait.Condition {
	return func(ctx context.Context) (domain.VerificationResult, error) {
		ws, err := o.reader.FindWorkspace(ctx, st.run.Email)
		if err != nil {
			return domain.VerificationResult{}, err
		}
		data := map[string]any{"status": ws.Status}
		for _, w := range wanted {
			if ws.Status == w {
				return domain.Pass("workspace status reached", data), nil
			}
		}
		return domain.Fail(fmt.Sprintf("workspace status %s", ws.Status), data), nil
	}
}

// screenshot captures the page into the configured directory and, when
// a sink is attached, uploads it. Failures never affect the step.
func (o *Orchestrator) screenshot(ctx context.Context, st *runState, name string) {
	path := filepath.Join(o.cfg.ScreenshotDir, fmt.Sprintf("canary_%s_%s.png", name, st.run.ID))
	if err := o.ui.Screenshot(ctx, path); err != nil {
		o.log.Warn("screenshot failed", "name", name, "error", err)
		return
	}
	o.log.Info("screenshot saved", "path", path)
	if o.shots == nil {
		return
	}
	object := fmt.Sprintf("canary/%s/%s.png", st.run.ID, name)
	if err := o.shots.Store(ctx, path, object); err != nil {
		o.log.Warn("screenshot upload failed", "object", object, "error", err)
	}
}
