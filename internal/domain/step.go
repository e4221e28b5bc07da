package domain

// StepID identifies one step of the monitored journey. The values are
// stable: they key the baseline table, metrics, and alert payloads.
type StepID string

const (
	StepNavigateLanding   StepID = "navigate_landing"
	StepClickGetReport    StepID = "click_get_report"
	StepSubmitSignupForm  StepID = "submit_signup_form"
	StepVerifyUserCreated StepID = "verify_user_created"
	StepFillOTP           StepID = "fill_otp"
	StepWorkspaceCreated  StepID = "workspace_created"
	StepWaitCategories    StepID = "wait_categories"
	StepApprovePrompts    StepID = "approve_prompts"
	StepWaitSnapshot      StepID = "wait_snapshot"
	StepVerifyDashboard   StepID = "verify_dashboard"
	StepFullVerification  StepID = "full_verification"
)

// journeySteps is the transition table: each step maps to its successor,
// with failure at any step terminal. Order here is the execution order.
var journeySteps = []StepID{
	StepNavigateLanding,
	StepClickGetReport,
	StepSubmitSignupForm,
	StepVerifyUserCreated,
	StepFillOTP,
	StepWorkspaceCreated,
	StepWaitCategories,
	StepApprovePrompts,
	StepWaitSnapshot,
	StepVerifyDashboard,
	StepFullVerification,
}

var stepIndex = func() map[StepID]int {
	out := make(map[StepID]int, len(journeySteps))
	for i, s := range journeySteps {
		out[s] = i
	}
	return out
}()

// Steps returns the journey steps in execution order.
func Steps() []StepID {
	out := make([]StepID, len(journeySteps))
	copy(out, journeySteps)
	return out
}

// FirstStep returns the entry step of the journey.
func FirstStep() StepID {
	return journeySteps[0]
}

// NextStep returns the successor of step, or false when step is the last
// one or unknown.
func NextStep(step StepID) (StepID, bool) {
	i, ok := stepIndex[step]
	if !ok || i == len(journeySteps)-1 {
		return "", false
	}
	return journeySteps[i+1], true
}

// StepOrdinal returns the 1-based position of step in the journey, or 0
// for an unknown step.
func StepOrdinal(step StepID) int {
	i, ok := stepIndex[step]
	if !ok {
		return 0
	}
	return i + 1
}

func (s StepID) Valid() bool {
	_, ok := stepIndex[s]
	return ok
}

// Derived timing keys recorded alongside per-step durations. The two
// loading metrics and the snapshot processing time are kept distinct:
// workspace completion and snapshot completion can diverge.
const (
	TimingFormToPrompts      = "loading_1_form_to_prompts"
	TimingConfirmToDashboard = "loading_2_confirm_to_dashboard"
	TimingSnapshotProcessing = "snapshot_processing"
)
