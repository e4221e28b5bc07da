package journey

import (
	"context"
	"time"

	"github.com/maxeo-ai/journey-canary/internal/domain"
)

// Target names a semantic UI element or action. The orchestrator never
// sees selectors; mapping targets to the automation technology is the
// driver's concern.
type Target string

const (
	TargetGetReport      Target = "get_report"
	TargetSignupForm     Target = "signup_form"
	TargetSubmitForm     Target = "submit_form"
	TargetOTPInput       Target = "otp_input"
	TargetSubmitOTP      Target = "submit_otp"
	TargetTopicsLoading  Target = "topics_loading"
	TargetConfirmPrompts Target = "confirm_prompts"
	TargetDashboard      Target = "dashboard"
)

// Field names a semantic form input.
type Field string

const (
	FieldBrandURL  Field = "brand_url"
	FieldBrandName Field = "brand_name"
	FieldFirstName Field = "first_name"
	FieldLastName  Field = "last_name"
	FieldEmail     Field = "email"
	FieldCountry   Field = "country"
	FieldLanguage  Field = "language"
	FieldOTP       Field = "otp"
)

// UIDriver is the browser automation surface the orchestrator drives.
// One driver instance is owned exclusively by one run.
type UIDriver interface {
	Navigate(ctx context.Context, url string) error
	InvokeAction(ctx context.Context, target Target) error
	FillField(ctx context.Context, field Field, value string) error
	SelectOption(ctx context.Context, field Field, value string) error
	WaitForElement(ctx context.Context, target Target, timeout time.Duration) error
	CurrentURL(ctx context.Context) (string, error)
	EvaluatePageState(ctx context.Context) (domain.PageSnapshot, error)
	Screenshot(ctx context.Context, path string) error
	Close(ctx context.Context) error
}

// StateReader is the persistent-state surface the orchestrator polls.
// Every read is treated as potentially stale and re-polled; the
// workspace identity, once resolved, is the only value cached for the
// run.
type StateReader interface {
	FindIdentity(ctx context.Context, email string) (domain.Identity, error)
	FindWorkspace(ctx context.Context, email string) (domain.Workspace, error)
	Count(ctx context.Context, kind domain.EntityKind, workspaceID int64) (int, error)
	List(ctx context.Context, kind domain.EntityKind, workspaceID int64, limit int) ([]domain.EntityRecord, error)
	LatestJob(ctx context.Context, workspaceID int64) (domain.Snapshot, error)
	JobSubitemStatusCounts(ctx context.Context, snapshotID int64) (domain.SubitemStatusCounts, error)
	SoftDelete(ctx context.Context, kind domain.EntityKind, id int64) error
	FullVerification(ctx context.Context) (domain.DeepVerification, error)
	Summary(ctx context.Context) (domain.StateSummary, error)
	Close() error
}

// Notifier delivers the terminal result. Delivery is fire-and-forget:
// implementations log their own failures and never surface them here.
type Notifier interface {
	Deliver(ctx context.Context, result domain.CanaryResult)
}

// ScreenshotSink persists captured screenshots outside the run host.
// Upload failures are logged by the orchestrator, never escalated.
type ScreenshotSink interface {
	Store(ctx context.Context, localPath string, objectName string) error
}
