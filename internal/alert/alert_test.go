package alert

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"github.com/maxeo-ai/journey-canary/internal/domain"
)

func passedResult() domain.CanaryResult {
	start := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	return domain.CanaryResult{
		RunID:         "abc12345",
		Email:         "canary-abc12345@canary.test",
		Outcome:       domain.Outcome{Kind: domain.OutcomeSuccess},
		StartedAt:     start,
		EndedAt:       start.Add(5 * time.Minute),
		WorkspaceULID: "01TEST",
		Healthy:       true,
		Timings: map[string]time.Duration{
			domain.TimingFormToPrompts:      40 * time.Second,
			domain.TimingConfirmToDashboard: 100 * time.Second,
		},
		Findings: []domain.Finding{
			{Severity: domain.SeverityInfo, Message: "no anomalies detected, all systems normal"},
		},
	}
}

func renderedText(t *testing.T, msg *slack.WebhookMessage) string {
	t.Helper()
	var sb strings.Builder
	for _, block := range msg.Blocks.BlockSet {
		switch b := block.(type) {
		case *slack.HeaderBlock:
			sb.WriteString(b.Text.Text)
			sb.WriteString("\n")
		case *slack.SectionBlock:
			if b.Text != nil {
				sb.WriteString(b.Text.Text)
				sb.WriteString("\n")
			}
			for _, f := range b.Fields {
				sb.WriteString(f.Text)
				sb.WriteString("\n")
			}
		case *slack.ContextBlock:
			for _, el := range b.ContextElements.Elements {
				if obj, ok := el.(*slack.TextBlockObject); ok {
					sb.WriteString(obj.Text)
					sb.WriteString("\n")
				}
			}
		}
	}
	return sb.String()
}

func TestBuildMessagePassed(t *testing.T) {
	msg := BuildMessage(passedResult())
	text := renderedText(t, msg)

	for _, want := range []string{
		"Canary PASSED (abc12345)",
		"*Duration:* 300.0s",
		"*Workspace:* 01TEST",
		"Loading 1 (form → prompts): 40.0s :white_check_mark:",
		"Loading 2 (confirm → dashboard): 100.0s :warning: slow",
		"no anomalies detected",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Failed step") {
		t.Fatalf("passed message contains failure section:\n%s", text)
	}
}

func TestBuildMessageFailed(t *testing.T) {
	result := passedResult()
	result.Healthy = false
	result.Outcome = domain.Outcome{
		Kind:    domain.OutcomeFailed,
		Step:    domain.StepWorkspaceCreated,
		Message: "workspace was not created within 1m0s",
		Details: map[string]any{"status": "missing"},
	}

	text := renderedText(t, BuildMessage(result))
	for _, want := range []string{
		"Canary FAILED (abc12345)",
		"*Failed step:* `workspace_created`",
		"workspace was not created within 1m0s",
		"status: missing",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q:\n%s", want, text)
		}
	}
}

func TestBuildMessageDegraded(t *testing.T) {
	result := passedResult()
	result.Healthy = false
	text := renderedText(t, BuildMessage(result))
	if !strings.Contains(text, "DEGRADED") {
		t.Fatalf("degraded run not flagged in header:\n%s", text)
	}
}

func TestBuildMessageStateSection(t *testing.T) {
	result := passedResult()
	result.State = &domain.StateSummary{
		Workspace:       domain.Workspace{Status: domain.WorkspaceStatusCompleted},
		CategoryCount:   5,
		PromptCount:     25,
		CompetitorCount: 3,
		Snapshot:        &domain.Snapshot{Status: domain.SnapshotStatusCompleted},
		SubitemCounts:   &domain.SubitemStatusCounts{Total: 25, Completed: 24, Failed: 1},
	}

	text := renderedText(t, BuildMessage(result))
	for _, want := range []string{
		"Workspace status: COMPLETED",
		"Categories: 5, Prompts: 25, Competitors: 3",
		"Snapshot: COMPLETED (24/25 done, 1 failed)",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q:\n%s", want, text)
		}
	}
}

func TestBuildMessageTruncatesFindings(t *testing.T) {
	result := passedResult()
	result.Findings = nil
	for i := 0; i < maxFindingsInMessage+3; i++ {
		result.Findings = append(result.Findings, domain.Finding{
			Severity: domain.SeverityWarning,
			Message:  "finding",
		})
	}
	text := renderedText(t, BuildMessage(result))
	if !strings.Contains(text, "and 3 more") {
		t.Fatalf("findings not truncated:\n%s", text)
	}
}

func TestLoadingVerdict(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, ":white_check_mark:"},
		{90 * time.Second, ":warning: slow"},
		{150 * time.Second, ":x: critical"},
	}
	for _, tc := range cases {
		if got := loadingVerdict(tc.d, formToPromptsWarn, formToPromptsCritical); got != tc.want {
			t.Fatalf("loadingVerdict(%v)=%q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestDeliverPostsWebhook(t *testing.T) {
	var posted *slack.WebhookMessage
	m := &Manager{
		webhookURL: "https://hooks.example.test/services/x",
		log:        slog.New(slog.DiscardHandler),
		postWebhook: func(ctx context.Context, url string, msg *slack.WebhookMessage) error {
			posted = msg
			return nil
		},
	}
	m.Deliver(context.Background(), passedResult())
	if posted == nil {
		t.Fatalf("webhook was not posted")
	}
	if !strings.Contains(posted.Text, "passed") {
		t.Fatalf("fallback text=%q", posted.Text)
	}
}

func TestDeliverSwallowsWebhookError(t *testing.T) {
	m := &Manager{
		webhookURL: "https://hooks.example.test/services/x",
		log:        slog.New(slog.DiscardHandler),
		postWebhook: func(ctx context.Context, url string, msg *slack.WebhookMessage) error {
			return errors.New("slack is down")
		},
	}
	// Must not panic or propagate.
	m.Deliver(context.Background(), passedResult())
}

func TestDeliverSkipsChannelsWithoutConfig(t *testing.T) {
	called := false
	m := &Manager{
		log: slog.New(slog.DiscardHandler),
		postWebhook: func(ctx context.Context, url string, msg *slack.WebhookMessage) error {
			called = true
			return nil
		},
	}
	m.Deliver(context.Background(), passedResult())
	if called {
		t.Fatalf("webhook posted without a configured URL")
	}
}

func TestNewManagerWithoutSentry(t *testing.T) {
	m, err := NewManager("https://hooks.example.test/services/x", "", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.sentryOn {
		t.Fatalf("sentry enabled without a DSN")
	}
}
