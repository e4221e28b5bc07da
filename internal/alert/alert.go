// Package alert delivers the terminal run result to Slack and Sentry.
// Delivery is fire-and-forget: a monitoring probe must never fail
// because its own alerting channel is down, so every delivery error is
// logged and swallowed.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/slack-go/slack"

	"github.com/maxeo-ai/journey-canary/internal/domain"
	"github.com/maxeo-ai/journey-canary/internal/report"
)

// Loading metric alert bounds. The first metric covers form submission
// to generated prompts, the second prompt confirmation to the rendered
// dashboard.
const (
	formToPromptsWarn     = 60 * time.Second
	formToPromptsCritical = 120 * time.Second
	confirmToDashWarn     = 90 * time.Second
	confirmToDashCritical = 180 * time.Second
	sentryFlushTimeout    = 2 * time.Second
	maxFindingsInMessage  = 8
)

// Manager fans the result out to the configured channels. Channels
// without configuration are silently skipped, so a Manager with no
// webhook and no DSN is a logging-only notifier.
type Manager struct {
	webhookURL string
	sentryOn   bool
	log        *slog.Logger

	// postWebhook is swappable in tests.
	postWebhook func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewManager initializes the Sentry client when a DSN is configured.
func NewManager(webhookURL, sentryDSN string, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		webhookURL:  webhookURL,
		log:         log,
		postWebhook: slack.PostWebhookContext,
	}
	if strings.TrimSpace(sentryDSN) != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         sentryDSN,
			Environment: "canary",
		})
		if err != nil {
			return nil, fmt.Errorf("initialize sentry: %w", err)
		}
		m.sentryOn = true
	}
	return m, nil
}

// Deliver sends the result to every configured channel.
func (m *Manager) Deliver(ctx context.Context, result domain.CanaryResult) {
	m.log.Info("delivering run result",
		"run_id", result.RunID,
		"outcome", result.Outcome.Kind,
		"healthy", result.Healthy,
	)

	if m.webhookURL != "" {
		msg := BuildMessage(result)
		if err := m.postWebhook(ctx, m.webhookURL, msg); err != nil {
			m.log.Error("slack delivery failed", "run_id", result.RunID, "error", err)
		}
	}

	if m.sentryOn {
		m.captureSentry(result)
		if !sentry.Flush(sentryFlushTimeout) {
			m.log.Warn("sentry flush timed out", "run_id", result.RunID)
		}
	}
}

func (m *Manager) captureSentry(result domain.CanaryResult) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("canary_test", "signup_journey")
		scope.SetTag("run_id", result.RunID)
		scope.SetContext("canary_run", map[string]any{
			"run_id":         result.RunID,
			"duration_s":     result.TotalDuration().Seconds(),
			"workspace_ulid": result.WorkspaceULID,
			"healthy":        result.Healthy,
		})

		switch result.Outcome.Kind {
		case domain.OutcomeSuccess:
			if !result.Healthy {
				scope.SetLevel(sentry.LevelWarning)
				sentry.CaptureMessage(fmt.Sprintf("canary run %s passed but is degraded", result.RunID))
			}
		case domain.OutcomeFailed:
			scope.SetTag("failed_step", string(result.Outcome.Step))
			scope.SetLevel(sentry.LevelError)
			if result.Outcome.Details != nil {
				scope.SetContext("failure_detail", result.Outcome.Details)
			}
			sentry.CaptureMessage(fmt.Sprintf("canary run %s failed at %s: %s",
				result.RunID, result.Outcome.Step, result.Outcome.Message))
		default:
			scope.SetLevel(sentry.LevelFatal)
			sentry.CaptureMessage(fmt.Sprintf("canary run %s hit an unexpected error: %s",
				result.RunID, result.Outcome.Message))
		}
	})
}

// BuildMessage renders the full Block Kit report for one run.
func BuildMessage(result domain.CanaryResult) *slack.WebhookMessage {
	blocks := []slack.Block{
		headerBlock(result),
		overviewBlock(result),
	}

	if sec := outcomeBlock(result); sec != nil {
		blocks = append(blocks, sec)
	}
	if sec := loadingBlock(result); sec != nil {
		blocks = append(blocks, sec)
	}
	if sec := timingBlock(result); sec != nil {
		blocks = append(blocks, slack.NewDividerBlock(), sec)
	}
	if sec := stateBlock(result); sec != nil {
		blocks = append(blocks, sec)
	}
	if sec := modelUsageBlock(result); sec != nil {
		blocks = append(blocks, sec)
	}
	if sec := uiBlock(result); sec != nil {
		blocks = append(blocks, sec)
	}
	if sec := findingsBlock(result); sec != nil {
		blocks = append(blocks, slack.NewDividerBlock(), sec)
	}
	blocks = append(blocks, footerBlock(result))

	return &slack.WebhookMessage{
		Text:   report.Summary(result),
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func headerBlock(result domain.CanaryResult) slack.Block {
	var title string
	switch result.Outcome.Kind {
	case domain.OutcomeSuccess:
		if result.Healthy {
			title = fmt.Sprintf(":white_check_mark: Canary PASSED (%s)", result.RunID)
		} else {
			title = fmt.Sprintf(":warning: Canary PASSED but DEGRADED (%s)", result.RunID)
		}
	case domain.OutcomeFailed:
		title = fmt.Sprintf(":x: Canary FAILED (%s)", result.RunID)
	default:
		title = fmt.Sprintf(":rotating_light: Canary ERROR (%s)", result.RunID)
	}
	return slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, false, false))
}

func overviewBlock(result domain.CanaryResult) slack.Block {
	workspace := result.WorkspaceULID
	if workspace == "" {
		workspace = "not created"
	}
	fields := []*slack.TextBlockObject{
		markdown("*Run:* `%s`", result.RunID),
		markdown("*Duration:* %.1fs", result.TotalDuration().Seconds()),
		markdown("*Workspace:* %s", workspace),
		markdown("*Email:* %s", result.Email),
	}
	return slack.NewSectionBlock(nil, fields, nil)
}

// outcomeBlock details the failure; successful runs skip it.
func outcomeBlock(result domain.CanaryResult) slack.Block {
	switch result.Outcome.Kind {
	case domain.OutcomeFailed:
		text := fmt.Sprintf("*Failed step:* `%s` (step %d of %d)\n*Error:* %s",
			result.Outcome.Step, domain.StepOrdinal(result.Outcome.Step), len(domain.Steps()), result.Outcome.Message)
		for k, v := range result.Outcome.Details {
			text += fmt.Sprintf("\n• %s: %v", k, v)
		}
		return slack.NewSectionBlock(markdown("%s", text), nil, nil)
	case domain.OutcomeUnexpected:
		return slack.NewSectionBlock(markdown("*Unexpected error:* %s", result.Outcome.Message), nil, nil)
	}
	return nil
}

func loadingBlock(result domain.CanaryResult) slack.Block {
	var lines []string
	if d, ok := result.Timings[domain.TimingFormToPrompts]; ok {
		lines = append(lines, fmt.Sprintf("Loading 1 (form → prompts): %.1fs %s",
			d.Seconds(), loadingVerdict(d, formToPromptsWarn, formToPromptsCritical)))
	}
	if d, ok := result.Timings[domain.TimingConfirmToDashboard]; ok {
		lines = append(lines, fmt.Sprintf("Loading 2 (confirm → dashboard): %.1fs %s",
			d.Seconds(), loadingVerdict(d, confirmToDashWarn, confirmToDashCritical)))
	}
	if d, ok := result.Timings[domain.TimingSnapshotProcessing]; ok {
		lines = append(lines, fmt.Sprintf("Snapshot processing: %.1fs", d.Seconds()))
	}
	if len(lines) == 0 {
		return nil
	}
	return slack.NewSectionBlock(markdown("*Loading metrics*\n%s", strings.Join(lines, "\n")), nil, nil)
}

func loadingVerdict(d, warn, critical time.Duration) string {
	switch {
	case d > critical:
		return ":x: critical"
	case d > warn:
		return ":warning: slow"
	default:
		return ":white_check_mark:"
	}
}

func timingBlock(result domain.CanaryResult) slack.Block {
	lines := report.TimingReport(result)
	if len(lines) == 0 {
		return nil
	}
	text := fmt.Sprintf("*Step timings*\n```%s```", strings.Join(lines, "\n"))
	if slow := report.SlowestSteps(result); len(slow) > 0 {
		text += fmt.Sprintf("\n*Slowest:* %s", strings.Join(slow, "; "))
	}
	return slack.NewSectionBlock(markdown("%s", text), nil, nil)
}

func stateBlock(result domain.CanaryResult) slack.Block {
	state := result.State
	if state == nil {
		return nil
	}
	lines := []string{
		fmt.Sprintf("Workspace status: %s", state.Workspace.Status),
		fmt.Sprintf("Categories: %d, Prompts: %d, Competitors: %d",
			state.CategoryCount, state.PromptCount, state.CompetitorCount),
	}
	if state.Snapshot != nil {
		line := fmt.Sprintf("Snapshot: %s", state.Snapshot.Status)
		if state.SubitemCounts != nil {
			c := state.SubitemCounts
			line += fmt.Sprintf(" (%d/%d done, %d failed)", c.Completed, c.Total, c.Failed)
		}
		lines = append(lines, line)
	} else {
		lines = append(lines, "Snapshot: not started")
	}
	return slack.NewSectionBlock(markdown("*Database state*\n%s", strings.Join(lines, "\n")), nil, nil)
}

func modelUsageBlock(result domain.CanaryResult) slack.Block {
	if result.State == nil || result.State.ModelUsage.TotalCalls == 0 {
		return nil
	}
	usage := result.State.ModelUsage
	lines := []string{
		fmt.Sprintf("Calls: %d, Total: %.1fs, Cost: $%.4f, Tokens: %d",
			usage.TotalCalls, usage.TotalSeconds, usage.TotalCost, usage.TotalTokens),
	}
	for _, mu := range usage.ByModel {
		lines = append(lines, fmt.Sprintf("%s: %d calls, avg %.1fs", mu.Model, mu.Calls, mu.AvgSeconds))
	}
	return slack.NewSectionBlock(markdown("*AI model usage*\n%s", strings.Join(lines, "\n")), nil, nil)
}

func uiBlock(result domain.CanaryResult) slack.Block {
	ui := result.UI
	if ui == nil {
		return nil
	}
	text := fmt.Sprintf("*Dashboard*\nLoaded: %v, Charts: %d, Cards: %d",
		ui.DashboardLoaded, ui.ChartCount, ui.CardCount)
	if ui.BrandName != "" {
		text += fmt.Sprintf(", Brand: %s", ui.BrandName)
	}
	return slack.NewSectionBlock(markdown("%s", text), nil, nil)
}

func findingsBlock(result domain.CanaryResult) slack.Block {
	if len(result.Findings) == 0 {
		return nil
	}
	findings := result.Findings
	if len(findings) > maxFindingsInMessage {
		findings = findings[:maxFindingsInMessage]
	}
	var lines []string
	for _, f := range findings {
		lines = append(lines, fmt.Sprintf("%s %s", severityMarker(f.Severity), f.Message))
	}
	if extra := len(result.Findings) - len(findings); extra > 0 {
		lines = append(lines, fmt.Sprintf("… and %d more", extra))
	}
	return slack.NewSectionBlock(markdown("*Findings*\n%s", strings.Join(lines, "\n")), nil, nil)
}

func severityMarker(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return ":x:"
	case domain.SeverityWarning:
		return ":warning:"
	default:
		return ":white_check_mark:"
	}
}

func footerBlock(result domain.CanaryResult) slack.Block {
	return slack.NewContextBlock("",
		markdown("Started %s UTC • signup journey canary", result.StartedAt.UTC().Format("2006-01-02 15:04:05")),
	)
}

func markdown(format string, args ...any) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf(format, args...), false, false)
}
