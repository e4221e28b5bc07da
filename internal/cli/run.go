package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maxeo-ai/journey-canary/internal/alert"
	"github.com/maxeo-ai/journey-canary/internal/artifacts"
	"github.com/maxeo-ai/journey-canary/internal/browser"
	"github.com/maxeo-ai/journey-canary/internal/config"
	"github.com/maxeo-ai/journey-canary/internal/domain"
	"github.com/maxeo-ai/journey-canary/internal/journey"
	"github.com/maxeo-ai/journey-canary/internal/platform/objectstore"
	"github.com/maxeo-ai/journey-canary/internal/platform/postgres"
	"github.com/maxeo-ai/journey-canary/internal/report"
	"github.com/maxeo-ai/journey-canary/internal/verify"
)

// Exit codes: 0 success, 1 the journey failed at a step, 2 the probe
// itself broke (setup error or unexpected failure mid-run).
const (
	exitFailed = 1
	exitError  = 2
)

func newRunCommand() *cobra.Command {
	var uploadScreenshots bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one full signup journey",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJourney(cmd, uploadScreenshots)
		},
	}
	cmd.Flags().BoolVar(&uploadScreenshots, "upload-screenshots", false, "upload screenshots to object storage")
	return cmd
}

func runJourney(cmd *cobra.Command, uploadScreenshots bool) error {
	ctx := cmd.Context()
	log := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	runID := uuid.NewString()[:8]
	runEmail := cfg.RunEmail(runID)

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("database configuration: %w", err)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	reader := verify.NewVerifier(db, runEmail, cfg.Identity.EmailDomain, verify.Thresholds{
		MinCategories:  cfg.Thresholds.MinCategories,
		MinPrompts:     cfg.Thresholds.MinPrompts,
		MinCompetitors: cfg.Thresholds.MinCompetitors,
	})

	notifier, err := alert.NewManager(cfg.SlackWebhookURL, cfg.SentryDSN, log)
	if err != nil {
		_ = reader.Close()
		return fmt.Errorf("initialize alerting: %w", err)
	}

	ui, err := browser.New(ctx, cfg.Browser, log)
	if err != nil {
		_ = reader.Close()
		return fmt.Errorf("start browser: %w", err)
	}

	opts := []journey.Option{journey.WithRunID(runID)}
	if uploadScreenshots {
		sink, err := newScreenshotSink(cmd, log)
		if err != nil {
			// Screenshots are a nice-to-have; the run proceeds without them.
			log.Warn("screenshot upload disabled", "error", err)
		} else {
			opts = append(opts, journey.WithScreenshotSink(sink))
		}
	}

	// The orchestrator closes the browser and the database reader.
	result := journey.New(cfg, ui, reader, notifier, log, opts...).Run(ctx)

	fmt.Fprintln(cmd.OutOrStdout(), report.Summary(result))
	for _, line := range report.TimingReport(result) {
		fmt.Fprintln(cmd.OutOrStdout(), "  "+line)
	}
	for _, f := range result.Findings {
		fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s\n", f.Severity, f.Message)
	}

	switch result.Outcome.Kind {
	case domain.OutcomeSuccess:
		return nil
	case domain.OutcomeFailed:
		os.Exit(exitFailed)
	default:
		os.Exit(exitError)
	}
	return nil
}

func newScreenshotSink(cmd *cobra.Command, log *slog.Logger) (journey.ScreenshotSink, error) {
	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	client, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		return nil, err
	}
	if err := objectstore.EnsureBucket(cmd.Context(), client, storeCfg); err != nil {
		return nil, err
	}
	return artifacts.NewStore(client, storeCfg.BucketScreenshots, log)
}
