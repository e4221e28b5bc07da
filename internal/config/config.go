// Package config builds the immutable run configuration. Values come
// from environment variables first, optionally overlaid by a YAML file
// passed on the command line. The result is validated once and then
// passed by value into the orchestrator and its collaborators.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maxeo-ai/journey-canary/internal/domain"
	"github.com/maxeo-ai/journey-canary/internal/platform/env"
)

// Identity is the synthetic signup persona for one run. The email local
// part is generated per run; the domain marks rows as canary-owned and
// guards the cleanup path.
type Identity struct {
	EmailDomain string
	BrandDomain string
	BrandName   string
	FirstName   string
	LastName    string
	Country     string
	Language    string
}

// Timeouts holds the per-step wait bounds. Each bounded wait owns its
// deadline measured from its own start.
type Timeouts struct {
	PageLoad      time.Duration
	Element       time.Duration
	UserCreated   time.Duration
	OTPTransition time.Duration
	Workspace     time.Duration
	Categories    time.Duration
	Snapshot      time.Duration
}

// Thresholds are the minimum entity counts a healthy run must reach.
type Thresholds struct {
	MinCategories  int
	MinPrompts     int
	HealthyPrompts int
	MinCompetitors int
}

type Browser struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
}

type Config struct {
	BaseURL  string
	Identity Identity

	Timeouts     Timeouts
	PollInterval time.Duration

	Thresholds Thresholds

	// Baselines maps step ids to their expected duration. Steps without
	// an entry are never flagged for timing.
	Baselines map[domain.StepID]time.Duration

	Browser Browser

	AutoCleanup    bool
	StaleRetention time.Duration

	SkipOTP bool

	ScreenshotDir string

	SlackWebhookURL string
	SentryDSN       string

	// FernetKey decrypts the stored TOTP secret. Required unless SkipOTP.
	FernetKey string
}

// DefaultBaselines mirrors the expected durations the timing report and
// anomaly detection compare against.
func DefaultBaselines() map[domain.StepID]time.Duration {
	return map[domain.StepID]time.Duration{
		domain.StepNavigateLanding:   3 * time.Second,
		domain.StepClickGetReport:    3 * time.Second,
		domain.StepSubmitSignupForm:  45 * time.Second,
		domain.StepVerifyUserCreated: 3 * time.Second,
		domain.StepFillOTP:           70 * time.Second,
		domain.StepWorkspaceCreated:  5 * time.Second,
		domain.StepWaitCategories:    60 * time.Second,
		domain.StepApprovePrompts:    90 * time.Second,
		domain.StepWaitSnapshot:      300 * time.Second,
		domain.StepVerifyDashboard:   5 * time.Second,
		domain.StepFullVerification:  2 * time.Second,
	}
}

func defaults() Config {
	return Config{
		BaseURL: "https://maxeo.ai",
		Identity: Identity{
			EmailDomain: "canary.maxeo.ai",
			BrandDomain: "www.letsbecool.com",
			BrandName:   "Maxeo Canary Test",
			FirstName:   "Canary",
			LastName:    "Test",
			Country:     "TR",
			Language:    "tr",
		},
		Timeouts: Timeouts{
			PageLoad:      30 * time.Second,
			Element:       10 * time.Second,
			UserCreated:   30 * time.Second,
			OTPTransition: 60 * time.Second,
			Workspace:     60 * time.Second,
			Categories:    2 * time.Minute,
			Snapshot:      5 * time.Minute,
		},
		PollInterval: 5 * time.Second,
		Thresholds: Thresholds{
			MinCategories:  3,
			MinPrompts:     15,
			HealthyPrompts: 20,
			MinCompetitors: 1,
		},
		Baselines: DefaultBaselines(),
		Browser: Browser{
			Headless:       true,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
		},
		AutoCleanup:    true,
		StaleRetention: 24 * time.Hour,
		ScreenshotDir:  os.TempDir(),
	}
}

// FromEnv builds a Config from environment variables on top of the
// built-in defaults.
func FromEnv() (Config, error) {
	cfg := defaults()

	cfg.BaseURL = env.String("CANARY_BASE_URL", cfg.BaseURL)
	cfg.Identity.EmailDomain = env.String("CANARY_EMAIL_DOMAIN", cfg.Identity.EmailDomain)
	cfg.Identity.BrandDomain = env.String("CANARY_BRAND_DOMAIN", cfg.Identity.BrandDomain)
	cfg.Identity.BrandName = env.String("CANARY_BRAND_NAME", cfg.Identity.BrandName)

	var err error
	if cfg.Timeouts.PageLoad, err = env.Duration("CANARY_PAGE_LOAD_TIMEOUT", cfg.Timeouts.PageLoad); err != nil {
		return Config{}, err
	}
	if cfg.Timeouts.Element, err = env.Duration("CANARY_ELEMENT_TIMEOUT", cfg.Timeouts.Element); err != nil {
		return Config{}, err
	}
	if cfg.Timeouts.UserCreated, err = env.Duration("CANARY_USER_CREATED_TIMEOUT", cfg.Timeouts.UserCreated); err != nil {
		return Config{}, err
	}
	if cfg.Timeouts.OTPTransition, err = env.Duration("CANARY_OTP_TRANSITION_TIMEOUT", cfg.Timeouts.OTPTransition); err != nil {
		return Config{}, err
	}
	if cfg.Timeouts.Workspace, err = env.Duration("CANARY_WORKSPACE_TIMEOUT", cfg.Timeouts.Workspace); err != nil {
		return Config{}, err
	}
	if cfg.Timeouts.Categories, err = env.Duration("CANARY_CATEGORY_WAIT_TIMEOUT", cfg.Timeouts.Categories); err != nil {
		return Config{}, err
	}
	if cfg.Timeouts.Snapshot, err = env.Duration("CANARY_SNAPSHOT_WAIT_TIMEOUT", cfg.Timeouts.Snapshot); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval, err = env.Duration("CANARY_POLLING_INTERVAL", cfg.PollInterval); err != nil {
		return Config{}, err
	}

	if cfg.Thresholds.MinCategories, err = env.Int("CANARY_MIN_CATEGORIES", cfg.Thresholds.MinCategories); err != nil {
		return Config{}, err
	}
	if cfg.Thresholds.MinPrompts, err = env.Int("CANARY_MIN_PROMPTS", cfg.Thresholds.MinPrompts); err != nil {
		return Config{}, err
	}
	if cfg.Thresholds.HealthyPrompts, err = env.Int("CANARY_HEALTHY_PROMPTS", cfg.Thresholds.HealthyPrompts); err != nil {
		return Config{}, err
	}
	if cfg.Thresholds.MinCompetitors, err = env.Int("CANARY_MIN_COMPETITORS", cfg.Thresholds.MinCompetitors); err != nil {
		return Config{}, err
	}

	if cfg.Browser.Headless, err = env.Bool("CANARY_HEADLESS", cfg.Browser.Headless); err != nil {
		return Config{}, err
	}
	if cfg.Browser.ViewportWidth, err = env.Int("CANARY_VIEWPORT_WIDTH", cfg.Browser.ViewportWidth); err != nil {
		return Config{}, err
	}
	if cfg.Browser.ViewportHeight, err = env.Int("CANARY_VIEWPORT_HEIGHT", cfg.Browser.ViewportHeight); err != nil {
		return Config{}, err
	}

	if cfg.AutoCleanup, err = env.Bool("CANARY_AUTO_CLEANUP", cfg.AutoCleanup); err != nil {
		return Config{}, err
	}
	if cfg.StaleRetention, err = env.Duration("CANARY_STALE_RETENTION", cfg.StaleRetention); err != nil {
		return Config{}, err
	}
	if cfg.SkipOTP, err = env.Bool("CANARY_SKIP_OTP", cfg.SkipOTP); err != nil {
		return Config{}, err
	}

	cfg.ScreenshotDir = env.String("CANARY_SCREENSHOT_DIR", cfg.ScreenshotDir)
	cfg.SlackWebhookURL = env.String("CANARY_SLACK_WEBHOOK", cfg.SlackWebhookURL)
	cfg.SentryDSN = env.String("CANARY_SENTRY_DSN", cfg.SentryDSN)
	cfg.FernetKey = env.String("CANARY_FERNET_KEY", cfg.FernetKey)

	return cfg, nil
}

// Load builds the configuration from the environment and, when path is
// non-empty, overlays the YAML file on top. The merged result is
// validated before it is returned.
func Load(path string) (Config, error) {
	cfg, err := LoadPartial(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadPartial is Load without the final validation. Maintenance
// commands that need only a slice of the configuration use it so that
// run-only settings (browser, alerting, OTP key) stay optional.
func LoadPartial(path string) (Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := overlay(&cfg, raw); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// fileConfig is the YAML file schema. Every field is optional; unset
// fields keep the value already in Config. Durations are written as Go
// duration strings ("45s", "5m").
type fileConfig struct {
	BaseURL  *string `yaml:"base_url"`
	Identity struct {
		EmailDomain *string `yaml:"email_domain"`
		BrandDomain *string `yaml:"brand_domain"`
		BrandName   *string `yaml:"brand_name"`
		FirstName   *string `yaml:"first_name"`
		LastName    *string `yaml:"last_name"`
		Country     *string `yaml:"country"`
		Language    *string `yaml:"language"`
	} `yaml:"identity"`
	Timeouts struct {
		PageLoad      *string `yaml:"page_load"`
		Element       *string `yaml:"element"`
		UserCreated   *string `yaml:"user_created"`
		OTPTransition *string `yaml:"otp_transition"`
		Workspace     *string `yaml:"workspace"`
		Categories    *string `yaml:"categories"`
		Snapshot      *string `yaml:"snapshot"`
	} `yaml:"timeouts"`
	PollInterval *string `yaml:"poll_interval"`
	Thresholds   struct {
		MinCategories  *int `yaml:"min_categories"`
		MinPrompts     *int `yaml:"min_prompts"`
		HealthyPrompts *int `yaml:"healthy_prompts"`
		MinCompetitors *int `yaml:"min_competitors"`
	} `yaml:"thresholds"`
	Baselines map[string]string `yaml:"baselines"`
	Browser   struct {
		Headless       *bool `yaml:"headless"`
		ViewportWidth  *int  `yaml:"viewport_width"`
		ViewportHeight *int  `yaml:"viewport_height"`
	} `yaml:"browser"`
	AutoCleanup     *bool   `yaml:"auto_cleanup"`
	StaleRetention  *string `yaml:"stale_retention"`
	SkipOTP         *bool   `yaml:"skip_otp"`
	ScreenshotDir   *string `yaml:"screenshot_dir"`
	SlackWebhookURL *string `yaml:"slack_webhook_url"`
	SentryDSN       *string `yaml:"sentry_dsn"`
	FernetKey       *string `yaml:"fernet_key"`
}

// overlay applies the YAML file on top of cfg. Keys absent from the
// file keep their current values; a baselines block replaces only the
// steps it names.
func overlay(cfg *Config, raw []byte) error {
	var file fileConfig
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return fmt.Errorf("decode config file: %w", err)
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	var parseErr error
	setDuration := func(dst *time.Duration, src *string, key string) {
		if src == nil || parseErr != nil {
			return
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			parseErr = fmt.Errorf("config file: parse %s: %w", key, err)
			return
		}
		*dst = d
	}

	setString(&cfg.BaseURL, file.BaseURL)
	setString(&cfg.Identity.EmailDomain, file.Identity.EmailDomain)
	setString(&cfg.Identity.BrandDomain, file.Identity.BrandDomain)
	setString(&cfg.Identity.BrandName, file.Identity.BrandName)
	setString(&cfg.Identity.FirstName, file.Identity.FirstName)
	setString(&cfg.Identity.LastName, file.Identity.LastName)
	setString(&cfg.Identity.Country, file.Identity.Country)
	setString(&cfg.Identity.Language, file.Identity.Language)

	setDuration(&cfg.Timeouts.PageLoad, file.Timeouts.PageLoad, "timeouts.page_load")
	setDuration(&cfg.Timeouts.Element, file.Timeouts.Element, "timeouts.element")
	setDuration(&cfg.Timeouts.UserCreated, file.Timeouts.UserCreated, "timeouts.user_created")
	setDuration(&cfg.Timeouts.OTPTransition, file.Timeouts.OTPTransition, "timeouts.otp_transition")
	setDuration(&cfg.Timeouts.Workspace, file.Timeouts.Workspace, "timeouts.workspace")
	setDuration(&cfg.Timeouts.Categories, file.Timeouts.Categories, "timeouts.categories")
	setDuration(&cfg.Timeouts.Snapshot, file.Timeouts.Snapshot, "timeouts.snapshot")
	setDuration(&cfg.PollInterval, file.PollInterval, "poll_interval")
	setDuration(&cfg.StaleRetention, file.StaleRetention, "stale_retention")

	setInt(&cfg.Thresholds.MinCategories, file.Thresholds.MinCategories)
	setInt(&cfg.Thresholds.MinPrompts, file.Thresholds.MinPrompts)
	setInt(&cfg.Thresholds.HealthyPrompts, file.Thresholds.HealthyPrompts)
	setInt(&cfg.Thresholds.MinCompetitors, file.Thresholds.MinCompetitors)

	setBool(&cfg.Browser.Headless, file.Browser.Headless)
	setInt(&cfg.Browser.ViewportWidth, file.Browser.ViewportWidth)
	setInt(&cfg.Browser.ViewportHeight, file.Browser.ViewportHeight)

	setBool(&cfg.AutoCleanup, file.AutoCleanup)
	setBool(&cfg.SkipOTP, file.SkipOTP)
	setString(&cfg.ScreenshotDir, file.ScreenshotDir)
	setString(&cfg.SlackWebhookURL, file.SlackWebhookURL)
	setString(&cfg.SentryDSN, file.SentryDSN)
	setString(&cfg.FernetKey, file.FernetKey)

	for step, val := range file.Baselines {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("config file: parse baselines.%s: %w", step, err)
		}
		if cfg.Baselines == nil {
			cfg.Baselines = make(map[domain.StepID]time.Duration)
		}
		cfg.Baselines[domain.StepID(step)] = d
	}
	return parseErr
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base URL is required")
	}
	if strings.TrimSpace(c.Identity.EmailDomain) == "" {
		return errors.New("email domain is required")
	}
	if strings.Contains(c.Identity.EmailDomain, "@") {
		return fmt.Errorf("email domain must not contain @: %q", c.Identity.EmailDomain)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"page load timeout", c.Timeouts.PageLoad},
		{"element timeout", c.Timeouts.Element},
		{"user created timeout", c.Timeouts.UserCreated},
		{"otp transition timeout", c.Timeouts.OTPTransition},
		{"workspace timeout", c.Timeouts.Workspace},
		{"categories timeout", c.Timeouts.Categories},
		{"snapshot timeout", c.Timeouts.Snapshot},
	} {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}
	if c.Thresholds.MinCategories < 1 {
		return errors.New("min categories must be >= 1")
	}
	if c.Thresholds.MinPrompts < 1 {
		return errors.New("min prompts must be >= 1")
	}
	if c.Thresholds.HealthyPrompts < c.Thresholds.MinPrompts {
		return errors.New("healthy prompts must be >= min prompts")
	}
	if c.Thresholds.MinCompetitors < 0 {
		return errors.New("min competitors must be >= 0")
	}
	for step := range c.Baselines {
		if !step.Valid() {
			return fmt.Errorf("baseline for unknown step %q", step)
		}
	}
	if c.Browser.ViewportWidth < 1 || c.Browser.ViewportHeight < 1 {
		return errors.New("viewport dimensions must be positive")
	}
	if c.AutoCleanup && c.StaleRetention <= 0 {
		return errors.New("stale retention must be positive when auto cleanup is enabled")
	}
	if !c.SkipOTP && strings.TrimSpace(c.FernetKey) == "" {
		return errors.New("fernet key is required unless OTP verification is skipped")
	}
	return nil
}

// RunEmail derives the unique synthetic address for one run from its id.
func (c Config) RunEmail(runID string) string {
	return fmt.Sprintf("canary-%s@%s", runID, c.Identity.EmailDomain)
}
