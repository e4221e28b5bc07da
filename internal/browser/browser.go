// Package browser drives a headless Chrome session through the signup
// journey. The product frontend is a React SPA without stable test ids,
// so every semantic target maps to a list of CSS selectors plus button
// text patterns, tried in order.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/maxeo-ai/journey-canary/internal/config"
	"github.com/maxeo-ai/journey-canary/internal/domain"
	"github.com/maxeo-ai/journey-canary/internal/journey"
)

const pollEvery = 250 * time.Millisecond

// targetSpec locates one semantic target: CSS selectors first, then
// clickable elements matched by lowercase text substring.
type targetSpec struct {
	selectors []string
	texts     []string
}

var targetSpecs = map[journey.Target]targetSpec{
	journey.TargetGetReport: {
		selectors: []string{
			"[data-testid='get-report-button']",
			"input[type='submit'][value='Get Report']",
			"input[placeholder*='website' i]",
		},
		texts: []string{"get free report", "get report"},
	},
	journey.TargetSignupForm: {
		selectors: []string{
			"div.fixed input[name='brand_url']",
			"form input[name='brand_url']",
			"input[placeholder*='Website']",
		},
	},
	journey.TargetSubmitForm: {
		selectors: []string{
			"input[type='submit'][value='Get Report']",
			"button[type='submit']",
			"input[type='submit']",
		},
		texts: []string{"get report"},
	},
	journey.TargetOTPInput: {
		selectors: []string{
			"input[maxlength='1'][inputmode='numeric']",
			"input[aria-label*='Digit']",
			"input[name='totp']",
		},
	},
	journey.TargetSubmitOTP: {
		selectors: []string{
			"button[type='submit']",
			"input[type='submit']",
		},
		texts: []string{"verify", "submit"},
	},
	journey.TargetTopicsLoading: {
		selectors: []string{
			"[class*='loader']",
			"[class*='loading']",
			"[class*='spinner']",
			"[class*='category']",
		},
		texts: []string{"setting up", "analyzing", "categories", "topics", "continue"},
	},
	journey.TargetConfirmPrompts: {
		selectors: []string{
			"button[type='submit']",
			"input[type='submit']",
		},
		texts: []string{"continue", "submit", "confirm", "next", "save", "proceed"},
	},
	journey.TargetDashboard: {
		selectors: []string{"main"},
	},
}

// fieldSelectors covers the plain form inputs. The OTP field has its
// own digit-splitting path in FillField.
var fieldSelectors = map[journey.Field]string{
	journey.FieldBrandURL:  "input[name='brand_url'], input[placeholder*='Website'], input[placeholder*='URL']",
	journey.FieldBrandName: "input[name='brand_name'], input[placeholder*='Brand']",
	journey.FieldFirstName: "input[name='first_name'], input[placeholder*='First']",
	journey.FieldLastName:  "input[name='last_name'], input[placeholder*='Last']",
	journey.FieldEmail:     "input[name='email'], input[type='email'], input[placeholder*='mail']",
}

// Driver is a journey.UIDriver backed by chromedp. One driver owns one
// browser process for one run.
type Driver struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	log         *slog.Logger
}

// New starts the browser. The parent context bounds the whole session;
// cancelling it kills the browser process.
func New(parent context.Context, cfg config.Browser, log *slog.Logger) (*Driver, error) {
	if log == nil {
		log = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so a broken Chrome install fails here,
	// not on the first journey step.
	if err := chromedp.Run(ctx); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	log.Info("browser started", "headless", cfg.Headless,
		"viewport", fmt.Sprintf("%dx%d", cfg.ViewportWidth, cfg.ViewportHeight))
	return &Driver{ctx: ctx, cancelCtx: cancelCtx, cancelAlloc: cancelAlloc, log: log}, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.log.Debug("navigating", "url", url)
	return d.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// InvokeAction clicks the target. All click dispatch happens inside the
// page so text-matched buttons work without stable selectors.
func (d *Driver) InvokeAction(ctx context.Context, target journey.Target) error {
	spec, ok := targetSpecs[target]
	if !ok {
		return fmt.Errorf("unknown target %q", target)
	}

	var clicked bool
	expr := fmt.Sprintf(clickTargetJS, jsArray(spec.selectors), jsArray(spec.texts))
	if err := d.run(ctx, chromedp.Evaluate(expr, &clicked)); err != nil {
		return fmt.Errorf("click %s: %w", target, err)
	}
	if !clicked {
		return fmt.Errorf("no clickable element found for %s", target)
	}
	return nil
}

// FillField sets a form input. React controlled inputs ignore plain
// value assignment, so the page script uses the native value setter and
// dispatches an InputEvent.
func (d *Driver) FillField(ctx context.Context, field journey.Field, value string) error {
	if field == journey.FieldOTP {
		return d.fillOTP(ctx, value)
	}
	selector, ok := fieldSelectors[field]
	if !ok {
		return fmt.Errorf("unknown field %q", field)
	}

	var filled bool
	expr := fmt.Sprintf(fillInputJS, jsString(selector), jsString(value))
	if err := d.run(ctx, chromedp.Evaluate(expr, &filled)); err != nil {
		return fmt.Errorf("fill %s: %w", field, err)
	}
	if !filled {
		return fmt.Errorf("input for %s not found", field)
	}
	return nil
}

// fillOTP distributes the code over per-digit inputs when present, and
// falls back to a single input.
func (d *Driver) fillOTP(ctx context.Context, code string) error {
	var filled bool
	expr := fmt.Sprintf(fillOTPJS, jsString(code))
	if err := d.run(ctx, chromedp.Evaluate(expr, &filled)); err != nil {
		return fmt.Errorf("fill otp: %w", err)
	}
	if !filled {
		return errors.New("no OTP inputs found")
	}
	return nil
}

// SelectOption handles both native selects and the custom dropdown
// components keyed by data-dropdown. Custom dropdowns need a click to
// open and a second pass to pick the option.
func (d *Driver) SelectOption(ctx context.Context, field journey.Field, value string) error {
	kind := string(field)

	var mode string
	if err := d.run(ctx, chromedp.Evaluate(fmt.Sprintf(openDropdownJS, jsString(kind), jsString(value)), &mode)); err != nil {
		return fmt.Errorf("select %s: %w", field, err)
	}
	switch mode {
	case "native":
		return nil
	case "opened":
	default:
		return fmt.Errorf("dropdown for %s not found", field)
	}

	var picked bool
	err := d.run(ctx,
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Evaluate(fmt.Sprintf(pickOptionJS, jsString(value)), &picked),
	)
	if err != nil {
		return fmt.Errorf("pick option for %s: %w", field, err)
	}
	if !picked {
		return fmt.Errorf("option %q not found in %s dropdown", value, field)
	}
	return nil
}

// WaitForElement polls for the target until it appears or the timeout
// elapses.
func (d *Driver) WaitForElement(ctx context.Context, target journey.Target, timeout time.Duration) error {
	spec, ok := targetSpecs[target]
	if !ok {
		return fmt.Errorf("unknown target %q", target)
	}

	var found bool
	expr := fmt.Sprintf(findTargetJS, jsArray(spec.selectors), jsArray(spec.texts))
	err := d.run(ctx, chromedp.Poll(expr, &found,
		chromedp.WithPollingInterval(pollEvery),
		chromedp.WithPollingTimeout(timeout),
	))
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		return fmt.Errorf("%s did not appear within %s", target, timeout)
	}
	return err
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// EvaluatePageState captures the rendered dashboard into a typed
// snapshot. The field names mirror the JS object keys.
func (d *Driver) EvaluatePageState(ctx context.Context) (domain.PageSnapshot, error) {
	var snapshot domain.PageSnapshot
	if err := d.run(ctx, chromedp.Evaluate(pageStateJS, &snapshot)); err != nil {
		return domain.PageSnapshot{}, fmt.Errorf("evaluate page state: %w", err)
	}
	return snapshot, nil
}

func (d *Driver) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	capture := chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			Do(ctx)
		return err
	})
	if err := d.run(ctx, capture); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

func (d *Driver) Close(ctx context.Context) error {
	err := chromedp.Cancel(d.ctx)
	d.cancelCtx()
	d.cancelAlloc()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// run executes actions on the browser tab while honoring the caller's
// context: cancelling ctx aborts the action without killing the tab.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(d.ctx, actions...)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func jsArray(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

const findTargetJS = `(() => {
	const selectors = %s;
	for (const sel of selectors) {
		try { if (document.querySelector(sel)) return true; } catch (e) {}
	}
	const patterns = %s;
	if (patterns.length > 0) {
		const els = document.querySelectorAll("button, input[type='submit'], a");
		for (const el of els) {
			const text = (el.textContent || el.value || '').trim().toLowerCase();
			for (const p of patterns) {
				if (text.includes(p)) return true;
			}
		}
	}
	return false;
})()`

const clickTargetJS = `(() => {
	const selectors = %s;
	for (const sel of selectors) {
		let el = null;
		try { el = document.querySelector(sel); } catch (e) {}
		if (el && el.offsetParent !== null && !el.disabled) {
			el.click();
			return true;
		}
	}
	const patterns = %s;
	if (patterns.length > 0) {
		const els = document.querySelectorAll("button, input[type='submit'], a");
		for (const el of els) {
			if (el.offsetParent === null || el.disabled) continue;
			const text = (el.textContent || el.value || '').trim().toLowerCase();
			for (const p of patterns) {
				if (text.includes(p)) {
					el.click();
					return true;
				}
			}
		}
	}
	return false;
})()`

const fillInputJS = `(() => {
	const selector = %s;
	const value = %s;
	let input = null;
	for (const part of selector.split(',')) {
		try { input = document.querySelector(part.trim()); } catch (e) {}
		if (input) break;
	}
	if (!input) return false;
	input.focus();
	const setter = Object.getOwnPropertyDescriptor(
		window.HTMLInputElement.prototype, 'value'
	).set;
	setter.call(input, value);
	input.dispatchEvent(new InputEvent('input', {
		bubbles: true,
		cancelable: true,
		inputType: 'insertText',
		data: value,
	}));
	input.dispatchEvent(new Event('change', { bubbles: true }));
	input.blur();
	return true;
})()`

const fillOTPJS = `(() => {
	const code = %s;
	const setter = Object.getOwnPropertyDescriptor(
		window.HTMLInputElement.prototype, 'value'
	).set;
	const fill = (input, value) => {
		input.focus();
		setter.call(input, value);
		input.dispatchEvent(new InputEvent('input', {
			bubbles: true, cancelable: true, inputType: 'insertText', data: value,
		}));
	};
	const digits = document.querySelectorAll(
		"input[maxlength='1'][inputmode='numeric'], input[aria-label*='Digit'], input[maxlength='1'][type='text']"
	);
	if (digits.length >= code.length) {
		for (let i = 0; i < code.length; i++) fill(digits[i], code[i]);
		return true;
	}
	const single = document.querySelector("input[name='totp'], input[maxlength='6']");
	if (single) {
		fill(single, code);
		return true;
	}
	return false;
})()`

const openDropdownJS = `(() => {
	const kind = %s;
	const value = %s;
	const native = document.querySelector("select[name='" + kind + "']");
	if (native) {
		native.value = value;
		native.dispatchEvent(new Event('change', { bubbles: true }));
		return native.value === value ? 'native' : 'missing';
	}
	const trigger = document.querySelector("[data-dropdown='" + kind + "']");
	if (!trigger) return 'missing';
	trigger.click();
	return 'opened';
})()`

const pickOptionJS = `(() => {
	const value = %s.toLowerCase();
	const options = document.querySelectorAll("[role='option'], li, button");
	for (const opt of options) {
		if (opt.offsetParent === null) continue;
		const text = (opt.textContent || '').trim().toLowerCase();
		if (text === value || text.includes(value)) {
			opt.click();
			return true;
		}
	}
	return false;
})()`

const pageStateJS = `(() => {
	const data = {
		dashboard_loaded: false,
		charts_visible: false,
		chart_count: 0,
		card_count: 0,
		current_url: window.location.href,
		page_title: document.title,
		brand_name: '',
		sections: [],
	};
	const main = document.querySelector('main') || document.body;
	if (main) data.dashboard_loaded = true;

	const charts = document.querySelectorAll("[class*='chart'], canvas, svg");
	data.charts_visible = charts.length > 0;
	data.chart_count = charts.length;

	data.card_count = document.querySelectorAll("[class*='card']").length;

	const sidebar = document.querySelector("aside, nav, [class*='sidebar']");
	if (sidebar) {
		data.sections = Array.from(sidebar.querySelectorAll('a'))
			.map(a => a.textContent.trim())
			.filter(t => t.length > 0 && t.length < 30)
			.slice(0, 10);
	}

	const brand = document.querySelector("h1, [class*='brand'], [class*='title']");
	if (brand) data.brand_name = brand.textContent.trim().slice(0, 50);

	return data;
})()`
