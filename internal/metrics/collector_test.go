package metrics

import (
	"testing"
	"time"

	"github.com/maxeo-ai/journey-canary/internal/domain"
)

func TestRecordStepOrderPreserved(t *testing.T) {
	c := NewCollector("run-1")
	if err := c.RecordStep(domain.StepNavigateLanding, 2*time.Second, ""); err != nil {
		t.Fatalf("RecordStep() err=%v", err)
	}
	if err := c.RecordStep(domain.StepClickGetReport, time.Second, ""); err != nil {
		t.Fatalf("RecordStep() err=%v", err)
	}
	if err := c.RecordStep(domain.StepSubmitSignupForm, 40*time.Second, "otp screen missing"); err != nil {
		t.Fatalf("RecordStep() err=%v", err)
	}

	steps := c.Steps()
	if len(steps) != 3 {
		t.Fatalf("Steps() len=%d, want 3", len(steps))
	}
	want := []domain.StepID{domain.StepNavigateLanding, domain.StepClickGetReport, domain.StepSubmitSignupForm}
	for i, s := range steps {
		if s.Step != want[i] {
			t.Fatalf("steps[%d]=%q, want %q", i, s.Step, want[i])
		}
	}
	if steps[2].Error != "otp screen missing" {
		t.Fatalf("steps[2].Error=%q", steps[2].Error)
	}
}

func TestRecordStepRejectsDuplicate(t *testing.T) {
	c := NewCollector("run-1")
	if err := c.RecordStep(domain.StepNavigateLanding, time.Second, ""); err != nil {
		t.Fatalf("RecordStep() err=%v", err)
	}
	if err := c.RecordStep(domain.StepNavigateLanding, time.Second, ""); err == nil {
		t.Fatalf("RecordStep() accepted duplicate step")
	}
}

func TestRecordStepRejectsUnknown(t *testing.T) {
	c := NewCollector("run-1")
	if err := c.RecordStep(domain.StepID("step_99"), time.Second, ""); err == nil {
		t.Fatalf("RecordStep() accepted unknown step")
	}
}

func TestTotalDuration(t *testing.T) {
	c := NewCollector("run-1")
	if c.TotalDuration() != 0 {
		t.Fatalf("TotalDuration() before start = %v, want 0", c.TotalDuration())
	}
	start := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	c.Start(start)
	c.Finish(start.Add(7 * time.Minute))
	if got := c.TotalDuration(); got != 7*time.Minute {
		t.Fatalf("TotalDuration()=%v, want 7m", got)
	}
}

func TestTimingsAndErrorsCopied(t *testing.T) {
	c := NewCollector("run-1")
	c.RecordTiming(domain.TimingFormToPrompts, 80*time.Second)
	c.RecordError(domain.StepWaitSnapshot, "snapshot FAILED", map[string]any{"snapshot_id": int64(9)})

	timings := c.Timings()
	timings["mutated"] = time.Second
	if _, ok := c.Timings()["mutated"]; ok {
		t.Fatalf("Timings() returned shared map")
	}
	if c.Timings()[domain.TimingFormToPrompts] != 80*time.Second {
		t.Fatalf("timing lost")
	}

	errs := c.Errors()
	if len(errs) != 1 || errs[0].Step != domain.StepWaitSnapshot {
		t.Fatalf("Errors()=%+v", errs)
	}
	if errs[0].At.IsZero() {
		t.Fatalf("error record missing timestamp")
	}
}
