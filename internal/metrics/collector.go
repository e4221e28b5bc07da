// Package metrics accumulates per-step durations and classified errors
// for a single canary run. All writes come from the one orchestrator
// goroutine; the collector is not safe for concurrent writers.
package metrics

import (
	"fmt"
	"time"

	"github.com/maxeo-ai/journey-canary/internal/domain"
)

type Collector struct {
	runID     string
	startedAt time.Time
	endedAt   time.Time
	steps     []domain.StepRecord
	recorded  map[domain.StepID]bool
	timings   map[string]time.Duration
	errors    []domain.ErrorRecord
}

func NewCollector(runID string) *Collector {
	return &Collector{
		runID:    runID,
		recorded: make(map[domain.StepID]bool),
		timings:  make(map[string]time.Duration),
	}
}

func (c *Collector) Start(t time.Time) {
	c.startedAt = t.UTC()
}

func (c *Collector) Finish(t time.Time) {
	c.endedAt = t.UTC()
}

func (c *Collector) StartedAt() time.Time { return c.startedAt }
func (c *Collector) EndedAt() time.Time   { return c.endedAt }

// RecordStep appends one step's timing. Each step may be recorded at most
// once per run; duplicates are rejected so the step log stays an exact
// trace of the execution order.
func (c *Collector) RecordStep(step domain.StepID, duration time.Duration, errMsg string) error {
	if !step.Valid() {
		return fmt.Errorf("unknown step %q", step)
	}
	if c.recorded[step] {
		return fmt.Errorf("step %q already recorded", step)
	}
	c.recorded[step] = true
	c.steps = append(c.steps, domain.StepRecord{Step: step, Duration: duration, Error: errMsg})
	return nil
}

// RecordTiming stores a derived timing such as the loading metrics. Later
// writes under the same key overwrite earlier ones.
func (c *Collector) RecordTiming(name string, duration time.Duration) {
	c.timings[name] = duration
}

// RecordError appends a classified error entry.
func (c *Collector) RecordError(step domain.StepID, message string, details map[string]any) {
	c.errors = append(c.errors, domain.ErrorRecord{
		Step:    step,
		Message: message,
		Details: details,
		At:      time.Now().UTC(),
	})
}

func (c *Collector) TotalDuration() time.Duration {
	if c.startedAt.IsZero() || c.endedAt.IsZero() {
		return 0
	}
	return c.endedAt.Sub(c.startedAt)
}

// Steps returns a copy of the recorded step log in execution order.
func (c *Collector) Steps() []domain.StepRecord {
	out := make([]domain.StepRecord, len(c.steps))
	copy(out, c.steps)
	return out
}

// Timings returns a copy of the derived timings.
func (c *Collector) Timings() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.timings))
	for k, v := range c.timings {
		out[k] = v
	}
	return out
}

// Errors returns a copy of the recorded error entries.
func (c *Collector) Errors() []domain.ErrorRecord {
	out := make([]domain.ErrorRecord, len(c.errors))
	copy(out, c.errors)
	return out
}
