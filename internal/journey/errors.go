package journey

import (
	"fmt"

	"github.com/maxeo-ai/journey-canary/internal/domain"
)

// StepError is the classified failure of one journey step. It always
// aborts the remaining steps and becomes a Failed outcome; any other
// error escaping a step becomes Unexpected instead.
type StepError struct {
	Step    domain.StepID
	Message string
	Details map[string]any
}

func (e *StepError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Step, e.Message)
}

func failf(step domain.StepID, format string, args ...any) *StepError {
	return &StepError{Step: step, Message: fmt.Sprintf(format, args...)}
}

func failWith(step domain.StepID, details map[string]any, format string, args ...any) *StepError {
	return &StepError{Step: step, Message: fmt.Sprintf(format, args...), Details: details}
}
