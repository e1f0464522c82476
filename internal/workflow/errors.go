package workflow

import (
	"fmt"
	"strings"
)

// Step names one remote call of a multi-step action
type Step string

const (
	StepMessage    Step = "message"
	StepStatus     Step = "status"
	StepAttachment Step = "attachment"
	StepHours      Step = "hours"
)

// ValidationError lists the problems found before any call was made
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// DeniedError is a local permission refusal
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "not allowed: " + e.Reason
}

// StepError reports a failure part way through PostMessage. Committed holds
// the steps that succeeded and were not undone.
type StepError struct {
	Step        Step
	Committed   []Step
	Compensated bool
	Err         error
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s step failed: %v", e.Step, e.Err)
	if e.Compensated {
		b.WriteString(" (message removed)")
	}
	if len(e.Committed) > 0 {
		parts := make([]string, len(e.Committed))
		for i, s := range e.Committed {
			parts[i] = string(s)
		}
		fmt.Fprintf(&b, "; already saved: %s", strings.Join(parts, ", "))
	}
	return b.String()
}

func (e *StepError) Unwrap() error {
	return e.Err
}
