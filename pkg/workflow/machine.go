// Package workflow drives a planning session through its fixed step order,
// invoking the generation pipeline for each step and folding results into
// session state. Progression is linear; the only way back is an explicit
// restart.
package workflow

import "planner/pkg/session"

// NextStep returns the step after the given one in the fixed order. The
// second result is false when the step is terminal or unknown.
func NextStep(step session.Step) (session.Step, bool) {
	for i, s := range session.StepOrder {
		if s != step {
			continue
		}
		if i+1 >= len(session.StepOrder) {
			return "", false
		}
		return session.StepOrder[i+1], true
	}
	return "", false
}

// RequiresConfirmation reports whether a step blocks on explicit user
// confirmation before the workflow may advance past it. Review steps advance
// on any user command; confirmation steps demand a definite yes.
func RequiresConfirmation(step session.Step) bool {
	return step == session.StepRequirementConfirmation || step == session.StepStructurePlanning
}
