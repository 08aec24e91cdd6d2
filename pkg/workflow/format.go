package workflow

import (
	"fmt"
	"strings"

	"planner/pkg/session"
)

// formatRequirements renders the analyzed requirements for the confirmation
// prompt.
func formatRequirements(state *session.RequirementState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I identified %d requirement(s):\n\n", len(state.Requirements))
	for i := range state.Requirements {
		req := &state.Requirements[i]
		fmt.Fprintf(&b, "%d. [%s/%s] %s\n", i+1, req.Category, req.Priority, req.Title)
		if req.Description != "" {
			fmt.Fprintf(&b, "   %s\n", req.Description)
		}
	}
	if len(state.Clarifications) > 0 {
		b.WriteString("\nOpen questions:\n")
		for _, q := range state.Clarifications {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	b.WriteString("\nConfirm to continue, or describe what to change.")
	return b.String()
}

// formatSuggestions renders the generated suggestions for review.
func formatSuggestions(state *session.SuggestionState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here are %d improvement suggestions:\n\n", len(state.Suggestions))
	for i := range state.Suggestions {
		sug := &state.Suggestions[i]
		fmt.Fprintf(&b, "%d. [%s/%s] %s\n", i+1, sug.Category, sug.Priority, sug.Title)
		if sug.Rationale != "" {
			fmt.Fprintf(&b, "   %s\n", sug.Rationale)
		}
	}
	b.WriteString("\nApply or reject individual suggestions, ask for more, or confirm to continue.")
	return b.String()
}

// formatStructurePlan renders the proposed ticket structure before
// generation: how many tickets of each type the requirement categories map
// to, plus accepted suggestions.
func formatStructurePlan(s *session.Session) string {
	counts := map[session.RequirementCategory]int{}
	for i := range s.Requirements.Requirements {
		counts[s.Requirements.Requirements[i].Category]++
	}

	var b strings.Builder
	b.WriteString("Proposed structure:\n")
	for _, category := range []session.RequirementCategory{
		session.CategoryEpic, session.CategoryUserStory, session.CategoryTask,
		session.CategoryBug, session.CategoryTechnical, session.CategoryNonFunctional,
	} {
		if counts[category] > 0 {
			fmt.Fprintf(&b, "- %d %s requirement(s)\n", counts[category], category)
		}
	}
	if n := len(s.Suggestions.AcceptedIDs); n > 0 {
		fmt.Fprintf(&b, "- %d accepted suggestion(s) woven into the tickets\n", n)
	}
	b.WriteString("\nConfirm to generate tickets with this structure.")
	return b.String()
}

// formatFinalReview renders the generated tickets for the closing
// confirmation.
func formatFinalReview(s *session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Final review: %d ticket(s) ready.\n\n", s.Tickets.Count())
	for _, ticket := range s.Tickets.All() {
		fmt.Fprintf(&b, "- [%s/%s] %s\n", ticket.Type, ticket.Priority, ticket.Summary)
	}
	b.WriteString("\nConfirm to finish, or export the tickets first.")
	return b.String()
}
