package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"planner/pkg/session"
	"planner/pkg/tokens"
)

const (
	// promptBudgetTokens bounds the context portion of any stage prompt so a
	// long requirement set cannot push the request over provider limits.
	promptBudgetTokens = 3000

	// suggestionMin and suggestionMax bound how many suggestions one
	// generation round asks for.
	suggestionMin = 3
	suggestionMax = 5
)

const requirementSystemPrompt = `You are a senior technical project planner.
Analyze the user's free-text project description and extract structured requirements.
Respond with a single JSON object and nothing else:
{
  "requirements": [
    {
      "category": "epic|user_story|task|bug|technical|non_functional",
      "title": "short imperative title",
      "description": "what and why",
      "priority": "low|medium|high|critical",
      "effort": {"complexity": "low|medium|high", "confidence": "low|medium|high"},
      "acceptance_criteria": ["..."],
      "dependencies": [],
      "risks": []
    }
  ],
  "clarifications": ["questions that would sharpen the analysis"]
}`

const suggestionSystemPrompt = `You are a senior technical project planner reviewing structured requirements.
Propose professional improvement suggestions the requirements do not already cover.
Respond with a single JSON object and nothing else:
{
  "suggestions": [
    {
      "category": "architecture|security|performance|ux|testing|devops|documentation|accessibility|scalability|maintainability",
      "title": "short title",
      "description": "what to add or change",
      "rationale": "why it matters here",
      "priority": "low|medium|high|critical",
      "impact": {"effort": "low|medium|high", "benefits": ["..."], "risks": []},
      "plan": {"steps": ["..."]},
      "applicable_requirements": ["requirement ids"]
    }
  ]
}`

const ticketSystemPrompt = `You are a senior technical project planner converting requirements into issue-tracker tickets.
Produce a coherent ticket structure: epics contain stories and tasks via parent_id.
Respond with a single JSON object and nothing else:
{
  "epics":   [{"summary": "...", "description": "...", "priority": "low|medium|high|critical", "labels": [], "components": []}],
  "stories": [{"summary": "...", "description": "...", "priority": "...", "parent_id": "", "acceptance_criteria": ["..."], "effort": {"complexity": "...", "confidence": "...", "story_points": 3}}],
  "tasks":   [{"summary": "...", "description": "...", "priority": "...", "parent_id": ""}],
  "bugs":    [{"summary": "...", "description": "...", "priority": "..."}]
}`

// requirementsContext renders the requirement set as compact JSON for use
// inside a prompt, truncated to the stage budget.
func requirementsContext(counter *tokens.Counter, state *session.RequirementState) string {
	data, err := json.Marshal(state.Requirements)
	if err != nil {
		return state.OriginalInput
	}
	return counter.Truncate(string(data), promptBudgetTokens)
}

func buildRequirementPrompt(counter *tokens.Counter, originalInput string, corrections []string) []string {
	var user strings.Builder
	user.WriteString("Project description:\n")
	user.WriteString(counter.Truncate(originalInput, promptBudgetTokens))
	if len(corrections) > 0 {
		user.WriteString("\n\nThe user reviewed an earlier analysis and asked for these corrections:\n")
		for _, c := range corrections {
			user.WriteString("- ")
			user.WriteString(c)
			user.WriteString("\n")
		}
	}
	return []string{requirementSystemPrompt, user.String()}
}

func buildSuggestionPrompt(counter *tokens.Counter, state *session.RequirementState, existingTitles []string, category session.SuggestionCategory) []string {
	var user strings.Builder
	fmt.Fprintf(&user, "Generate %d to %d suggestions for these requirements:\n", suggestionMin, suggestionMax)
	user.WriteString(requirementsContext(counter, state))
	if category != "" {
		fmt.Fprintf(&user, "\n\nOnly propose suggestions in the %q category.", category)
	}
	if len(existingTitles) > 0 {
		user.WriteString("\n\nDo not repeat these already-proposed suggestions:\n")
		for _, title := range existingTitles {
			user.WriteString("- ")
			user.WriteString(title)
			user.WriteString("\n")
		}
	}
	return []string{suggestionSystemPrompt, user.String()}
}

func buildTicketPrompt(counter *tokens.Counter, state *session.RequirementState, applied []session.ProfessionalSuggestion) []string {
	var user strings.Builder
	user.WriteString("Requirements:\n")
	user.WriteString(requirementsContext(counter, state))
	if len(applied) > 0 {
		user.WriteString("\n\nAccepted improvement suggestions to incorporate:\n")
		for i := range applied {
			fmt.Fprintf(&user, "- [%s] %s: %s\n", applied[i].Category, applied[i].Title, counter.Truncate(applied[i].Description, 200))
		}
	}
	return []string{ticketSystemPrompt, user.String()}
}
