package pipeline

import (
	"context"
	"strings"

	"planner/pkg/llm"
	"planner/pkg/logx"
	"planner/pkg/middleware/metrics"
	"planner/pkg/session"
	"planner/pkg/tokens"
)

// suggestionPayload is the wire shape of a suggestion generation response.
type suggestionPayload struct {
	Suggestions []session.ProfessionalSuggestion `json:"suggestions"`
}

// SuggestionGenerator produces improvement suggestions from a confirmed
// requirement set. The initial round never fails; on-demand extra rounds
// return an empty slice on failure rather than fallback content, since the
// user already has suggestions to work with.
type SuggestionGenerator struct {
	client   llm.Client
	recorder metrics.Recorder
	counter  *tokens.Counter
	logger   *logx.Logger
}

// NewSuggestionGenerator creates the suggestion stage.
func NewSuggestionGenerator(client llm.Client, recorder metrics.Recorder, counter *tokens.Counter) *SuggestionGenerator {
	return &SuggestionGenerator{
		client:   client,
		recorder: recorder,
		counter:  counter,
		logger:   logx.NewLogger("pipeline"),
	}
}

// GenerateSuggestions produces the initial suggestion round for the
// requirement set, substituting three deterministic baseline suggestions when
// generation fails.
func (g *SuggestionGenerator) GenerateSuggestions(ctx context.Context, state *session.RequirementState) []session.ProfessionalSuggestion {
	suggestions, err := g.generate(ctx, state, nil, "")
	if err != nil {
		g.logger.Warn("suggestion generation failed, using fallback: %v", err)
		g.recorder.IncFallback(StageSuggestions)
		return fallbackSuggestions(state)
	}
	if len(suggestions) == 0 {
		g.logger.Warn("suggestion generation returned no usable entries, using fallback")
		g.recorder.IncFallback(StageSuggestions)
		return fallbackSuggestions(state)
	}
	return suggestions
}

// GenerateMore produces an additional suggestion round, skipping titles the
// session already holds (case-insensitive) and optionally restricting to one
// category. Failure yields an empty slice, never an error.
func (g *SuggestionGenerator) GenerateMore(ctx context.Context, state *session.RequirementState, existing []session.ProfessionalSuggestion, category session.SuggestionCategory) []session.ProfessionalSuggestion {
	titles := make([]string, 0, len(existing))
	seen := make(map[string]bool, len(existing))
	for i := range existing {
		titles = append(titles, existing[i].Title)
		seen[strings.ToLower(strings.TrimSpace(existing[i].Title))] = true
	}

	suggestions, err := g.generate(ctx, state, titles, category)
	if err != nil {
		g.logger.Warn("additional suggestion generation failed: %v", err)
		g.recorder.IncFallback(StageSuggestions)
		return []session.ProfessionalSuggestion{}
	}

	fresh := make([]session.ProfessionalSuggestion, 0, len(suggestions))
	for i := range suggestions {
		key := strings.ToLower(strings.TrimSpace(suggestions[i].Title))
		if seen[key] {
			continue
		}
		if category != "" && suggestions[i].Category != category {
			continue
		}
		seen[key] = true
		fresh = append(fresh, suggestions[i])
	}
	return fresh
}

func (g *SuggestionGenerator) generate(ctx context.Context, state *session.RequirementState, existingTitles []string, category session.SuggestionCategory) ([]session.ProfessionalSuggestion, error) {
	prompts := buildSuggestionPrompt(g.counter, state, existingTitles, category)
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(prompts[0]),
		llm.NewUserMessage(prompts[1]),
	})
	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var payload suggestionPayload
	if err := DecodeObject(resp.Content, &payload); err != nil {
		return nil, err
	}
	return normalizeSuggestions(payload.Suggestions), nil
}

func normalizeSuggestions(raw []session.ProfessionalSuggestion) []session.ProfessionalSuggestion {
	out := make([]session.ProfessionalSuggestion, 0, len(raw))
	for i := range raw {
		sug := raw[i]
		if strings.TrimSpace(sug.Title) == "" {
			continue
		}
		if sug.ID == "" {
			sug.ID = session.NewID()
		}
		if !validPriority(sug.Priority) {
			sug.Priority = session.PriorityMedium
		}
		if !validSuggestionCategory(sug.Category) {
			sug.Category = session.SuggestionMaintainability
		}
		if sug.Impact.Effort == "" {
			sug.Impact.Effort = "medium"
		}
		out = append(out, sug)
	}
	return out
}

// fallbackSuggestions returns the deterministic baseline round: testing,
// security, and documentation improvements applicable to every requirement.
func fallbackSuggestions(state *session.RequirementState) []session.ProfessionalSuggestion {
	applicable := make([]string, 0, len(state.Requirements))
	for i := range state.Requirements {
		applicable = append(applicable, state.Requirements[i].ID)
	}

	return []session.ProfessionalSuggestion{
		{
			ID:          session.NewID(),
			Category:    session.SuggestionTesting,
			Title:       "Add automated test coverage",
			Description: "Cover the new functionality with unit and integration tests, including failure paths.",
			Rationale:   "Untested planning outcomes regress silently once implementation starts.",
			Priority:    session.PriorityHigh,
			Impact:      session.ImpactAssessment{Effort: "medium", Benefits: []string{"Catches regressions early", "Documents expected behavior"}},
			Plan:        session.ImplementationPlan{Steps: []string{"Identify critical paths", "Write unit tests per requirement", "Add integration tests for end-to-end flows"}},
			ApplicableRequirements: applicable,
		},
		{
			ID:          session.NewID(),
			Category:    session.SuggestionSecurity,
			Title:       "Review security implications",
			Description: "Assess authentication, authorization, input validation, and data handling for each requirement.",
			Rationale:   "Security gaps are cheapest to close during planning.",
			Priority:    session.PriorityHigh,
			Impact:      session.ImpactAssessment{Effort: "medium", Benefits: []string{"Reduces exposure before code exists"}},
			Plan:        session.ImplementationPlan{Steps: []string{"Threat-model the affected flows", "Define validation rules", "Plan an access-control review"}},
			ApplicableRequirements: applicable,
		},
		{
			ID:          session.NewID(),
			Category:    session.SuggestionDocumentation,
			Title:       "Document decisions and interfaces",
			Description: "Record the chosen approach, public interfaces, and operational notes alongside the implementation.",
			Rationale:   "Future maintainers need the reasoning, not just the result.",
			Priority:    session.PriorityMedium,
			Impact:      session.ImpactAssessment{Effort: "low", Benefits: []string{"Faster onboarding", "Fewer repeated discussions"}},
			Plan:        session.ImplementationPlan{Steps: []string{"Write a short design note", "Document public interfaces", "Capture operational runbook entries"}},
			ApplicableRequirements: applicable,
		},
	}
}
