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

// Stage names for fallback accounting.
const (
	StageRequirements = "requirements"
	StageSuggestions  = "suggestions"
	StageTickets      = "tickets"
)

const fallbackTitleLimit = 60

// requirementPayload is the wire shape of a requirement analysis response.
type requirementPayload struct {
	Requirements   []session.ProcessedRequirement `json:"requirements"`
	Clarifications []string                       `json:"clarifications"`
}

// RequirementProcessor turns free-text input into structured requirements.
// It never fails: when generation or parsing breaks down it substitutes a
// deterministic single-requirement analysis derived from the raw input.
type RequirementProcessor struct {
	client   llm.Client
	recorder metrics.Recorder
	counter  *tokens.Counter
	logger   *logx.Logger
}

// NewRequirementProcessor creates the requirement analysis stage.
func NewRequirementProcessor(client llm.Client, recorder metrics.Recorder, counter *tokens.Counter) *RequirementProcessor {
	return &RequirementProcessor{
		client:   client,
		recorder: recorder,
		counter:  counter,
		logger:   logx.NewLogger("pipeline"),
	}
}

// ProcessAnalysis analyzes originalInput (plus optional correction notes from
// a rejected earlier round) into a requirement state. The returned state is
// always usable; Confirmed is left false for the user to decide.
func (p *RequirementProcessor) ProcessAnalysis(ctx context.Context, originalInput string, corrections []string) session.RequirementState {
	state := session.RequirementState{OriginalInput: originalInput}

	payload, err := p.generate(ctx, originalInput, corrections)
	if err != nil {
		p.logger.Warn("requirement analysis failed, using fallback: %v", err)
		p.recorder.IncFallback(StageRequirements)
		return fallbackRequirements(originalInput)
	}

	state.Requirements = normalizeRequirements(payload.Requirements)
	state.Clarifications = payload.Clarifications
	if len(state.Requirements) == 0 {
		p.logger.Warn("requirement analysis returned no usable entries, using fallback")
		p.recorder.IncFallback(StageRequirements)
		return fallbackRequirements(originalInput)
	}
	return state
}

func (p *RequirementProcessor) generate(ctx context.Context, originalInput string, corrections []string) (*requirementPayload, error) {
	prompts := buildRequirementPrompt(p.counter, originalInput, corrections)
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(prompts[0]),
		llm.NewUserMessage(prompts[1]),
	})
	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var payload requirementPayload
	if err := DecodeObject(resp.Content, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// normalizeRequirements fills ids and defaults, and drops entries without a
// title. Model output is advisory; the normalized form is canonical.
func normalizeRequirements(raw []session.ProcessedRequirement) []session.ProcessedRequirement {
	out := make([]session.ProcessedRequirement, 0, len(raw))
	for i := range raw {
		req := raw[i]
		if strings.TrimSpace(req.Title) == "" {
			continue
		}
		if req.ID == "" {
			req.ID = session.NewID()
		}
		if !validPriority(req.Priority) {
			req.Priority = session.PriorityMedium
		}
		if !validCategory(req.Category) {
			req.Category = session.CategoryTask
		}
		if req.Effort.Complexity == "" {
			req.Effort.Complexity = "medium"
		}
		if req.Effort.Confidence == "" {
			req.Effort.Confidence = "medium"
		}
		out = append(out, req)
	}
	return out
}

// fallbackRequirements builds the deterministic single-requirement analysis
// used when generation is unavailable.
func fallbackRequirements(originalInput string) session.RequirementState {
	title := fallbackTitle(originalInput)
	return session.RequirementState{
		OriginalInput: originalInput,
		Requirements: []session.ProcessedRequirement{{
			ID:          session.NewID(),
			Category:    session.CategoryUserStory,
			Title:       title,
			Description: strings.TrimSpace(originalInput),
			Priority:    session.PriorityMedium,
			Effort:      session.EffortEstimate{Complexity: "medium", Confidence: "low"},
			AcceptanceCriteria: []string{
				"Feature behaves as described in the original request",
				"Edge cases and failure modes are handled",
				"Changes are covered by tests",
			},
		}},
		Clarifications: []string{
			"Automated analysis was unavailable; please review and refine this requirement manually.",
		},
	}
}

// fallbackTitle derives a short title from the first line of the input.
func fallbackTitle(input string) string {
	line := strings.TrimSpace(input)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if line == "" {
		return "Untitled requirement"
	}
	if len(line) > fallbackTitleLimit {
		line = strings.TrimSpace(line[:fallbackTitleLimit-3]) + "..."
	}
	return line
}

func validPriority(p session.Priority) bool {
	switch p {
	case session.PriorityLow, session.PriorityMedium, session.PriorityHigh, session.PriorityCritical:
		return true
	}
	return false
}

func validCategory(c session.RequirementCategory) bool {
	switch c {
	case session.CategoryEpic, session.CategoryUserStory, session.CategoryTask,
		session.CategoryBug, session.CategoryTechnical, session.CategoryNonFunctional:
		return true
	}
	return false
}

func validSuggestionCategory(c session.SuggestionCategory) bool {
	for _, known := range session.SuggestionCategories {
		if c == known {
			return true
		}
	}
	return false
}
