package pipeline

import (
	"planner/pkg/llm"
	"planner/pkg/middleware/metrics"
	"planner/pkg/tokens"
)

// Pipeline bundles the three generation stages behind one constructor so the
// workflow engine wires a single dependency. All stages share the composed
// client and token counter.
type Pipeline struct {
	Requirements *RequirementProcessor
	Suggestions  *SuggestionGenerator
	Tickets      *TicketGenerator
}

// New creates a pipeline over the given client. The recorder may be a no-op;
// the counter may be nil, in which case stages fall back to character-based
// token estimates.
func New(client llm.Client, recorder metrics.Recorder, counter *tokens.Counter) *Pipeline {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Pipeline{
		Requirements: NewRequirementProcessor(client, recorder, counter),
		Suggestions:  NewSuggestionGenerator(client, recorder, counter),
		Tickets:      NewTicketGenerator(client, recorder, counter),
	}
}
