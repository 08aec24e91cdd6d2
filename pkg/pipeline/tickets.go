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

// ticketPayload is the wire shape of a ticket generation response.
type ticketPayload struct {
	Epics   []session.Ticket `json:"epics"`
	Stories []session.Ticket `json:"stories"`
	Tasks   []session.Ticket `json:"tasks"`
	Bugs    []session.Ticket `json:"bugs"`
}

// TicketGenerator converts confirmed requirements and accepted suggestions
// into an issue-tracker ticket structure. It never fails: when generation
// breaks down it maps requirements to tickets deterministically by category.
type TicketGenerator struct {
	client   llm.Client
	recorder metrics.Recorder
	counter  *tokens.Counter
	logger   *logx.Logger
}

// NewTicketGenerator creates the ticket stage.
func NewTicketGenerator(client llm.Client, recorder metrics.Recorder, counter *tokens.Counter) *TicketGenerator {
	return &TicketGenerator{
		client:   client,
		recorder: recorder,
		counter:  counter,
		logger:   logx.NewLogger("pipeline"),
	}
}

// GenerateTickets produces the ticket collection for the session. Applied
// suggestions are woven into the prompt so accepted improvements surface as
// tickets too.
func (t *TicketGenerator) GenerateTickets(ctx context.Context, state *session.RequirementState, applied []session.ProfessionalSuggestion) session.TicketCollection {
	collection, err := t.generate(ctx, state, applied)
	if err != nil {
		t.logger.Warn("ticket generation failed, using fallback: %v", err)
		t.recorder.IncFallback(StageTickets)
		collection = fallbackTickets(state)
	} else if collection.Count() == 0 {
		t.logger.Warn("ticket generation returned no usable tickets, using fallback")
		t.recorder.IncFallback(StageTickets)
		collection = fallbackTickets(state)
	}

	ensureContainerEpic(&collection, state)
	return collection
}

func (t *TicketGenerator) generate(ctx context.Context, state *session.RequirementState, applied []session.ProfessionalSuggestion) (session.TicketCollection, error) {
	prompts := buildTicketPrompt(t.counter, state, applied)
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(prompts[0]),
		llm.NewUserMessage(prompts[1]),
	})
	resp, err := t.client.Complete(ctx, req)
	if err != nil {
		return session.TicketCollection{}, err
	}

	var payload ticketPayload
	if err := DecodeObject(resp.Content, &payload); err != nil {
		return session.TicketCollection{}, err
	}

	return session.TicketCollection{
		Epics:   normalizeTickets(payload.Epics, session.TicketEpic),
		Stories: normalizeTickets(payload.Stories, session.TicketStory),
		Tasks:   normalizeTickets(payload.Tasks, session.TicketTask),
		Bugs:    normalizeTickets(payload.Bugs, session.TicketBug),
	}, nil
}

// normalizeTickets fills ids and defaults for one type group and drops
// entries without a summary. The group determines the type regardless of what
// the model claimed.
func normalizeTickets(raw []session.Ticket, ticketType session.TicketType) []session.Ticket {
	out := make([]session.Ticket, 0, len(raw))
	for i := range raw {
		ticket := raw[i]
		if strings.TrimSpace(ticket.Summary) == "" {
			continue
		}
		ticket.Type = ticketType
		ticket.Summary = session.ClampSummary(ticket.Summary)
		if ticket.ID == "" {
			ticket.ID = session.NewID()
		}
		if !validPriority(ticket.Priority) {
			ticket.Priority = session.PriorityMedium
		}
		out = append(out, ticket)
	}
	return out
}

// ticketTypeFor maps a requirement category to its tracker issue type.
func ticketTypeFor(category session.RequirementCategory) session.TicketType {
	switch category {
	case session.CategoryEpic:
		return session.TicketEpic
	case session.CategoryUserStory:
		return session.TicketStory
	case session.CategoryBug:
		return session.TicketBug
	default:
		return session.TicketTask
	}
}

// fallbackTickets maps each requirement to one ticket by category.
func fallbackTickets(state *session.RequirementState) session.TicketCollection {
	var collection session.TicketCollection
	for i := range state.Requirements {
		req := &state.Requirements[i]
		ticket := session.Ticket{
			ID:                 session.NewID(),
			Type:               ticketTypeFor(req.Category),
			Summary:            session.ClampSummary(req.Title),
			Description:        req.Description,
			Priority:           req.Priority,
			AcceptanceCriteria: req.AcceptanceCriteria,
			Effort:             req.Effort,
		}
		switch ticket.Type {
		case session.TicketEpic:
			collection.Epics = append(collection.Epics, ticket)
		case session.TicketStory:
			collection.Stories = append(collection.Stories, ticket)
		case session.TicketBug:
			collection.Bugs = append(collection.Bugs, ticket)
		default:
			collection.Tasks = append(collection.Tasks, ticket)
		}
	}
	return collection
}

// ensureContainerEpic enforces the collection invariant: when the declared
// requirements include no epic and the collection holds parentless non-epic
// tickets, a container epic is synthesized and those tickets are re-parented
// under it. Existing explicit parents are never rewritten.
func ensureContainerEpic(collection *session.TicketCollection, state *session.RequirementState) {
	for i := range state.Requirements {
		if state.Requirements[i].Category == session.CategoryEpic {
			return
		}
	}
	if len(collection.Epics) > 0 {
		return
	}

	orphans := 0
	for _, group := range [][]session.Ticket{collection.Stories, collection.Tasks, collection.Bugs} {
		for i := range group {
			if group[i].ParentID == "" {
				orphans++
			}
		}
	}
	if orphans == 0 {
		return
	}

	epic := session.Ticket{
		ID:          session.NewID(),
		Type:        session.TicketEpic,
		Summary:     session.ClampSummary(containerEpicSummary(state)),
		Description: "Container epic grouping the generated tickets for this planning session.",
		Priority:    session.PriorityMedium,
	}
	collection.Epics = append(collection.Epics, epic)

	for _, group := range [][]session.Ticket{collection.Stories, collection.Tasks, collection.Bugs} {
		for i := range group {
			if group[i].ParentID == "" {
				group[i].ParentID = epic.ID
			}
		}
	}
}

func containerEpicSummary(state *session.RequirementState) string {
	title := fallbackTitle(state.OriginalInput)
	if title == "Untitled requirement" && len(state.Requirements) > 0 {
		title = state.Requirements[0].Title
	}
	return title
}
