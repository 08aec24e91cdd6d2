package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"planner/pkg/export"
	"planner/pkg/llmerrors"
	"planner/pkg/logx"
	"planner/pkg/pipeline"
	"planner/pkg/recovery"
	"planner/pkg/session"
)

// Engine owns session progression. Handler execution is serialized per
// session by the hosting surface; the engine itself does not lock sessions
// beyond the store's registration lock.
type Engine struct {
	store    *session.Store
	pipeline *pipeline.Pipeline
	advisor  *recovery.Advisor
	logger   *logx.Logger
}

// NewEngine creates a workflow engine over the given store and pipeline.
func NewEngine(store *session.Store, pipe *pipeline.Pipeline, advisor *recovery.Advisor) *Engine {
	return &Engine{
		store:    store,
		pipeline: pipe,
		advisor:  advisor,
		logger:   logx.NewLogger("workflow"),
	}
}

// InitializeSession creates a session in the initial step, seeds its
// transcript with the raw input, and registers it. The input may be empty;
// the user can supply text with a later message.
func (e *Engine) InitializeSession(rawInput string) *session.Session {
	s := session.NewSession(rawInput)
	e.store.Register(s)
	e.logger.Info("session %s created in %s", s.ID, s.CurrentStep)
	return s
}

// Get returns a live session by id.
func (e *Engine) Get(id string) (*session.Session, error) {
	return e.store.Get(id)
}

// ProcessInput handles a free-text message from the user. In the initial step
// the text completes the project description and triggers requirement
// analysis. During requirement confirmation it is treated as a correction and
// triggers a full re-analysis with all corrections folded into the prompt.
// In any later step it is recorded as a note without advancing the workflow.
func (e *Engine) ProcessInput(ctx context.Context, id, text string) (*session.Session, error) {
	s, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeValidation, "message text must not be empty")
	}

	switch s.CurrentStep {
	case session.StepInitialUnderstanding:
		s.AppendEntry(session.RoleUser, text, s.CurrentStep, nil)
		if strings.TrimSpace(s.Requirements.OriginalInput) == "" {
			s.Requirements.OriginalInput = text
		} else {
			s.Requirements.OriginalInput += "\n" + text
		}
		s.Confirmations[session.StepInitialUnderstanding] = true
		s.CurrentStep = session.StepRequirementConfirmation
		e.enterRequirementConfirmation(ctx, s, nil)

	case session.StepRequirementConfirmation:
		s.AppendEntry(session.RoleUser, text, s.CurrentStep, nil)
		e.reanalyze(ctx, s, text)

	default:
		s.AppendEntry(session.RoleUser, text, s.CurrentStep, nil)
	}

	s.Touch()
	return s, nil
}

// ConfirmCurrentStep marks the current step confirmed, advances to the next
// step, and runs that step's handler. Calling it on a completed session is a
// validation error.
func (e *Engine) ConfirmCurrentStep(ctx context.Context, id string) (*session.Session, error) {
	s, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}

	next, ok := NextStep(s.CurrentStep)
	if !ok {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeValidation, "workflow is already complete; restart to plan again")
	}

	s.Confirmations[s.CurrentStep] = true
	previous := s.CurrentStep
	s.CurrentStep = next
	e.logger.Info("session %s advanced %s -> %s", s.ID, previous, next)

	switch next {
	case session.StepRequirementConfirmation:
		e.enterRequirementConfirmation(ctx, s, nil)
	case session.StepSuggestionReview:
		e.enterSuggestionReview(ctx, s)
	case session.StepStructurePlanning:
		e.enterStructurePlanning(s)
	case session.StepTicketGeneration:
		e.enterTicketGeneration(ctx, s)
	case session.StepFinalReview:
		e.enterFinalReview(s)
	case session.StepCompleted:
		s.Completed = true
		s.AppendEntry(session.RoleAssistant, "Planning complete. Export the tickets or restart to plan something else.", next, nil)
	}

	s.Touch()
	return s, nil
}

// SubmitConfirmation resolves a yes/no answer to a confirmation prompt. A
// rejection during requirement confirmation triggers re-analysis with the
// feedback folded in; rejections elsewhere record the feedback without
// advancing.
func (e *Engine) SubmitConfirmation(ctx context.Context, id string, confirmed bool, feedback string) (*session.Session, error) {
	if confirmed {
		return e.ConfirmCurrentStep(ctx, id)
	}

	s, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if feedback != "" {
		s.AppendEntry(session.RoleUser, feedback, s.CurrentStep, nil)
	}
	if s.CurrentStep == session.StepRequirementConfirmation {
		e.reanalyze(ctx, s, feedback)
	}
	s.Touch()
	return s, nil
}

// UpdateRequirement edits one field of a requirement and records the change
// in the append-only modification log.
func (e *Engine) UpdateRequirement(id, requirementID, field, newValue, reason string) error {
	s, err := e.store.Get(id)
	if err != nil {
		return err
	}

	for i := range s.Requirements.Requirements {
		req := &s.Requirements.Requirements[i]
		if req.ID != requirementID {
			continue
		}

		var old string
		switch field {
		case "title":
			old, req.Title = req.Title, newValue
		case "description":
			old, req.Description = req.Description, newValue
		case "priority":
			p := session.Priority(newValue)
			switch p {
			case session.PriorityLow, session.PriorityMedium, session.PriorityHigh, session.PriorityCritical:
				old, req.Priority = string(req.Priority), p
			default:
				return llmerrors.NewError(llmerrors.ErrorTypeValidation, fmt.Sprintf("invalid priority %q", newValue))
			}
		case "business_value":
			old, req.BusinessValue = req.BusinessValue, newValue
		default:
			return llmerrors.NewError(llmerrors.ErrorTypeValidation, fmt.Sprintf("invalid requirement field %q", field))
		}

		s.Requirements.Modifications = append(s.Requirements.Modifications, session.Modification{
			Timestamp: time.Now(),
			Type:      "update",
			Target:    requirementID + "." + field,
			OldValue:  old,
			NewValue:  newValue,
			Reason:    reason,
		})
		s.Touch()
		return nil
	}
	return llmerrors.NewError(llmerrors.ErrorTypeValidation, fmt.Sprintf("requirement %s not found", requirementID))
}

// ResolveSuggestion records an accept or reject decision for a suggestion.
// Re-deciding moves the id between the accepted and rejected lists.
func (e *Engine) ResolveSuggestion(id, suggestionID string, accepted bool) error {
	s, err := e.store.Get(id)
	if err != nil {
		return err
	}

	found := false
	for i := range s.Suggestions.Suggestions {
		if s.Suggestions.Suggestions[i].ID == suggestionID {
			found = true
			break
		}
	}
	if !found {
		return llmerrors.NewError(llmerrors.ErrorTypeValidation, fmt.Sprintf("suggestion %s not found", suggestionID))
	}

	s.Suggestions.AcceptedIDs = removeID(s.Suggestions.AcceptedIDs, suggestionID)
	s.Suggestions.RejectedIDs = removeID(s.Suggestions.RejectedIDs, suggestionID)
	if accepted {
		s.Suggestions.AcceptedIDs = append(s.Suggestions.AcceptedIDs, suggestionID)
	} else {
		s.Suggestions.RejectedIDs = append(s.Suggestions.RejectedIDs, suggestionID)
	}
	s.Suggestions.Choices = append(s.Suggestions.Choices, session.SuggestionChoice{
		SuggestionID: suggestionID,
		Accepted:     accepted,
		Timestamp:    time.Now(),
	})
	s.Touch()
	return nil
}

// GenerateMoreSuggestions requests an additional suggestion round, avoiding
// titles the session already holds. A failed round adds nothing.
func (e *Engine) GenerateMoreSuggestions(ctx context.Context, id string, category session.SuggestionCategory) (int, error) {
	s, err := e.store.Get(id)
	if err != nil {
		return 0, err
	}

	fresh := e.pipeline.Suggestions.GenerateMore(ctx, &s.Requirements, s.Suggestions.Suggestions, category)
	s.Suggestions.Suggestions = append(s.Suggestions.Suggestions, fresh...)
	if len(fresh) > 0 {
		s.AppendEntry(session.RoleAssistant, fmt.Sprintf("Added %d more suggestions.", len(fresh)), s.CurrentStep, nil)
	}
	s.Touch()
	return len(fresh), nil
}

// RegenerateTickets rebuilds the ticket collection on demand. Requirements
// must have been confirmed first; the workflow position does not change.
func (e *Engine) RegenerateTickets(ctx context.Context, id string) (*session.Session, error) {
	s, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.Requirements.Confirmed {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeValidation, "requirements must be confirmed before generating tickets")
	}
	e.enterTicketGeneration(ctx, s)
	s.Touch()
	return s, nil
}

// ExportTickets renders the session's tickets in the requested format.
func (e *Engine) ExportTickets(id string, format export.Format) (string, error) {
	s, err := e.store.Get(id)
	if err != nil {
		return "", err
	}
	if s.Tickets.Count() == 0 {
		return "", llmerrors.NewError(llmerrors.ErrorTypeExport, "no tickets to export yet")
	}
	return export.Export(&s.Tickets, format)
}

// Restart discards a session's generated state and starts a fresh session
// seeded from the same original input. The old session is dropped from the
// store.
func (e *Engine) Restart(id string) (*session.Session, error) {
	old, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	originalInput := old.Requirements.OriginalInput
	e.store.Drop(id)

	fresh := e.InitializeSession(originalInput)
	e.logger.Info("session %s restarted as %s", id, fresh.ID)
	return fresh, nil
}

// SaveSnapshot serializes a session for external persistence.
func (e *Engine) SaveSnapshot(id string) ([]byte, error) {
	s, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	return s.ExportJSON()
}

// RestoreSnapshot reconstructs a session from snapshot JSON, repairs any
// in-place corruption, and re-registers it in the store. Missing mandatory
// fields fail the restore; the caller must treat that as "could not load".
func (e *Engine) RestoreSnapshot(data []byte) (*session.Session, error) {
	s, err := session.RestoreJSON(data)
	if err != nil {
		return nil, err
	}
	s, repaired := e.advisor.ValidateAndRecoverSession(s)
	if repaired {
		e.logger.Warn("restored session %s required repair", s.ID)
	}
	e.store.Register(s)
	return s, nil
}

// enterRequirementConfirmation runs requirement analysis and presents the
// result for confirmation. A transient busy entry marks the in-flight
// analysis and is removed once it resolves.
func (e *Engine) enterRequirementConfirmation(ctx context.Context, s *session.Session, corrections []string) {
	busy := map[string]string{session.MetaTransient: "true"}
	s.AppendEntry(session.RoleAssistant, "Analyzing your requirements...", s.CurrentStep, busy)

	state := e.pipeline.Requirements.ProcessAnalysis(ctx, s.Requirements.OriginalInput, corrections)
	s.RemoveTransientEntries()

	// Preserve the append-only modification log across re-analysis rounds.
	state.Modifications = s.Requirements.Modifications
	s.Requirements = state

	s.AppendEntry(session.RoleAssistant, formatRequirements(&s.Requirements), s.CurrentStep,
		map[string]string{session.MetaConfirmationRequired: "true"})
}

// reanalyze re-runs the first pipeline stage with every correction the user
// gave during confirmation folded into the prompt.
func (e *Engine) reanalyze(ctx context.Context, s *session.Session, latest string) {
	corrections := make([]string, 0, 4)
	for i := range s.Transcript {
		entry := &s.Transcript[i]
		if entry.Role == session.RoleUser && entry.Step == session.StepRequirementConfirmation {
			corrections = append(corrections, entry.Text)
		}
	}

	s.Requirements.Modifications = append(s.Requirements.Modifications, session.Modification{
		Timestamp: time.Now(),
		Type:      "reanalysis",
		Target:    "requirements",
		Reason:    latest,
	})
	e.enterRequirementConfirmation(ctx, s, corrections)
}

func (e *Engine) enterSuggestionReview(ctx context.Context, s *session.Session) {
	s.Requirements.Confirmed = true

	busy := map[string]string{session.MetaTransient: "true"}
	s.AppendEntry(session.RoleAssistant, "Generating improvement suggestions...", s.CurrentStep, busy)
	s.Suggestions.Suggestions = e.pipeline.Suggestions.GenerateSuggestions(ctx, &s.Requirements)
	s.RemoveTransientEntries()

	s.AppendEntry(session.RoleAssistant, formatSuggestions(&s.Suggestions), s.CurrentStep, nil)
}

func (e *Engine) enterStructurePlanning(s *session.Session) {
	s.AppendEntry(session.RoleAssistant, formatStructurePlan(s), s.CurrentStep,
		map[string]string{session.MetaConfirmationRequired: "true"})
}

func (e *Engine) enterTicketGeneration(ctx context.Context, s *session.Session) {
	applied := make([]session.ProfessionalSuggestion, 0, len(s.Suggestions.AcceptedIDs))
	for i := range s.Suggestions.Suggestions {
		sug := s.Suggestions.Suggestions[i]
		for _, acceptedID := range s.Suggestions.AcceptedIDs {
			if sug.ID == acceptedID {
				applied = append(applied, sug)
				break
			}
		}
	}

	busy := map[string]string{session.MetaTransient: "true"}
	s.AppendEntry(session.RoleAssistant, "Generating tickets...", s.CurrentStep, busy)
	s.Tickets = e.pipeline.Tickets.GenerateTickets(ctx, &s.Requirements, applied)
	s.RemoveTransientEntries()

	s.AppendEntry(session.RoleAssistant,
		fmt.Sprintf("Generated %d tickets (%d epics, %d stories, %d tasks, %d bugs).",
			s.Tickets.Count(), len(s.Tickets.Epics), len(s.Tickets.Stories), len(s.Tickets.Tasks), len(s.Tickets.Bugs)),
		s.CurrentStep, nil)
}

func (e *Engine) enterFinalReview(s *session.Session) {
	s.AppendEntry(session.RoleAssistant, formatFinalReview(s), s.CurrentStep,
		map[string]string{session.MetaConfirmationRequired: "true"})
}

func removeID(ids []string, id string) []string {
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	return kept
}
