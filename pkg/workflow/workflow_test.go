package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planner/pkg/export"
	"planner/pkg/llm"
	"planner/pkg/llmerrors"
	"planner/pkg/middleware/metrics"
	"planner/pkg/pipeline"
	"planner/pkg/recovery"
	"planner/pkg/session"
)

func newTestEngine(client llm.Client) (*Engine, *session.Store, *recovery.Advisor) {
	store := session.NewStore()
	advisor := recovery.NewAdvisor()
	pipe := pipeline.New(client, metrics.Nop(), nil)
	return NewEngine(store, pipe, advisor), store, advisor
}

// outageClient always fails, driving every stage to its fallback.
func outageClient() llm.Client {
	return llm.NewMockClient(nil, nil)
}

func TestNextStepOrder(t *testing.T) {
	next, ok := NextStep(session.StepFinalReview)
	require.True(t, ok)
	assert.Equal(t, session.StepCompleted, next)

	_, ok = NextStep(session.StepCompleted)
	assert.False(t, ok, "completed is terminal")

	_, ok = NextStep(session.Step("BOGUS"))
	assert.False(t, ok)
}

func TestConfirmationSequenceVisitsFixedOrder(t *testing.T) {
	engine, _, _ := newTestEngine(outageClient())
	s := engine.InitializeSession("Build a billing service")

	visited := []session.Step{s.CurrentStep}
	for i := 0; i < len(session.StepOrder)-1; i++ {
		updated, err := engine.ConfirmCurrentStep(context.Background(), s.ID)
		require.NoError(t, err)
		visited = append(visited, updated.CurrentStep)
	}

	assert.Equal(t, session.StepOrder, visited)
	assert.True(t, s.Completed)

	_, err := engine.ConfirmCurrentStep(context.Background(), s.ID)
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeValidation))
}

func TestOutageScenarioEndToEnd(t *testing.T) {
	engine, _, _ := newTestEngine(outageClient())
	s := engine.InitializeSession("")

	updated, err := engine.ProcessInput(context.Background(), s.ID, "Add password reset")
	require.NoError(t, err)

	assert.Equal(t, session.StepRequirementConfirmation, updated.CurrentStep)
	require.Len(t, updated.Requirements.Requirements, 1)
	req := updated.Requirements.Requirements[0]
	assert.Equal(t, "Add password reset", req.Title)
	assert.Equal(t, session.PriorityMedium, req.Priority)

	// The busy marker is gone and the result awaits confirmation.
	last := updated.Transcript[len(updated.Transcript)-1]
	assert.Equal(t, session.RoleAssistant, last.Role)
	assert.Equal(t, "true", last.Metadata[session.MetaConfirmationRequired])
	for i := range updated.Transcript {
		assert.NotEqual(t, "true", updated.Transcript[i].Metadata[session.MetaTransient])
	}
}

func TestRejectionTriggersReanalysisWithCorrections(t *testing.T) {
	client := llm.NewMockClientWithContent(
		`{"requirements": [{"title": "Password reset", "category": "user_story", "priority": "medium"}]}`,
		`{"requirements": [{"title": "Password reset via email", "category": "user_story", "priority": "high"}]}`,
	)
	engine, _, _ := newTestEngine(client)
	s := engine.InitializeSession("Add password reset")

	_, err := engine.ConfirmCurrentStep(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, session.StepRequirementConfirmation, s.CurrentStep)

	updated, err := engine.SubmitConfirmation(context.Background(), s.ID, false, "it must work via email and be high priority")
	require.NoError(t, err)

	assert.Equal(t, session.StepRequirementConfirmation, updated.CurrentStep, "rejection does not advance")
	require.Len(t, updated.Requirements.Requirements, 1)
	assert.Equal(t, "Password reset via email", updated.Requirements.Requirements[0].Title)

	// The re-analysis is recorded in the append-only modification log.
	require.NotEmpty(t, updated.Requirements.Modifications)
	assert.Equal(t, "reanalysis", updated.Requirements.Modifications[0].Type)
}

func TestUpdateRequirement(t *testing.T) {
	engine, _, _ := newTestEngine(outageClient())
	s := engine.InitializeSession("Add password reset")
	_, err := engine.ConfirmCurrentStep(context.Background(), s.ID)
	require.NoError(t, err)

	reqID := s.Requirements.Requirements[0].ID
	require.NoError(t, engine.UpdateRequirement(s.ID, reqID, "priority", "high", "security sensitive"))
	assert.Equal(t, session.PriorityHigh, s.Requirements.Requirements[0].Priority)

	require.Len(t, s.Requirements.Modifications, 1)
	mod := s.Requirements.Modifications[0]
	assert.Equal(t, "update", mod.Type)
	assert.Equal(t, reqID+".priority", mod.Target)
	assert.Equal(t, "medium", mod.OldValue)

	err = engine.UpdateRequirement(s.ID, reqID, "color", "blue", "")
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeValidation))
	err = engine.UpdateRequirement(s.ID, "nope", "title", "x", "")
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeValidation))
}

func TestResolveSuggestionMovesBetweenLists(t *testing.T) {
	engine, _, _ := newTestEngine(outageClient())
	s := engine.InitializeSession("Add password reset")
	ctx := context.Background()
	_, err := engine.ConfirmCurrentStep(ctx, s.ID)
	require.NoError(t, err)
	_, err = engine.ConfirmCurrentStep(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, session.StepSuggestionReview, s.CurrentStep)
	require.NotEmpty(t, s.Suggestions.Suggestions)

	sugID := s.Suggestions.Suggestions[0].ID
	require.NoError(t, engine.ResolveSuggestion(s.ID, sugID, true))
	assert.Contains(t, s.Suggestions.AcceptedIDs, sugID)

	// Re-deciding moves the id, it does not duplicate it.
	require.NoError(t, engine.ResolveSuggestion(s.ID, sugID, false))
	assert.NotContains(t, s.Suggestions.AcceptedIDs, sugID)
	assert.Contains(t, s.Suggestions.RejectedIDs, sugID)
	assert.Len(t, s.Suggestions.Choices, 2)

	err = engine.ResolveSuggestion(s.ID, "missing", true)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeValidation))
}

func TestRegenerateTicketsRequiresConfirmedRequirements(t *testing.T) {
	engine, _, _ := newTestEngine(outageClient())
	s := engine.InitializeSession("Add password reset")

	_, err := engine.RegenerateTickets(context.Background(), s.ID)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeValidation))
}

func TestRestartReseedsFromOriginalInput(t *testing.T) {
	engine, store, _ := newTestEngine(outageClient())
	s := engine.InitializeSession("Add password reset")
	ctx := context.Background()
	_, err := engine.ConfirmCurrentStep(ctx, s.ID)
	require.NoError(t, err)
	oldID := s.ID

	fresh, err := engine.Restart(oldID)
	require.NoError(t, err)

	assert.NotEqual(t, oldID, fresh.ID)
	assert.Equal(t, session.StepInitialUnderstanding, fresh.CurrentStep)
	assert.Equal(t, "Add password reset", fresh.Requirements.OriginalInput)
	assert.Empty(t, fresh.Requirements.Requirements)
	require.Len(t, fresh.Transcript, 1, "transcript re-seeded from original input only")

	_, err = store.Get(oldID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestExportBeforeTicketsFails(t *testing.T) {
	engine, _, _ := newTestEngine(outageClient())
	s := engine.InitializeSession("Add password reset")

	_, err := engine.ExportTickets(s.ID, export.FormatCSV)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeExport))
}

func TestDispatcherRunsFullFlow(t *testing.T) {
	engine, _, advisor := newTestEngine(outageClient())
	dispatcher := NewDispatcher(engine, advisor)
	ctx := context.Background()

	s := engine.InitializeSession("")
	result, err := dispatcher.Execute(ctx, Command{Type: CommandSendText, SessionID: s.ID, Text: "Add password reset"})
	require.NoError(t, err)
	assert.Equal(t, session.StepRequirementConfirmation, result.Session.CurrentStep)

	// Confirm through to ticket generation.
	for i := 0; i < 3; i++ {
		result, err = dispatcher.Execute(ctx, Command{Type: CommandConfirm, SessionID: s.ID, Confirmed: true})
		require.NoError(t, err)
	}
	require.Equal(t, session.StepTicketGeneration, result.Session.CurrentStep)
	assert.Positive(t, result.Session.Tickets.Count())

	result, err = dispatcher.Execute(ctx, Command{Type: CommandExport, SessionID: s.ID, Format: export.FormatJSON})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Output)

	// Save, then load the snapshot back as a registered session.
	result, err = dispatcher.Execute(ctx, Command{Type: CommandSave, SessionID: s.ID})
	require.NoError(t, err)
	snapshot := result.Output

	result, err = dispatcher.Execute(ctx, Command{Type: CommandLoad, Snapshot: []byte(snapshot)})
	require.NoError(t, err)
	assert.Equal(t, s.ID, result.Session.ID)
}

func TestDispatcherReportsErrorsToAdvisor(t *testing.T) {
	engine, _, advisor := newTestEngine(outageClient())
	dispatcher := NewDispatcher(engine, advisor)

	_, err := dispatcher.Execute(context.Background(), Command{Type: CommandType("bogus")})
	require.Error(t, err)
	assert.Equal(t, 1, advisor.GetStats().Total)
}

func TestRequiresConfirmation(t *testing.T) {
	assert.True(t, RequiresConfirmation(session.StepRequirementConfirmation))
	assert.True(t, RequiresConfirmation(session.StepStructurePlanning))
	assert.False(t, RequiresConfirmation(session.StepSuggestionReview))
	assert.False(t, RequiresConfirmation(session.StepTicketGeneration))
}
