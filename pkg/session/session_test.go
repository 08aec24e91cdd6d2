package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionSeedsTranscript(t *testing.T) {
	s := NewSession("Build a login page")

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, StepInitialUnderstanding, s.CurrentStep)
	assert.Equal(t, "Build a login page", s.Requirements.OriginalInput)
	require.Len(t, s.Transcript, 1)
	assert.Equal(t, RoleUser, s.Transcript[0].Role)
	assert.False(t, s.Completed)
}

func TestNewSessionAllowsEmptyInput(t *testing.T) {
	s := NewSession("")
	assert.Empty(t, s.Transcript)
	assert.Equal(t, StepInitialUnderstanding, s.CurrentStep)
}

func TestRemoveTransientEntries(t *testing.T) {
	s := NewSession("input")
	s.AppendEntry(RoleAssistant, "thinking...", StepInitialUnderstanding, map[string]string{MetaTransient: "true"})
	s.AppendEntry(RoleAssistant, "done", StepInitialUnderstanding, nil)
	require.Len(t, s.Transcript, 3)

	s.RemoveTransientEntries()
	require.Len(t, s.Transcript, 2)
	for i := range s.Transcript {
		assert.NotEqual(t, "thinking...", s.Transcript[i].Text)
	}
}

func TestStoreLifecycle(t *testing.T) {
	store := NewStore()
	s := NewSession("input")
	store.Register(s)

	got, err := store.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	before := s.UpdatedAt
	err = store.Update(s.ID, func(sess *Session) {
		sess.Requirements.Confirmed = true
	})
	require.NoError(t, err)
	assert.True(t, s.Requirements.Confirmed)
	assert.False(t, s.UpdatedAt.Before(before))

	store.Drop(s.ID)
	_, err = store.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = store.Update("missing", func(*Session) {})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := NewSession("Add password reset")
	s.Requirements.Requirements = []ProcessedRequirement{{
		ID:       NewID(),
		Category: CategoryUserStory,
		Title:    "Password reset",
		Priority: PriorityMedium,
		Effort:   EffortEstimate{Complexity: "medium", Confidence: "low"},
	}}
	s.Suggestions.Suggestions = []ProfessionalSuggestion{{
		ID:       NewID(),
		Category: SuggestionSecurity,
		Title:    "Rate limit reset attempts",
		Priority: PriorityHigh,
	}}
	s.Tickets.Stories = []Ticket{{
		ID:      NewID(),
		Type:    TicketStory,
		Summary: "Password reset flow",
	}}
	s.Confirmations[StepRequirementConfirmation] = true

	data, err := s.ExportJSON()
	require.NoError(t, err)

	restored, err := RestoreJSON(data)
	require.NoError(t, err)

	assert.Equal(t, s.ID, restored.ID)
	assert.Equal(t, s.CurrentStep, restored.CurrentStep)
	require.Len(t, restored.Requirements.Requirements, 1)
	assert.Equal(t, s.Requirements.Requirements[0].ID, restored.Requirements.Requirements[0].ID)
	assert.Equal(t, s.Suggestions.Suggestions[0].ID, restored.Suggestions.Suggestions[0].ID)
	assert.Equal(t, s.Tickets.Stories[0].ID, restored.Tickets.Stories[0].ID)
	assert.True(t, restored.Confirmations[StepRequirementConfirmation])

	// Timestamps survive to at least millisecond precision.
	assert.WithinDuration(t, s.StartedAt, restored.StartedAt, 0)
	assert.WithinDuration(t, s.UpdatedAt, restored.UpdatedAt, 0)
	require.Len(t, restored.Transcript, 1)
	assert.WithinDuration(t, s.Transcript[0].Timestamp, restored.Transcript[0].Timestamp, 0)
}

func TestRestoreRejectsMissingMandatoryFields(t *testing.T) {
	_, err := RestoreJSON([]byte(`{"current_step":"INITIAL_UNDERSTANDING"}`))
	assert.Error(t, err)

	_, err = RestoreJSON([]byte(`{"id":"abc","transcript":[]}`))
	assert.Error(t, err, "missing requirement state must be rejected")

	_, err = RestoreJSON([]byte(`{"id":"abc","requirements":{"original_input":"x","requirements":[]}}`))
	assert.Error(t, err, "missing transcript must be rejected")

	// Minimal valid snapshot: id, requirement state, transcript.
	s, err := RestoreJSON([]byte(`{"id":"abc","requirements":{"original_input":"x","requirements":[]},"transcript":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", s.ID)
	assert.Equal(t, StepInitialUnderstanding, s.CurrentStep)
	assert.NotNil(t, s.Confirmations)
}

func TestClampSummary(t *testing.T) {
	short := "fits"
	assert.Equal(t, short, ClampSummary(short))

	long := make([]byte, 150)
	for i := range long {
		long[i] = 'x'
	}
	clamped := ClampSummary(string(long))
	assert.Len(t, clamped, MaxSummaryLength)
	assert.Equal(t, "...", clamped[len(clamped)-3:])
}

func TestTicketCollectionAll(t *testing.T) {
	tc := TicketCollection{
		Epics:   []Ticket{{ID: "e1", Type: TicketEpic}},
		Stories: []Ticket{{ID: "s1", Type: TicketStory}},
		Tasks:   []Ticket{{ID: "t1", Type: TicketTask}},
		Bugs:    []Ticket{{ID: "b1", Type: TicketBug}},
	}
	all := tc.All()
	require.Len(t, all, 4)
	assert.Equal(t, "e1", all[0].ID, "epics come first")
	assert.Equal(t, 4, tc.Count())
}
