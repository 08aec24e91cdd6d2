package session

import (
	"encoding/json"
	"time"

	"planner/pkg/llmerrors"
)

// Snapshot is the serializable form of a Session. Timestamps round-trip
// through RFC 3339 with nanosecond precision via encoding/json's time.Time
// handling. Pointer fields distinguish absent sections from empty ones so
// restore can reject snapshots missing mandatory state.
type Snapshot struct {
	ID            string              `json:"id"`
	CurrentStep   Step                `json:"current_step"`
	StartedAt     time.Time           `json:"started_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Completed     bool                `json:"completed"`
	Confirmations map[Step]bool       `json:"confirmations,omitempty"`
	Requirements  *RequirementState   `json:"requirements,omitempty"`
	Suggestions   *SuggestionState    `json:"suggestions,omitempty"`
	Tickets       *TicketCollection   `json:"tickets,omitempty"`
	Transcript    []ConversationEntry `json:"transcript,omitempty"`
}

// Snapshot returns a serializable copy of the session.
func (s *Session) Snapshot() *Snapshot {
	requirements := s.Requirements
	suggestions := s.Suggestions
	tickets := s.Tickets

	transcript := make([]ConversationEntry, len(s.Transcript))
	copy(transcript, s.Transcript)

	confirmations := make(map[Step]bool, len(s.Confirmations))
	for step, confirmed := range s.Confirmations {
		confirmations[step] = confirmed
	}

	return &Snapshot{
		ID:            s.ID,
		CurrentStep:   s.CurrentStep,
		StartedAt:     s.StartedAt,
		UpdatedAt:     s.UpdatedAt,
		Completed:     s.Completed,
		Confirmations: confirmations,
		Requirements:  &requirements,
		Suggestions:   &suggestions,
		Tickets:       &tickets,
		Transcript:    transcript,
	}
}

// ExportJSON serializes the session snapshot.
func (s *Session) ExportJSON() ([]byte, error) {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeSession, err, "failed to serialize session")
	}
	return data, nil
}

// Restore reconstructs a Session from a snapshot. It fails with a session
// error when mandatory top-level fields (id, requirement state, transcript)
// are absent. Nested entities are not deep-validated here; in-place
// corruption is the recovery advisor's concern.
func Restore(snap *Snapshot) (*Session, error) {
	if snap == nil {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeSession, "session snapshot is empty")
	}
	if snap.ID == "" {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeSession, "session snapshot missing id")
	}
	if snap.Requirements == nil {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeSession, "session snapshot missing requirement state")
	}
	if snap.Transcript == nil {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeSession, "session snapshot missing transcript")
	}

	s := &Session{
		ID:            snap.ID,
		CurrentStep:   snap.CurrentStep,
		StartedAt:     snap.StartedAt,
		UpdatedAt:     snap.UpdatedAt,
		Completed:     snap.Completed,
		Confirmations: snap.Confirmations,
		Requirements:  *snap.Requirements,
		Transcript:    snap.Transcript,
	}
	if s.CurrentStep == "" {
		s.CurrentStep = StepInitialUnderstanding
	}
	if s.Confirmations == nil {
		s.Confirmations = make(map[Step]bool)
	}
	if snap.Suggestions != nil {
		s.Suggestions = *snap.Suggestions
	}
	if snap.Tickets != nil {
		s.Tickets = *snap.Tickets
	}
	return s, nil
}

// RestoreJSON parses snapshot JSON and reconstructs the session.
func RestoreJSON(data []byte) (*Session, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeSession, err, "failed to parse session snapshot")
	}
	return Restore(&snap)
}
