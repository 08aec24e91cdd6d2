// Package session defines the planning-session domain model and its
// in-memory store. A Session is the complete mutable state of one planning
// conversation: workflow position, transcript, and the generated requirement,
// suggestion, and ticket collections.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Step is one of the fixed stages of the planning workflow.
type Step string

const (
	StepInitialUnderstanding    Step = "INITIAL_UNDERSTANDING"
	StepRequirementConfirmation Step = "REQUIREMENT_CONFIRMATION"
	StepSuggestionReview        Step = "SUGGESTION_REVIEW"
	StepStructurePlanning       Step = "STRUCTURE_PLANNING"
	StepTicketGeneration        Step = "TICKET_GENERATION"
	StepFinalReview             Step = "FINAL_REVIEW"
	StepCompleted               Step = "COMPLETED"
)

// StepOrder is the linear progression of workflow steps. COMPLETED is
// terminal; there is no skipping except via explicit restart.
//
//nolint:gochecknoglobals // Fixed workflow order shared across packages.
var StepOrder = []Step{
	StepInitialUnderstanding,
	StepRequirementConfirmation,
	StepSuggestionReview,
	StepStructurePlanning,
	StepTicketGeneration,
	StepFinalReview,
	StepCompleted,
}

// Priority ranks requirements, suggestions, and tickets.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// RequirementCategory classifies a processed requirement. The category drives
// the deterministic requirement→ticket mapping when generation falls back.
type RequirementCategory string

const (
	CategoryEpic          RequirementCategory = "epic"
	CategoryUserStory     RequirementCategory = "user_story"
	CategoryTask          RequirementCategory = "task"
	CategoryBug           RequirementCategory = "bug"
	CategoryTechnical     RequirementCategory = "technical"
	CategoryNonFunctional RequirementCategory = "non_functional"
)

// SuggestionCategory classifies an improvement suggestion.
type SuggestionCategory string

const (
	SuggestionArchitecture    SuggestionCategory = "architecture"
	SuggestionSecurity        SuggestionCategory = "security"
	SuggestionPerformance     SuggestionCategory = "performance"
	SuggestionUX              SuggestionCategory = "ux"
	SuggestionTesting         SuggestionCategory = "testing"
	SuggestionDevOps          SuggestionCategory = "devops"
	SuggestionDocumentation   SuggestionCategory = "documentation"
	SuggestionAccessibility   SuggestionCategory = "accessibility"
	SuggestionScalability     SuggestionCategory = "scalability"
	SuggestionMaintainability SuggestionCategory = "maintainability"
)

// SuggestionCategories lists every defined suggestion category, in prompt order.
//
//nolint:gochecknoglobals // Fixed enumeration used by prompts and validation.
var SuggestionCategories = []SuggestionCategory{
	SuggestionArchitecture,
	SuggestionSecurity,
	SuggestionPerformance,
	SuggestionUX,
	SuggestionTesting,
	SuggestionDevOps,
	SuggestionDocumentation,
	SuggestionAccessibility,
	SuggestionScalability,
	SuggestionMaintainability,
}

// TicketType identifies the tracker issue type of a ticket.
type TicketType string

const (
	TicketEpic  TicketType = "epic"
	TicketStory TicketType = "story"
	TicketTask  TicketType = "task"
	TicketBug   TicketType = "bug"
)

// Role is the author of a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Metadata keys for conversation entries.
const (
	// MetaConfirmationRequired marks an assistant entry that awaits an
	// explicit user confirmation.
	MetaConfirmationRequired = "confirmation_required"
	// MetaTransient marks an advisory "processing" entry that is removed
	// once the in-flight operation completes.
	MetaTransient = "transient"
)

// ConversationEntry is one message in the session transcript. The transcript
// is append-only except for removal of transient entries.
type ConversationEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Role      Role              `json:"role"`
	Text      string            `json:"text"`
	Step      Step              `json:"step"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EffortEstimate captures sizing for a requirement or ticket.
type EffortEstimate struct {
	Complexity   string `json:"complexity"` // low | medium | high
	Confidence   string `json:"confidence"` // low | medium | high
	StoryPoints  int    `json:"story_points,omitempty"`
	TimeEstimate string `json:"time_estimate,omitempty"`
}

// ProcessedRequirement is one structured requirement extracted from the
// user's free-text input.
type ProcessedRequirement struct {
	ID                 string              `json:"id"`
	Category           RequirementCategory `json:"category"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Priority           Priority            `json:"priority"`
	Effort             EffortEstimate      `json:"effort"`
	Dependencies       []string            `json:"dependencies,omitempty"`
	AcceptanceCriteria []string            `json:"acceptance_criteria,omitempty"`
	TechnicalNotes     []string            `json:"technical_notes,omitempty"`
	BusinessValue      string              `json:"business_value,omitempty"`
	Risks              []string            `json:"risks,omitempty"`
}

// Modification records one user edit to the requirement set. The log is
// append-only.
type Modification struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Target    string    `json:"target"`
	OldValue  string    `json:"old_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// RequirementState holds the original input and everything derived from it.
type RequirementState struct {
	OriginalInput  string                 `json:"original_input"`
	Requirements   []ProcessedRequirement `json:"requirements"`
	Clarifications []string               `json:"clarifications,omitempty"`
	Confirmed      bool                   `json:"confirmed"`
	Modifications  []Modification         `json:"modifications,omitempty"`
}

// ImpactAssessment describes the expected impact of applying a suggestion.
type ImpactAssessment struct {
	Effort       string   `json:"effort"` // low | medium | high
	Benefits     []string `json:"benefits,omitempty"`
	Risks        []string `json:"risks,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Timeline     string   `json:"timeline,omitempty"`
}

// ImplementationPlan sketches how a suggestion would be realized.
type ImplementationPlan struct {
	Steps          []string `json:"steps,omitempty"`
	Resources      []string `json:"resources,omitempty"`
	Technologies   []string `json:"technologies,omitempty"`
	Considerations []string `json:"considerations,omitempty"`
}

// ProfessionalSuggestion is one improvement suggestion generated from the
// requirement set.
type ProfessionalSuggestion struct {
	ID                     string             `json:"id"`
	Category               SuggestionCategory `json:"category"`
	Title                  string             `json:"title"`
	Description            string             `json:"description"`
	Rationale              string             `json:"rationale,omitempty"`
	Priority               Priority           `json:"priority"`
	Impact                 ImpactAssessment   `json:"impact"`
	Plan                   ImplementationPlan `json:"plan"`
	ApplicableRequirements []string           `json:"applicable_requirements,omitempty"`
}

// SuggestionChoice records one accept/reject decision by the user.
type SuggestionChoice struct {
	SuggestionID string    `json:"suggestion_id"`
	Accepted     bool      `json:"accepted"`
	Timestamp    time.Time `json:"timestamp"`
}

// SuggestionState holds generated suggestions and the user's decisions.
type SuggestionState struct {
	Suggestions []ProfessionalSuggestion `json:"suggestions"`
	AcceptedIDs []string                 `json:"accepted_ids,omitempty"`
	RejectedIDs []string                 `json:"rejected_ids,omitempty"`
	Choices     []SuggestionChoice       `json:"choices,omitempty"`
}

// TicketLink is a typed relation between tickets.
type TicketLink struct {
	Relation    string `json:"relation"` // blocks | relates_to | duplicates | implements
	TargetID    string `json:"target_id"`
	Description string `json:"description,omitempty"`
}

// MaxSummaryLength caps ticket summaries for tracker compatibility.
const MaxSummaryLength = 100

// Ticket is one issue-tracker item.
type Ticket struct {
	ID                 string         `json:"id"`
	Type               TicketType     `json:"type"`
	Summary            string         `json:"summary"`
	Description        string         `json:"description,omitempty"`
	Priority           Priority       `json:"priority"`
	Labels             []string       `json:"labels,omitempty"`
	Components         []string       `json:"components,omitempty"`
	ParentID           string         `json:"parent_id,omitempty"`
	Links              []TicketLink   `json:"links,omitempty"`
	AcceptanceCriteria []string       `json:"acceptance_criteria,omitempty"`
	Effort             EffortEstimate `json:"effort"`
}

// TicketCollection groups generated tickets by type. Invariant: every
// non-epic ticket with no explicit parent is linked to a synthesized
// container epic when none of the declared requirements are epics.
type TicketCollection struct {
	Epics   []Ticket `json:"epics"`
	Stories []Ticket `json:"stories"`
	Tasks   []Ticket `json:"tasks"`
	Bugs    []Ticket `json:"bugs"`
}

// All returns every ticket across the four groups, epics first.
func (tc *TicketCollection) All() []Ticket {
	all := make([]Ticket, 0, len(tc.Epics)+len(tc.Stories)+len(tc.Tasks)+len(tc.Bugs))
	all = append(all, tc.Epics...)
	all = append(all, tc.Stories...)
	all = append(all, tc.Tasks...)
	all = append(all, tc.Bugs...)
	return all
}

// Count returns the total number of tickets.
func (tc *TicketCollection) Count() int {
	return len(tc.Epics) + len(tc.Stories) + len(tc.Tasks) + len(tc.Bugs)
}

// Session is the complete mutable state of one planning conversation. It is
// owned exclusively by the workflow engine for its lifetime.
type Session struct {
	ID            string              `json:"id"`
	CurrentStep   Step                `json:"current_step"`
	StartedAt     time.Time           `json:"started_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Completed     bool                `json:"completed"`
	Confirmations map[Step]bool       `json:"confirmations"`
	Requirements  RequirementState    `json:"requirements"`
	Suggestions   SuggestionState     `json:"suggestions"`
	Tickets       TicketCollection    `json:"tickets"`
	Transcript    []ConversationEntry `json:"transcript"`
}

// NewSession creates a session in INITIAL_UNDERSTANDING, seeding the
// transcript with the user's raw input. The input may be empty; the user can
// supply text via a later message.
func NewSession(rawInput string) *Session {
	now := time.Now()
	s := &Session{
		ID:            uuid.New().String(),
		CurrentStep:   StepInitialUnderstanding,
		StartedAt:     now,
		UpdatedAt:     now,
		Confirmations: make(map[Step]bool),
		Requirements: RequirementState{
			OriginalInput: rawInput,
		},
		Transcript: make([]ConversationEntry, 0),
	}
	if rawInput != "" {
		s.AppendEntry(RoleUser, rawInput, StepInitialUnderstanding, nil)
	}
	return s
}

// AppendEntry adds a transcript entry and returns its id.
func (s *Session) AppendEntry(role Role, text string, step Step, metadata map[string]string) string {
	entry := ConversationEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Role:      role,
		Text:      text,
		Step:      step,
		Metadata:  metadata,
	}
	s.Transcript = append(s.Transcript, entry)
	s.UpdatedAt = entry.Timestamp
	return entry.ID
}

// RemoveTransientEntries drops advisory "processing" entries from the
// transcript. All other entries are append-only.
func (s *Session) RemoveTransientEntries() {
	kept := s.Transcript[:0]
	for i := range s.Transcript {
		if s.Transcript[i].Metadata[MetaTransient] != "true" {
			kept = append(kept, s.Transcript[i])
		}
	}
	s.Transcript = kept
}

// Touch refreshes the last-update timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// IsConfirmed reports whether the given step was explicitly confirmed.
func (s *Session) IsConfirmed(step Step) bool {
	return s.Confirmations[step]
}

// ClampSummary trims a ticket summary to the tracker-safe maximum length.
func ClampSummary(summary string) string {
	if len(summary) <= MaxSummaryLength {
		return summary
	}
	return summary[:MaxSummaryLength-3] + "..."
}

// NewID returns a fresh unique id for any generated entity.
func NewID() string {
	return uuid.New().String()
}
