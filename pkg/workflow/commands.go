package workflow

import (
	"context"
	"fmt"

	"planner/pkg/export"
	"planner/pkg/llmerrors"
	"planner/pkg/recovery"
	"planner/pkg/session"
)

// CommandType names an inbound command from the hosting surface.
type CommandType string

const (
	CommandSendText          CommandType = "send_text"
	CommandConfirm           CommandType = "confirm"
	CommandUpdateRequirement CommandType = "update_requirement"
	CommandResolveSuggestion CommandType = "resolve_suggestion"
	CommandMoreSuggestions   CommandType = "more_suggestions"
	CommandGenerateTickets   CommandType = "generate_tickets"
	CommandExport            CommandType = "export"
	CommandRestart           CommandType = "restart"
	CommandSave              CommandType = "save"
	CommandLoad              CommandType = "load"
)

// Command is one inbound command with its payload. Only the fields the
// command type needs are read.
type Command struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`

	Text      string `json:"text,omitempty"`
	Confirmed bool   `json:"confirmed,omitempty"`
	Feedback  string `json:"feedback,omitempty"`

	RequirementID string `json:"requirement_id,omitempty"`
	Field         string `json:"field,omitempty"`
	NewValue      string `json:"new_value,omitempty"`
	Reason        string `json:"reason,omitempty"`

	SuggestionID string                     `json:"suggestion_id,omitempty"`
	Accepted     bool                       `json:"accepted,omitempty"`
	Category     session.SuggestionCategory `json:"category,omitempty"`

	Format   export.Format `json:"format,omitempty"`
	Snapshot []byte        `json:"snapshot,omitempty"`
}

// Result is the outcome of a command: the session after the command (nil when
// the command did not touch one) and any produced output such as export
// content or a saved snapshot.
type Result struct {
	Session *session.Session
	Output  string
	Notice  string
}

// Dispatcher maps inbound commands onto engine operations. It decouples the
// engine from any particular transport: the hosting surface only needs to
// construct commands and render results.
type Dispatcher struct {
	engine  *Engine
	advisor *recovery.Advisor
}

// NewDispatcher creates a command dispatcher.
func NewDispatcher(engine *Engine, advisor *recovery.Advisor) *Dispatcher {
	return &Dispatcher{engine: engine, advisor: advisor}
}

// Execute runs one command against the engine. Errors are reported to the
// recovery advisor so the returned error always carries a classification the
// surface can render with recovery options.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) (Result, error) {
	result, err := d.execute(ctx, cmd)
	if err != nil {
		step := session.Step("")
		if s, getErr := d.engine.Get(cmd.SessionID); getErr == nil {
			step = s.CurrentStep
		}
		d.advisor.Report(err, step, cmd.SessionID)
	}
	return result, err
}

//nolint:cyclop // One arm per command type.
func (d *Dispatcher) execute(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Type {
	case CommandSendText:
		s, err := d.engine.ProcessInput(ctx, cmd.SessionID, cmd.Text)
		return Result{Session: s}, err

	case CommandConfirm:
		s, err := d.engine.SubmitConfirmation(ctx, cmd.SessionID, cmd.Confirmed, cmd.Feedback)
		return Result{Session: s}, err

	case CommandUpdateRequirement:
		err := d.engine.UpdateRequirement(cmd.SessionID, cmd.RequirementID, cmd.Field, cmd.NewValue, cmd.Reason)
		if err != nil {
			return Result{}, err
		}
		s, err := d.engine.Get(cmd.SessionID)
		return Result{Session: s, Notice: "requirement updated"}, err

	case CommandResolveSuggestion:
		err := d.engine.ResolveSuggestion(cmd.SessionID, cmd.SuggestionID, cmd.Accepted)
		if err != nil {
			return Result{}, err
		}
		s, err := d.engine.Get(cmd.SessionID)
		return Result{Session: s}, err

	case CommandMoreSuggestions:
		added, err := d.engine.GenerateMoreSuggestions(ctx, cmd.SessionID, cmd.Category)
		if err != nil {
			return Result{}, err
		}
		s, err := d.engine.Get(cmd.SessionID)
		return Result{Session: s, Notice: fmt.Sprintf("%d suggestions added", added)}, err

	case CommandGenerateTickets:
		s, err := d.engine.RegenerateTickets(ctx, cmd.SessionID)
		return Result{Session: s}, err

	case CommandExport:
		content, err := d.engine.ExportTickets(cmd.SessionID, cmd.Format)
		if err != nil {
			return Result{}, err
		}
		s, getErr := d.engine.Get(cmd.SessionID)
		return Result{Session: s, Output: content}, getErr

	case CommandRestart:
		s, err := d.engine.Restart(cmd.SessionID)
		return Result{Session: s, Notice: "session restarted"}, err

	case CommandSave:
		data, err := d.engine.SaveSnapshot(cmd.SessionID)
		if err != nil {
			return Result{}, err
		}
		s, getErr := d.engine.Get(cmd.SessionID)
		return Result{Session: s, Output: string(data)}, getErr

	case CommandLoad:
		s, err := d.engine.RestoreSnapshot(cmd.Snapshot)
		return Result{Session: s, Notice: "session loaded"}, err

	default:
		return Result{}, llmerrors.NewError(llmerrors.ErrorTypeValidation, fmt.Sprintf("unknown command %q", cmd.Type))
	}
}
