// Package recovery turns classified failures into user-actionable recovery
// options, keeps a bounded rolling history of error contexts for diagnostics,
// and repairs structurally corrupt session state.
package recovery

import (
	"sync"
	"time"

	"planner/pkg/llmerrors"
	"planner/pkg/logx"
	"planner/pkg/session"
)

const (
	// historyLimit bounds the rolling error-context history.
	historyLimit = 50

	// recentWindow is the look-back interval for recent-error statistics.
	recentWindow = 60 * time.Second

	// recentLimit caps how many recent entries statistics report.
	recentLimit = 10

	// RateLimitRetryDelay is the fixed wait suggested after a rate-limit
	// denial, matching the admission window.
	RateLimitRetryDelay = time.Minute
)

// Recovery option actions.
const (
	ActionRetry             = "retry"
	ActionDegradedMode      = "degraded_mode"
	ActionCheckConnectivity = "check_connectivity"
	ActionWaitAndRetry      = "wait_and_retry"
	ActionRestartSession    = "restart_session"
	ActionCorrectInput      = "correct_input"
	ActionViewDetails       = "view_details"
)

// Option is a user-facing suggested action attached to a classified error.
type Option struct {
	Action      string        `json:"action"`
	Label       string        `json:"label"`
	Description string        `json:"description,omitempty"`
	Recommended bool          `json:"recommended,omitempty"`
	Delay       time.Duration `json:"delay,omitempty"`
}

// ErrorContext is one classified failure with its recovery options.
type ErrorContext struct {
	Type      llmerrors.ErrorType `json:"type"`
	Message   string              `json:"message"`
	Err       error               `json:"-"`
	Step      session.Step        `json:"step,omitempty"`
	SessionID string              `json:"session_id,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	Options   []Option            `json:"options"`
}

// Stats summarizes the error history.
type Stats struct {
	Total   int                         `json:"total"`
	PerType map[llmerrors.ErrorType]int `json:"per_type"`
	Recent  []ErrorContext              `json:"recent"`
}

// Advisor classifies failures, attaches recovery options, and retains a
// bounded history.
type Advisor struct {
	mu      sync.Mutex
	history []ErrorContext
	logger  *logx.Logger

	now func() time.Time // Injectable clock for tests
}

// NewAdvisor creates a recovery advisor.
func NewAdvisor() *Advisor {
	return &Advisor{
		history: make([]ErrorContext, 0),
		logger:  logx.NewLogger("recovery"),
		now:     time.Now,
	}
}

// Report classifies err, builds its recovery options, appends the context to
// the rolling history, and returns it.
func (a *Advisor) Report(err error, step session.Step, sessionID string) ErrorContext {
	classified := llmerrors.Classify(err)

	ctx := ErrorContext{
		Type:      classified.Type,
		Message:   classified.Error(),
		Err:       err,
		Step:      step,
		SessionID: sessionID,
		Timestamp: a.now(),
		Options:   OptionsFor(classified.Type),
	}

	a.mu.Lock()
	a.history = append(a.history, ctx)
	if len(a.history) > historyLimit {
		a.history = a.history[len(a.history)-historyLimit:]
	}
	a.mu.Unlock()

	a.logger.Warn("%s error in step %s: %v", ctx.Type, step, err)
	return ctx
}

// OptionsFor returns the recovery options for a classified error type.
// Every context carries a generic view-details option.
func OptionsFor(errorType llmerrors.ErrorType) []Option {
	var options []Option

	switch errorType {
	case llmerrors.ErrorTypeService:
		options = append(options,
			Option{Action: ActionRetry, Label: "Retry", Description: "Try the request again", Recommended: true},
			Option{Action: ActionDegradedMode, Label: "Continue without AI", Description: "Use deterministic results for this step"},
		)
	case llmerrors.ErrorTypeNetwork:
		options = append(options,
			Option{Action: ActionCheckConnectivity, Label: "Check connection", Description: "Verify network connectivity, then retry", Recommended: true},
		)
	case llmerrors.ErrorTypeRateLimit:
		options = append(options,
			Option{Action: ActionWaitAndRetry, Label: "Wait and retry", Description: "Wait for the rate-limit window to clear", Recommended: true, Delay: RateLimitRetryDelay},
		)
	case llmerrors.ErrorTypeSession:
		options = append(options,
			Option{Action: ActionRestartSession, Label: "Restart planning", Description: "Start a fresh session from the original input", Recommended: true},
		)
	case llmerrors.ErrorTypeValidation:
		options = append(options,
			Option{Action: ActionCorrectInput, Label: "Correct input", Description: "Adjust the input and try again", Recommended: true},
		)
	case llmerrors.ErrorTypeParsing:
		options = append(options,
			Option{Action: ActionDegradedMode, Label: "Use fallback result", Description: "Continue with a deterministic result", Recommended: true},
		)
	case llmerrors.ErrorTypeExport, llmerrors.ErrorTypeUnknown:
		options = append(options,
			Option{Action: ActionRetry, Label: "Retry", Recommended: true},
		)
	}

	return append(options, Option{Action: ActionViewDetails, Label: "View details"})
}

// GetStats returns total and per-type counts plus the most recent entries
// from the last minute (capped at ten, newest last).
func (a *Advisor) GetStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{
		Total:   len(a.history),
		PerType: make(map[llmerrors.ErrorType]int),
	}

	cutoff := a.now().Add(-recentWindow)
	recent := make([]ErrorContext, 0)
	for i := range a.history {
		stats.PerType[a.history[i].Type]++
		if a.history[i].Timestamp.After(cutoff) {
			recent = append(recent, a.history[i])
		}
	}
	if len(recent) > recentLimit {
		recent = recent[len(recent)-recentLimit:]
	}
	stats.Recent = recent
	return stats
}

// ValidateAndRecoverSession checks a session for structural corruption and
// repairs it in place of rejecting it: missing or invalid top-level
// collections are replaced with empty defaults, requirement entries without
// an id and title are dropped, and the recovered session is marked not
// completed regardless of prior state. Returns the repaired session and
// whether any repair was applied.
func (a *Advisor) ValidateAndRecoverSession(s *session.Session) (*session.Session, bool) {
	if s == nil {
		recovered := session.NewSession("")
		a.logger.Warn("session was nil, created empty replacement %s", recovered.ID)
		return recovered, true
	}

	repaired := false

	if s.ID == "" {
		s.ID = session.NewID()
		repaired = true
	}
	if s.CurrentStep == "" {
		s.CurrentStep = session.StepInitialUnderstanding
		repaired = true
	}
	if s.Confirmations == nil {
		s.Confirmations = make(map[session.Step]bool)
		repaired = true
	}
	if s.Transcript == nil {
		s.Transcript = make([]session.ConversationEntry, 0)
		repaired = true
	}
	if s.Requirements.Requirements == nil {
		s.Requirements.Requirements = make([]session.ProcessedRequirement, 0)
		repaired = true
	}

	valid := s.Requirements.Requirements[:0]
	for i := range s.Requirements.Requirements {
		req := &s.Requirements.Requirements[i]
		if req.ID == "" || req.Title == "" {
			repaired = true
			continue
		}
		valid = append(valid, *req)
	}
	s.Requirements.Requirements = valid

	// A repaired session is never considered complete, whatever it claimed.
	if repaired && s.Completed {
		s.Completed = false
	}

	if repaired {
		a.logger.Info("repaired corrupt session %s", s.ID)
	}
	return s, repaired
}
