package recovery

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planner/pkg/llmerrors"
	"planner/pkg/session"
)

func TestReportAttachesOptionsByType(t *testing.T) {
	advisor := NewAdvisor()

	ctx := advisor.Report(errors.New("AI service timed out"), session.StepInitialUnderstanding, "s-1")
	assert.Equal(t, llmerrors.ErrorTypeService, ctx.Type)
	assertHasAction(t, ctx.Options, ActionRetry)
	assertHasAction(t, ctx.Options, ActionDegradedMode)
	assertHasAction(t, ctx.Options, ActionViewDetails)

	ctx = advisor.Report(errors.New("rate limit exceeded"), session.StepSuggestionReview, "s-1")
	assert.Equal(t, llmerrors.ErrorTypeRateLimit, ctx.Type)
	opt := findAction(t, ctx.Options, ActionWaitAndRetry)
	assert.Equal(t, time.Minute, opt.Delay)
	assert.True(t, opt.Recommended)

	ctx = advisor.Report(errors.New("connection refused"), "", "")
	assertHasAction(t, ctx.Options, ActionCheckConnectivity)

	ctx = advisor.Report(errors.New("session state corrupt"), "", "s-1")
	assertHasAction(t, ctx.Options, ActionRestartSession)

	ctx = advisor.Report(errors.New("invalid requirement id"), "", "")
	assertHasAction(t, ctx.Options, ActionCorrectInput)
}

func TestEveryContextGetsViewDetails(t *testing.T) {
	for _, et := range []llmerrors.ErrorType{
		llmerrors.ErrorTypeRateLimit, llmerrors.ErrorTypeNetwork, llmerrors.ErrorTypeService,
		llmerrors.ErrorTypeValidation, llmerrors.ErrorTypeParsing, llmerrors.ErrorTypeSession,
		llmerrors.ErrorTypeExport, llmerrors.ErrorTypeUnknown,
	} {
		options := OptionsFor(et)
		found := false
		for _, opt := range options {
			if opt.Action == ActionViewDetails {
				found = true
			}
		}
		assert.True(t, found, "type %s must carry a view-details option", et)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	advisor := NewAdvisor()
	for i := 0; i < historyLimit+20; i++ {
		advisor.Report(errors.New("network down"), "", "")
	}
	stats := advisor.GetStats()
	assert.Equal(t, historyLimit, stats.Total)
}

func TestStatsRecentWindow(t *testing.T) {
	advisor := NewAdvisor()

	base := time.Now()
	advisor.now = func() time.Time { return base.Add(-2 * time.Minute) }
	advisor.Report(errors.New("network down"), "", "")

	advisor.now = func() time.Time { return base }
	for i := 0; i < 15; i++ {
		advisor.Report(errors.New("AI service timed out"), "", "")
	}

	stats := advisor.GetStats()
	assert.Equal(t, 16, stats.Total)
	assert.Equal(t, 1, stats.PerType[llmerrors.ErrorTypeNetwork])
	assert.Equal(t, 15, stats.PerType[llmerrors.ErrorTypeService])
	assert.Len(t, stats.Recent, 10, "recent entries cap at ten")
	for i := range stats.Recent {
		assert.Equal(t, llmerrors.ErrorTypeService, stats.Recent[i].Type)
	}
}

func TestValidateAndRecoverSessionRepairsCorruption(t *testing.T) {
	advisor := NewAdvisor()

	s := session.NewSession("raw input")
	s.ID = ""
	s.Transcript = nil
	s.Completed = true
	s.Requirements.Requirements = []session.ProcessedRequirement{
		{ID: "r-1", Title: "Valid requirement"},
		{ID: "", Title: "No id"},
		{ID: "r-3", Title: ""},
	}

	recovered, repaired := advisor.ValidateAndRecoverSession(s)
	require.True(t, repaired)
	assert.NotEmpty(t, recovered.ID)
	assert.NotNil(t, recovered.Transcript)
	assert.False(t, recovered.Completed, "recovered session must not be completed")
	require.Len(t, recovered.Requirements.Requirements, 1)
	assert.Equal(t, "r-1", recovered.Requirements.Requirements[0].ID)
}

func TestValidateAndRecoverSessionLeavesHealthySessionAlone(t *testing.T) {
	advisor := NewAdvisor()

	s := session.NewSession("raw input")
	s.Requirements.Requirements = []session.ProcessedRequirement{{ID: "r-1", Title: "ok"}}
	s.Completed = true

	recovered, repaired := advisor.ValidateAndRecoverSession(s)
	assert.False(t, repaired)
	assert.True(t, recovered.Completed, "healthy session keeps its completion flag")
	assert.Len(t, recovered.Requirements.Requirements, 1)
}

func TestValidateAndRecoverNilSession(t *testing.T) {
	advisor := NewAdvisor()
	recovered, repaired := advisor.ValidateAndRecoverSession(nil)
	require.True(t, repaired)
	require.NotNil(t, recovered)
	assert.NotEmpty(t, recovered.ID)
}

func assertHasAction(t *testing.T, options []Option, action string) {
	t.Helper()
	findAction(t, options, action)
}

func findAction(t *testing.T, options []Option, action string) Option {
	t.Helper()
	for _, opt := range options {
		if opt.Action == action {
			return opt
		}
	}
	t.Fatalf("option %q not found in %v", action, options)
	return Option{}
}
