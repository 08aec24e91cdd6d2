// Package export renders a session's ticket collection into interchange
// formats: a full CSV dump, a tracker-import CSV, pretty JSON, and wiki
// markup for planning pages.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"planner/pkg/llmerrors"
	"planner/pkg/session"
)

// Format identifies an export output format.
type Format string

const (
	FormatCSV           Format = "csv"
	FormatJSON          Format = "json"
	FormatTrackerImport Format = "tracker_import"
	FormatWiki          Format = "wiki"
)

// Formats lists every supported export format.
//
//nolint:gochecknoglobals // Fixed enumeration for command dispatch.
var Formats = []Format{FormatCSV, FormatJSON, FormatTrackerImport, FormatWiki}

// csvHeader is the column layout of the full CSV export.
//
//nolint:gochecknoglobals // Fixed column layout.
var csvHeader = []string{
	"id", "type", "summary", "description", "priority",
	"labels", "components", "parent", "story points",
	"time estimate", "complexity", "confidence",
}

// trackerHeader is the column layout most issue trackers accept on import.
//
//nolint:gochecknoglobals // Fixed column layout.
var trackerHeader = []string{
	"issue type", "summary", "description", "priority", "labels", "components",
}

// Export renders the collection in the requested format.
func Export(collection *session.TicketCollection, format Format) (string, error) {
	switch format {
	case FormatCSV:
		return CSV(collection)
	case FormatJSON:
		return JSON(collection)
	case FormatTrackerImport:
		return TrackerImportCSV(collection)
	case FormatWiki:
		return Wiki(collection), nil
	default:
		return "", llmerrors.NewError(llmerrors.ErrorTypeExport, fmt.Sprintf("unsupported export format: %s", format))
	}
}

// CSV renders every ticket with the full column set. Fields containing
// commas, quotes, or newlines are quoted with doubled inner quotes per RFC
// 4180, which encoding/csv handles.
func CSV(collection *session.TicketCollection) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return "", llmerrors.NewErrorWithCause(llmerrors.ErrorTypeExport, err, "failed to write CSV header")
	}
	for _, ticket := range collection.All() {
		record := []string{
			ticket.ID,
			string(ticket.Type),
			ticket.Summary,
			ticket.Description,
			string(ticket.Priority),
			strings.Join(ticket.Labels, ";"),
			strings.Join(ticket.Components, ";"),
			ticket.ParentID,
			storyPoints(&ticket),
			ticket.Effort.TimeEstimate,
			ticket.Effort.Complexity,
			ticket.Effort.Confidence,
		}
		if err := w.Write(record); err != nil {
			return "", llmerrors.NewErrorWithCause(llmerrors.ErrorTypeExport, err, "failed to write CSV record")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", llmerrors.NewErrorWithCause(llmerrors.ErrorTypeExport, err, "failed to flush CSV")
	}
	return buf.String(), nil
}

// TrackerImportCSV renders the reduced column set issue trackers accept as a
// bulk import.
func TrackerImportCSV(collection *session.TicketCollection) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(trackerHeader); err != nil {
		return "", llmerrors.NewErrorWithCause(llmerrors.ErrorTypeExport, err, "failed to write CSV header")
	}
	for _, ticket := range collection.All() {
		record := []string{
			trackerIssueType(ticket.Type),
			ticket.Summary,
			ticket.Description,
			trackerPriority(ticket.Priority),
			strings.Join(ticket.Labels, " "),
			strings.Join(ticket.Components, " "),
		}
		if err := w.Write(record); err != nil {
			return "", llmerrors.NewErrorWithCause(llmerrors.ErrorTypeExport, err, "failed to write CSV record")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", llmerrors.NewErrorWithCause(llmerrors.ErrorTypeExport, err, "failed to flush CSV")
	}
	return buf.String(), nil
}

// JSON renders the collection as indented JSON.
func JSON(collection *session.TicketCollection) (string, error) {
	data, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return "", llmerrors.NewErrorWithCause(llmerrors.ErrorTypeExport, err, "failed to serialize tickets")
	}
	return string(data), nil
}

// Wiki renders the collection as wiki markup: one heading per epic with its
// children beneath it, then any remaining parentless tickets.
func Wiki(collection *session.TicketCollection) string {
	var b strings.Builder
	b.WriteString("h1. Generated Tickets\n\n")

	children := make(map[string][]session.Ticket)
	var orphans []session.Ticket
	for _, ticket := range collection.All() {
		if ticket.Type == session.TicketEpic {
			continue
		}
		if ticket.ParentID != "" {
			children[ticket.ParentID] = append(children[ticket.ParentID], ticket)
		} else {
			orphans = append(orphans, ticket)
		}
	}

	for i := range collection.Epics {
		epic := &collection.Epics[i]
		fmt.Fprintf(&b, "h2. %s\n", epic.Summary)
		if epic.Description != "" {
			b.WriteString(epic.Description)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		for _, child := range children[epic.ID] {
			writeWikiTicket(&b, &child)
		}
	}

	if len(orphans) > 0 {
		b.WriteString("h2. Other Tickets\n\n")
		for i := range orphans {
			writeWikiTicket(&b, &orphans[i])
		}
	}
	return b.String()
}

func writeWikiTicket(b *strings.Builder, ticket *session.Ticket) {
	fmt.Fprintf(b, "* *%s* [%s, %s]", ticket.Summary, ticket.Type, ticket.Priority)
	if ticket.Description != "" {
		fmt.Fprintf(b, " - %s", ticket.Description)
	}
	b.WriteString("\n")
	for _, criterion := range ticket.AcceptanceCriteria {
		fmt.Fprintf(b, "** %s\n", criterion)
	}
}

func storyPoints(ticket *session.Ticket) string {
	if ticket.Effort.StoryPoints == 0 {
		return ""
	}
	return strconv.Itoa(ticket.Effort.StoryPoints)
}

// trackerIssueType maps internal ticket types to conventional tracker names.
func trackerIssueType(t session.TicketType) string {
	switch t {
	case session.TicketEpic:
		return "Epic"
	case session.TicketStory:
		return "Story"
	case session.TicketBug:
		return "Bug"
	default:
		return "Task"
	}
}

// trackerPriority maps internal priorities to conventional tracker names.
func trackerPriority(p session.Priority) string {
	switch p {
	case session.PriorityCritical:
		return "Highest"
	case session.PriorityHigh:
		return "High"
	case session.PriorityLow:
		return "Low"
	default:
		return "Medium"
	}
}
