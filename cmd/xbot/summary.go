package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/session"
	"github.com/dlps55195/x-bot-worker/internal/types"

	"github.com/charmbracelet/lipgloss"
)

var (
	successColor = lipgloss.Color("#8BC34A")
	warningColor = lipgloss.Color("#FFC107")
	failColor    = lipgloss.Color("#e53935")
	mutedColor   = lipgloss.Color("#6b7280")

	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
)

// table renders static rows with aligned columns.
type table struct {
	title   string
	headers []string
	rows    [][]string
	// colors paints the status column of a row; nil cells stay plain.
	colors []lipgloss.TerminalColor
}

func (t *table) addRow(color lipgloss.TerminalColor, cells ...string) {
	t.rows = append(t.rows, cells)
	t.colors = append(t.colors, color)
}

func (t *table) view() string {
	var sb strings.Builder
	if t.title != "" {
		sb.WriteString(titleStyle.Render(t.title))
		sb.WriteString("\n")
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	for i := range widths {
		widths[i] += 2
	}

	sep := mutedStyle.Render("|")
	for i, h := range t.headers {
		sb.WriteString(headerStyle.Width(widths[i]).Render(h))
		if i < len(t.headers)-1 {
			sb.WriteString(sep)
		}
	}
	sb.WriteString("\n")

	total := len(t.headers) - 1
	for _, w := range widths {
		total += w
	}
	sb.WriteString(mutedStyle.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")

	for r, row := range t.rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			style := cellStyle.Width(widths[i])
			if i == 2 && t.colors[r] != nil {
				style = style.Foreground(t.colors[r])
			}
			sb.WriteString(style.Render(cell))
			if i < len(row)-1 {
				sb.WriteString(sep)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func profileColor(s session.ProfileStatus) lipgloss.TerminalColor {
	switch s {
	case session.ProfileCompleted:
		return successColor
	case session.ProfileAuthExpired, session.ProfileCancelled:
		return warningColor
	default:
		return failColor
	}
}

func listColor(s session.ListStatus) lipgloss.TerminalColor {
	switch s {
	case session.ListCompleted:
		return successColor
	case session.ListSkipped, session.ListCancelled, session.ListAuthExpired:
		return warningColor
	default:
		return failColor
	}
}

// renderSummary formats the end-of-pass report: one row per profile, then
// one row per list with its outcome counts.
func renderSummary(r session.Report) string {
	t := &table{
		title:   fmt.Sprintf("Pass %s (%s)", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Second)),
		headers: []string{"profile", "list", "status", "found", "sent", "unverified", "gen fail", "ui error"},
	}
	for _, p := range r.Profiles {
		t.addRow(profileColor(p.Status), p.ProfileID, "", string(p.Status), "", strconv.Itoa(p.Submitted()), "", "", "")
		for _, l := range p.Lists {
			counts := outcomeCounts(l.Outcomes)
			t.addRow(listColor(l.Status), "", l.URL, string(l.Status),
				strconv.Itoa(l.Candidates),
				strconv.Itoa(counts[types.StatusSubmitted]),
				strconv.Itoa(counts[types.StatusVerificationFailed]),
				strconv.Itoa(counts[types.StatusGenerationFailed]),
				strconv.Itoa(counts[types.StatusInteractionError]))
		}
	}

	var sb strings.Builder
	if len(r.Profiles) == 0 {
		sb.WriteString(titleStyle.Render(t.title))
		sb.WriteString("\n")
		sb.WriteString(mutedStyle.Render("no active profiles"))
		sb.WriteString("\n")
	} else {
		sb.WriteString(t.view())
	}
	if r.Err != nil {
		sb.WriteString(lipgloss.NewStyle().Foreground(failColor).Render("error: " + r.Err.Error()))
		sb.WriteString("\n")
	}
	if r.Cancelled {
		sb.WriteString(lipgloss.NewStyle().Foreground(warningColor).Render("pass interrupted"))
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "%d replies submitted\n", r.Submitted())
	return sb.String()
}

func outcomeCounts(outcomes []types.ReplyOutcome) map[types.Status]int {
	counts := make(map[types.Status]int, 4)
	for _, o := range outcomes {
		counts[o.Status]++
	}
	return counts
}
