package status

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"

	"github.com/bnema/agentmon/internal/application"
	"github.com/bnema/agentmon/internal/domain"
)

type RenderOptions struct {
	Now        time.Time
	StaleAfter time.Duration
	Plain bool
}

const (
	barWidth    = 24
	maxDirWidth = 48
)

func renderView(overview application.Overview, opts RenderOptions, s styles) string {
	active := 0
	for _, view := range overview.Sessions {
		if view.Session.Active() {
			active++
		}
	}

	lines := []string{
		s.title.Render("Agent Sessions"),
		s.header.Render(fmt.Sprintf("sessions: %d (active %d)", len(overview.Sessions), active)),
	}

	if len(overview.Sessions) == 0 {
		lines = append(lines, s.empty.Render("No sessions tracked."))
	} else {
		lines = append(lines, s.section.Render(sessionTable(overview.Sessions, opts, s)))
	}

	if overview.Usage != nil {
		lines = append(lines, s.section.Render(usageBlock(*overview.Usage, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func sessionTable(views []application.SessionView, opts RenderOptions, s styles) string {
	rows := make([][]string, 0, len(views))
	for _, view := range views {
		rows = append(rows, []string{
			statusLabel(view),
			view.Session.ID,
			strconv.FormatUint(uint64(view.Session.Priority), 10),
			formatElapsed(view.Elapsed, opts.Now),
			workingDir(view.Session.WorkingDir),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.faint).
		Headers("STATUS", "SESSION", "PRI", "FOR", "DIR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.tableHeader
			}
			if col == 0 && row >= 0 && row < len(views) {
				view := views[row]
				if view.Inactive {
					return s.faint
				}
				if style, ok := s.statusColors[view.Session.Status]; ok {
					return style
				}
			}
			return s.cell
		}).
		String()
}

func statusLabel(view application.SessionView) string {
	label := string(view.Session.Status)
	if view.Inactive {
		label += " (inactive)"
	}
	return label
}

func workingDir(dir *string) string {
	if dir == nil || *dir == "" {
		return "-"
	}
	return truncate.StringWithTail(*dir, maxDirWidth, "...")
}

func formatElapsed(elapsed time.Duration, now time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	return strings.TrimSpace(humanize.RelTime(now.Add(-elapsed), now, "", ""))
}

func usageBlock(usage domain.Usage, opts RenderOptions, s styles) string {
	title := "Usage"
	if plan := strings.TrimSpace(usage.PlanType); plan != "" {
		title = fmt.Sprintf("Usage (%s)", plan)
	}
	if !opts.Now.IsZero() && !usage.CapturedAt.IsZero() {
		title += " " + s.header.Render("captured "+humanize.RelTime(usage.CapturedAt, opts.Now, "ago", "from now"))
	}

	parts := []string{s.title.Render(title)}
	if len(usage.Windows) == 0 {
		parts = append(parts, s.detail.Render("limit: n/a"))
	}
	for _, window := range usage.Windows {
		parts = append(parts, limitLine(window, opts, s))
	}

	if !opts.Now.IsZero() && opts.StaleAfter > 0 && usage.IsStale(opts.Now, opts.StaleAfter) {
		parts = append(parts, s.warning.Render("[stale]"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func limitLine(window domain.UsageWindow, opts RenderOptions, s styles) string {
	leftPercent := window.LeftPercent()
	label := s.limitKey.Render(fmt.Sprintf("%s limit:", windowLabel(window)))

	meta := fmt.Sprintf("%2.0f%% left", leftPercent)
	reset := fmt.Sprintf("(%s)", formatResetRelative(window.ResetsAt, opts.Now))
	if s.colored {
		meta = lipgloss.NewStyle().Foreground(interpolateColor(leftPercent, 0, 100)).Render(meta)
		resetColor := resetTimeColor(window.ResetsAt, opts.Now, time.Duration(window.WindowSeconds)*time.Second)
		reset = lipgloss.NewStyle().Foreground(resetColor).Render(reset)
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		label,
		" ",
		renderProgressBar(window.UsedPercent, barWidth, s),
		" ",
		meta,
		" ",
		reset,
	)
}

func windowLabel(window domain.UsageWindow) string {
	if window.Label != "" {
		return window.Label
	}
	if label := domain.WindowLabel(window.WindowSeconds); label != "" {
		return label
	}
	return "unknown"
}

func renderProgressBar(usedPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	used := clampPercent(usedPercent)
	leftFraction := (100.0 - used) / 100.0
	filled := int(math.Round(float64(width) * leftFraction))
	filled = max(0, min(width, filled))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	return max(0, min(100, v))
}

func formatResetAt(resetsAt, now time.Time) string {
	if resetsAt.IsZero() {
		return "unknown"
	}
	if now.IsZero() {
		return resetsAt.Format(time.RFC3339)
	}

	yearA, monthA, dayA := now.Date()
	yearB, monthB, dayB := resetsAt.Date()
	if yearA == yearB && monthA == monthB && dayA == dayB {
		return resetsAt.Format("15:04")
	}

	return resetsAt.Format("15:04 on 02 Jan")
}

func formatResetRelative(resetsAt, now time.Time) string {
	if now.IsZero() || resetsAt.IsZero() {
		return "resets " + formatResetAt(resetsAt, now)
	}

	if resetsAt.Before(now) {
		return "reset now"
	}

	remaining := resetsAt.Sub(now)
	if remaining < 24*time.Hour {
		hours := max(1, int(math.Ceil(remaining.Hours())))
		suffix := "hours"
		if hours == 1 {
			suffix = "hour"
		}
		return fmt.Sprintf("resets in %d %s (%s)", hours, suffix, resetsAt.Format("15:04"))
	}

	days := max(1, int(math.Ceil(remaining.Hours()/24)))
	suffix := "days"
	if days == 1 {
		suffix = "day"
	}

	return fmt.Sprintf("resets in %d %s (%s)", days, suffix, resetsAt.Format("15:04 on 02 Jan"))
}

func interpolateColor(value, lo, hi float64) lipgloss.Color {
	if hi == lo {
		return lipgloss.Color("255")
	}

	normalized := max(0, min(1, (value-lo)/(hi-lo)))
	return lipgloss.Color(strconv.Itoa(int(240 + 15*normalized)))
}

func resetTimeColor(resetsAt, now time.Time, window time.Duration) lipgloss.Color {
	if now.IsZero() || resetsAt.Before(now) || window <= 0 {
		return lipgloss.Color("255")
	}

	inverted := window.Seconds() - resetsAt.Sub(now).Seconds()
	return interpolateColor(inverted, 0, window.Seconds())
}
