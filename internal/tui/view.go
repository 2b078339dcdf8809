package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"codeberg.org/freetier/gateway/api/rest/status"
	"codeberg.org/freetier/gateway/internal/keyselect"
)

const barWidth = 30

func render(m *Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("free-tier gateway"))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(m.client.endpoint))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("unreachable: " + m.err.Error()))
		b.WriteString("\n")

		if m.status != nil {
			b.WriteString(infoStyle.Render("last known state:"))
			b.WriteString("\n")
			b.WriteString(borderStyle.Render(statusPanel(m.status, false)))
		}

	case m.status == nil:
		b.WriteString(infoStyle.Render("waiting for first poll..."))

	default:
		b.WriteString(borderStyle.Render(statusPanel(m.status, m.healthy)))
	}

	b.WriteString("\n")
	b.WriteString(footer(m))

	return b.String()
}

func statusPanel(s *status.Response, healthy bool) string {
	rows := []string{
		row("health", healthLabel(healthy)),
		row("tier", tierLabel(s.Tier)),
		row("free available", yesNo(s.FreeAvailable)),
		row("daily quota", quotaLabel(s.DailyRemaining, s.DailyLimit)),
		row("resets", resetLabel(s.ResetAt, time.Now())),
		row("balance known", yesNo(s.BalanceKnown)),
		row("zero retention", yesNo(s.ZeroRetentionEnabled)),
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func healthLabel(healthy bool) string {
	if healthy {
		return okStyle.Render("ok")
	}

	return errorStyle.Render("down")
}

func tierLabel(tier string) string {
	switch keyselect.Tier(tier) {
	case keyselect.TierPaidCentral:
		return okStyle.Render(tier)
	case keyselect.TierFree:
		return warnStyle.Render(tier)
	default:
		return valueStyle.Render(tier)
	}
}

func yesNo(v bool) string {
	if v {
		return valueStyle.Render("yes")
	}

	return dimStyle.Render("no")
}

// renders "remaining/limit" with a bar, or "unlimited" when limiting is off
func quotaLabel(remaining, limit *int) string {
	if remaining == nil || limit == nil {
		return valueStyle.Render("unlimited")
	}

	text := fmt.Sprintf("%d/%d ", *remaining, *limit)

	style := valueStyle
	if *remaining == 0 {
		style = errorStyle
	}

	return style.Render(text) + quotaBar(*remaining, *limit, barWidth)
}

func quotaBar(remaining, limit, width int) string {
	if limit <= 0 || width <= 0 {
		return ""
	}

	filled := remaining * width / limit
	filled = max(0, min(filled, width))

	return barFillStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func resetLabel(resetAt string, now time.Time) string {
	t, err := time.Parse(time.RFC3339, resetAt)
	if err != nil {
		return dimStyle.Render("unknown")
	}

	until := t.Sub(now).Round(time.Minute)
	if until < 0 {
		until = 0
	}

	return valueStyle.Render(fmt.Sprintf("%s (in %s)", t.UTC().Format("15:04 MST"), until))
}

func footer(m *Model) string {
	state := "idle"
	if m.fetching {
		state = "polling"
	}

	last := "never"
	if !m.lastPoll.IsZero() {
		last = m.lastPoll.Format("15:04:05")
	}

	return helpStyle.Render(fmt.Sprintf("%s · last poll %s · every %s · r refresh · q quit", state, last, m.interval))
}
