package app

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AJMerr/gopamix/internal/entry"
)

func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.tabs())
	b.WriteString("\n\n")

	// Content
	b.WriteString(m.st.Body.Render(m.listView()))
	b.WriteString("\n")

	// Footer/help
	if m.lastErr != nil {
		b.WriteString(m.st.Error.Render(fmt.Sprintf("ERR: %v", m.lastErr)))
		b.WriteString("\n")
	}
	b.WriteString(m.st.Footer.Render(m.help.View(m.keys)))
	return b.String()
}

func (m Model) header() string {
	server := "default server"
	if m.server.Hostname != "" {
		server = m.server.Hostname
	}
	if m.server.PackageVersion != "" {
		server += " (" + m.server.PackageName + " " + m.server.PackageVersion + ")"
	}
	line := fmt.Sprintf("%s  •  %s  •  %s",
		m.st.AppTitle.Render("gopamix"),
		m.st.HeaderBadge.Render(m.state.String()),
		m.st.HeaderNow.Render(server),
	)
	return m.st.Header.Render(line)
}

func (m Model) tabs() string {
	parts := make([]string, 0, tabCount)
	for t := Tab(0); t < tabCount; t++ {
		label := fmt.Sprintf("%s (%d)", t, len(m.entries.ByType(t.Type())))
		if t == m.tab {
			parts = append(parts, m.st.TabActive.Render(label))
		} else {
			parts = append(parts, m.st.TabInactive.Render(label))
		}
	}
	return strings.Join(parts, "")
}

func (m Model) listView() string {
	rows := m.visible()
	if len(rows) == 0 {
		if m.state == stateConnecting {
			return "(connecting…)"
		}
		return fmt.Sprintf("(no %s entries)", strings.ToLower(m.tab.String()))
	}

	nameW := m.width / 3
	if nameW < 12 {
		nameW = 12
	}
	barW := (m.width - nameW - 16) / 2
	if barW < 5 {
		barW = 5
	}
	bar, peak := m.bar, m.peak
	bar.Width, peak.Width = barW, barW

	var b strings.Builder
	start := m.offset[m.tab]
	for i, e := range rows {
		cur := "  "
		if start+i == m.cursor[m.tab] {
			cur = m.st.Cursor.Render("> ")
		}
		name := fit(e.Name, nameW)
		if e.Corked || e.Mute {
			name = m.st.ListRowDim.Render(name)
		} else {
			name = m.st.ListRow.Render(name)
		}

		if e.ID.Type == entry.TypeCard {
			fmt.Fprintf(&b, "%s%s %s\n", cur, name, m.st.ListRowDim.Render(profileLabel(e.Card)))
			continue
		}

		pct := e.Volume.Percent()
		mute := "  "
		if e.Mute {
			mute = m.st.MuteBadge.Render("M ")
		}
		fmt.Fprintf(&b, "%s%s %s%s %s%s\n",
			cur, name,
			bar.ViewAs(float64(pct)/float64(m.deps.MaxVolume)),
			m.st.Percent.Render(fmt.Sprintf("%d%%", pct)),
			mute,
			peak.ViewAs(float64(e.Peak)),
		)
	}
	if end := start + len(rows); end < len(m.list()) {
		fmt.Fprintf(&b, "  …and %d more\n", len(m.list())-end)
	}
	return strings.TrimRight(b.String(), "\n")
}

func profileLabel(c *entry.CardInfo) string {
	if c == nil {
		return ""
	}
	for _, p := range c.Profiles {
		if p.Name == c.Active && p.Description != "" {
			return "profile: " + p.Description
		}
	}
	return "profile: " + c.Active
}

// fit pads or cuts s to exactly w columns.
func fit(s string, w int) string {
	r := []rune(s)
	if len(r) > w {
		return string(r[:w-1]) + "…"
	}
	return s + strings.Repeat(" ", w-len(r))
}

var _ tea.Model = (*Model)(nil)
