// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
	"github.com/Thermoquad/hmtlnode/pkg/node"
	"github.com/Thermoquad/hmtlnode/pkg/program"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for informational events
}

// TUI model
type model struct {
	title     string
	started   time.Time
	updates   <-chan node.Status
	status    node.Status
	hasStatus bool
	slots     table.Model
	events    []eventEntry
	maxEvents int
	width     int
	height    int
	quitting  bool
}

// Messages
type statusMsg node.Status

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	days := seconds / 86400
	hours := seconds / 3600 % 24
	minutes := seconds / 60 % 60
	seconds %= 60

	parts := []string{}
	for _, p := range []struct {
		n    int64
		unit string
	}{{days, "day"}, {hours, "hour"}, {minutes, "minute"}, {seconds, "second"}} {
		switch {
		case p.n == 1:
			parts = append(parts, "1 "+p.unit)
		case p.n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", p.n, p.unit))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(title string, updates <-chan node.Status) model {
	slots := table.New(
		table.WithColumns([]table.Column{
			{Title: "Output", Width: 6},
			{Title: "Kind", Width: 8},
			{Title: "Device", Width: 28},
			{Title: "Program", Width: 14},
			{Title: "Flags", Width: 8},
		}),
		table.WithHeight(8),
	)
	return model{
		title:     title,
		started:   time.Now(),
		updates:   updates,
		slots:     slots,
		events:    make([]eventEntry, 0),
		maxEvents: 100,
		width:     80,
		height:    24,
	}
}

func waitForStatus(updates <-chan node.Status) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-updates)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		waitForStatus(m.updates),
		tea.EnterAltScreen,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case statusMsg:
		m.applyStatus(node.Status(msg))
		return m, waitForStatus(m.updates)
	}

	var cmd tea.Cmd
	m.slots, cmd = m.slots.Update(msg)
	return m, cmd
}

// applyStatus records what changed since the previous snapshot
func (m *model) applyStatus(s node.Status) {
	if m.hasStatus {
		prev := m.status
		if prev.Address != s.Address {
			m.addEvent(fmt.Sprintf("Address changed %s -> %s",
				hmtl.FormatAddress(prev.Address), hmtl.FormatAddress(s.Address)), false)
		}
		for i, slot := range s.Slots {
			if i < len(prev.Slots) && prev.Slots[i].Program != slot.Program {
				m.addEvent(fmt.Sprintf("Output %d: %s -> %s", i, prev.Slots[i].Program, slot.Program), false)
			}
		}
		if prev.SerialErr == nil && s.SerialErr != nil {
			m.addEvent(fmt.Sprintf("Serial line lost: %v", s.SerialErr), true)
		}
		if d := s.Stats.Dropped - prev.Stats.Dropped; d > 0 {
			m.addEvent(fmt.Sprintf("%d message(s) dropped", d), true)
		}
		if d := s.Stats.Skipped - prev.Stats.Skipped; d > 0 {
			m.addEvent(fmt.Sprintf("%d forward(s) skipped, message larger than socket buffer", d), true)
		}
	} else {
		m.addEvent("Node running", false)
	}
	m.status = s
	m.hasStatus = true
	m.slots.SetRows(slotRows(s.Slots))
}

func slotRows(slots []program.SlotStatus) []table.Row {
	rows := make([]table.Row, 0, len(slots))
	for _, s := range slots {
		device := s.Device
		if device == "" {
			device = "(unbound)"
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", s.Output),
			hmtl.FormatOutputKind(s.Kind),
			device,
			s.Program,
			s.Flags.String(),
		})
	}
	return rows
}

func (m *model) addEvent(message string, isError bool) {
	m.events = append(m.events, eventEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("HMTL NODE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Press 'q' to quit", m.title)))
	s.WriteString("\n\n")

	if !m.hasStatus {
		s.WriteString(warningStyle.Render("Waiting for node status..."))
		s.WriteString("\n")
		return s.String()
	}

	st := m.status.Stats
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("Address:"), statsValueStyle.Render(hmtl.FormatAddress(m.status.Address)),
		statsLabelStyle.Render("Uptime:"), statsValueStyle.Render(formatUptime(m.status.At.Sub(m.started))),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Received:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Received)),
		statsLabelStyle.Render("Processed:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Processed)),
		statsLabelStyle.Render("Forwarded:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Forwarded)),
		statsLabelStyle.Render("Acks:"), statsValueStyle.Render(fmt.Sprintf("%d", st.AcksSent)),
	))
	dropped := statsValueStyle.Render(fmt.Sprintf("%d", st.Dropped+st.Skipped))
	if st.Dropped+st.Skipped > 0 {
		dropped = errorStyle.Render(fmt.Sprintf("%d dropped, %d skipped", st.Dropped, st.Skipped))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Errors:"), dropped,
		statsLabelStyle.Render("Flushes:"), statsValueStyle.Render(fmt.Sprintf("%d", m.status.Flushes)),
	))
	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Outputs:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.slots.View()))
	s.WriteString("\n\n")

	if len(m.status.Sensors) > 0 {
		sensorContent := strings.Builder{}
		for i, v := range m.status.Sensors {
			if i > 0 {
				sensorContent.WriteString("   ")
			}
			sensorContent.WriteString(fmt.Sprintf("%s %s",
				statsLabelStyle.Render(fmt.Sprintf("Sensor 0x%02X:", v.Type)),
				statsValueStyle.Render(fmt.Sprintf("%d", v.Value)),
			))
		}
		s.WriteString(boxStyle.Render(sensorContent.String()))
		s.WriteString("\n\n")
	}

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 24
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.events) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	logContent := strings.Builder{}
	for i := startIdx; i < len(m.events); i++ {
		entry := m.events[i]
		timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
		if entry.isError {
			logContent.WriteString(fmt.Sprintf("%s %s\n",
				headerStyle.Render(timestamp),
				errorStyle.Render("✗ "+entry.message),
			))
		} else {
			logContent.WriteString(fmt.Sprintf("%s %s\n",
				headerStyle.Render(timestamp),
				warningStyle.Render("ℹ "+entry.message),
			))
		}
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
