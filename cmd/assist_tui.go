// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/multierr"

	"github.com/abilitylab/armctl/pkg/control"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// Dashboard model
type assistModel struct {
	title     string
	cancel    context.CancelFunc
	status    control.Status
	hasStatus bool
	movement  progress.Model
	events    []eventLogEntry
	maxEvents int
	width     int
	height    int
	stopping  bool
	done      bool
	result    loopDoneMsg
}

// Messages
type statusMsg control.Status
type loopDoneMsg struct {
	summary control.Summary
	err     error
}

func newAssistModel(title string, cancel context.CancelFunc) assistModel {
	return assistModel{
		title:     title,
		cancel:    cancel,
		movement:  progress.New(progress.WithDefaultGradient()),
		maxEvents: 50,
		width:     80,
		height:    24,
	}
}

func (m assistModel) Init() tea.Cmd {
	return nil
}

func (m assistModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.stopping {
				m.stopping = true
				m.addEvent("Stop requested, leaving motor mode...", false)
				m.cancel()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.movement.Width = msg.Width - 20
		if m.movement.Width > 60 {
			m.movement.Width = 60
		}

	case statusMsg:
		prev := m.status
		m.status = control.Status(msg)
		if m.status.ZeroTorque && (!m.hasStatus || !prev.ZeroTorque) {
			m.addEvent("No telemetry, commanding zero torque", true)
		}
		m.hasStatus = true

	case loopDoneMsg:
		m.done = true
		m.result = msg
		return m, tea.Quit
	}

	return m, nil
}

func (m *assistModel) addEvent(message string, isError bool) {
	m.events = append(m.events, eventLogEntry{timestamp: time.Now(), message: message, isError: isError})
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

func (m assistModel) View() string {
	if m.done {
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

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
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
	s.WriteString(titleStyle.Render("ARMCTL - " + m.title))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s + %s @ %.0f Hz | Press 'q' to stop",
		cfg.Shoulder, cfg.Elbow, cfg.Frequency)))
	s.WriteString("\n\n")

	if !m.hasStatus {
		s.WriteString(warningStyle.Render("⏳ Waiting for the first tick..."))
		s.WriteString("\n")
		return s.String()
	}
	st := m.status

	// Movement progress
	s.WriteString(labelStyle.Render("Movement: "))
	if st.Target.Row >= 0 {
		s.WriteString(m.movement.ViewAs(st.Target.Percentage / 100))
		s.WriteString(headerStyle.Render(fmt.Sprintf("  row %d", st.Target.Row)))
	} else {
		s.WriteString(headerStyle.Render("-"))
	}
	s.WriteString("\n\n")

	// Joints
	joints := strings.Builder{}
	joints.WriteString(headerStyle.Render(fmt.Sprintf("%-10s %10s %10s %10s %10s", "", "target", "measured", "angle", "velocity")))
	joints.WriteString("\n")
	targets := [2]float64{st.Target.Tau1, st.Target.Tau2}
	for i, name := range []string{"Shoulder", "Elbow"} {
		j := st.Joints[i]
		row := fmt.Sprintf("%10.2f %10.2f %9.2f° %10.2f", targets[i], j.Torque, j.Degrees(), j.Velocity)
		if j.Valid {
			row = valueStyle.Render(row)
		} else {
			row = errorStyle.Render(row)
		}
		joints.WriteString(labelStyle.Render(fmt.Sprintf("%-10s ", name)) + row + "\n")
	}
	joints.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("EE:"), valueStyle.Render(fmt.Sprintf("x=%.3f m y=%.3f m", st.Target.Pose.X, st.Target.Pose.Y)),
		labelStyle.Render("Elapsed:"), valueStyle.Render(fmt.Sprintf("%.1f s (tick %d)", st.Elapsed.Seconds(), st.Tick)),
	))
	s.WriteString(boxStyle.Render(joints.String()))
	s.WriteString("\n\n")

	// Events
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	logHeight := m.height - 16
	if logHeight < 3 {
		logHeight = 3
	}
	startIdx := len(m.events) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}
	logContent := strings.Builder{}
	if len(m.events) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, e := range m.events[startIdx:] {
		ts := headerStyle.Render(e.timestamp.Format("15:04:05.000"))
		if e.isError {
			logContent.WriteString(ts + " " + errorStyle.Render("✗ "+e.message) + "\n")
		} else {
			logContent.WriteString(ts + " " + warningStyle.Render("ℹ "+e.message) + "\n")
		}
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))
	return s.String()
}

// runAssistTUI runs loop behind the dashboard. The loop keeps its own
// goroutine; status updates are dropped rather than delaying a tick.
func runAssistTUI(ctx context.Context, cancel context.CancelFunc, loop *control.Loop, title string) (control.Summary, error) {
	p := tea.NewProgram(newAssistModel(title, cancel), tea.WithAltScreen())

	updates := make(chan control.Status, 1)
	loop.Status = func(s control.Status) {
		select {
		case updates <- s:
		default:
		}
	}
	go func() {
		for s := range updates {
			p.Send(statusMsg(s))
		}
	}()

	result := make(chan loopDoneMsg, 1)
	go func() {
		sum, err := loop.Run(ctx)
		close(updates)
		done := loopDoneMsg{summary: sum, err: err}
		result <- done
		p.Send(done)
	}()

	_, tuiErr := p.Run()
	cancel()
	done := <-result
	if tuiErr != nil {
		return done.summary, multierr.Append(done.err, fmt.Errorf("TUI error: %v", tuiErr))
	}
	return done.summary, done.err
}
