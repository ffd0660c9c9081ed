// ABOUTME: Replay dashboard TUI for live run supervision
// ABOUTME: Real-time status display using bubbletea and lipgloss
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Dashboard manages the replay dashboard TUI
type Dashboard struct {
	program  *tea.Program
	updates  chan Status
	quitChan chan struct{} // Signal to stop the replay
}

// Status holds replay state for the dashboard
type Status struct {
	RunID             string
	CurrentFile       string
	SamplingFrequency float64
	Channels          int
	Datatype          string
	Frames            int64
	Elapsed           time.Duration
	Listeners         int
	StreamAddr        string
	Looping           bool
	Done              bool
}

// dashModel is the bubbletea model for the replay dashboard
type dashModel struct {
	status    Status
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg Status

func (m dashModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = Status(msg)
		if m.status.Done {
			return m, tea.Quit
		}
		return m, nil
	}

	return m, nil
}

func (m dashModel) View() string {
	if m.quitting {
		return "Stopping replay...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("MegaMicros Replay"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Run: "))
	b.WriteString(valueStyle.Render(m.status.RunID))
	if m.status.Looping {
		b.WriteString(valueStyle.Render(" (looping)"))
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("File: "))
	b.WriteString(valueStyle.Render(m.status.CurrentFile))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Format: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d channels, %.0f Hz, %s",
		m.status.Channels, m.status.SamplingFrequency, m.status.Datatype)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Frames: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.status.Frames)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Elapsed: "))
	b.WriteString(valueStyle.Render(m.status.Elapsed.Round(time.Second).String()))
	b.WriteString("\n")

	if m.status.StreamAddr != "" {
		b.WriteString(headerStyle.Render("Stream: "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%s (%d listeners)",
			m.status.StreamAddr, m.status.Listeners)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to stop"))

	return b.String()
}

// NewDashboard creates a replay dashboard
func NewDashboard() *Dashboard {
	return &Dashboard{
		updates:  make(chan Status, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the dashboard until the replay ends or the user quits.
// It blocks; run the replay in another goroutine.
func (d *Dashboard) Start(initial Status) error {
	m := dashModel{
		status:    initial,
		startTime: time.Now(),
		quitChan:  d.quitChan,
	}

	d.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for status := range d.updates {
			if d.program != nil {
				d.program.Send(statusMsg(status))
			}
		}
	}()

	_, err := d.program.Run()
	return err
}

// Update sends a status update to the dashboard
func (d *Dashboard) Update(status Status) {
	select {
	case d.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the dashboard
func (d *Dashboard) Stop() {
	if d.program != nil {
		d.program.Quit()
	}
	close(d.updates)
}

// QuitChan returns the channel that signals when the user wants to stop
func (d *Dashboard) QuitChan() <-chan struct{} {
	return d.quitChan
}
