package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type episodeUpdate struct {
	Candidate string
	Episode   int
	Seed      int64
	Steps     int
	Score     int
	Fitness   float64
}

type doneMsg struct{ err error }

type tickMsg time.Time

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type model struct {
	total     int
	finished  int
	steps     int64
	startTime time.Time
	recent    []string
	best      map[string]float64
	updates   chan episodeUpdate
	done      bool
	err       error
}

func initialModel(updates chan episodeUpdate, total int) model {
	return model{
		total:     total,
		startTime: time.Now(),
		best:      map[string]float64{},
		updates:   updates,
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForUpdate(updates chan episodeUpdate) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		m.steps = totalSteps.Load()
		return m, tickCmd()
	case episodeUpdate:
		m.finished++
		if b, ok := m.best[msg.Candidate]; !ok || msg.Fitness > b {
			m.best[msg.Candidate] = msg.Fitness
		}
		line := fmt.Sprintf("%s ep %d (seed %d): steps %d, score %d, fitness %.1f",
			msg.Candidate, msg.Episode, msg.Seed, msg.Steps, msg.Score, msg.Fitness)
		m.recent = append([]string{line}, m.recent...)
		if len(m.recent) > 10 {
			m.recent = m.recent[:10]
		}
		return m, waitForUpdate(m.updates)
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	elapsed := time.Since(m.startTime)
	stepsPerSec := 0.0
	if elapsed.Seconds() >= 1 {
		stepsPerSec = float64(m.steps) / elapsed.Seconds()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("neatsnake evaluate") + "\n\n")
	fmt.Fprintf(&b, "Episodes:   %d / %d\n", m.finished, m.total)
	fmt.Fprintf(&b, "Steps:      %d\n", m.steps)
	fmt.Fprintf(&b, "Duration:   %s\n", elapsed.Round(time.Second))
	fmt.Fprintf(&b, "Steps/Sec:  %.0f\n\n", stepsPerSec)

	if len(m.best) > 0 {
		b.WriteString("Best episode so far:\n")
		for _, id := range slices.Sorted(maps.Keys(m.best)) {
			fmt.Fprintf(&b, "  %-30s %.1f\n", id, m.best[id])
		}
		b.WriteString("\n")
	}

	b.WriteString("Recent Episodes:\n")
	for _, l := range m.recent {
		b.WriteString(l + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("Press q to quit.") + "\n")
	return b.String()
}
