package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"alphazero/alphazero"
)

type tuiModel struct {
	totalRounds int
	completed   int
	last        alphazero.RoundSummary
	recent      []string
	startTime   time.Time
	updates     chan alphazero.RoundSummary
	done        chan error
	err         error
	finished    bool
}

func initialModel(totalRounds int, updates chan alphazero.RoundSummary, done chan error) tuiModel {
	return tuiModel{
		totalRounds: totalRounds,
		startTime:   time.Now(),
		updates:     updates,
		done:        done,
	}
}

type tickMsg time.Time

type doneMsg struct{ err error }

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForUpdate(updates chan alphazero.RoundSummary, done chan error) tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-updates:
			return s
		case err := <-done:
			return doneMsg{err: err}
		}
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates, m.done), tickCmd())
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		return m, tickCmd()
	case alphazero.RoundSummary:
		m.completed++
		m.last = msg
		line := fmt.Sprintf("Round %d: loss %.4f (policy %.4f value %.4f l2 %.4f) buffer %d",
			msg.Round, msg.Losses.Total, msg.Losses.Policy, msg.Losses.Value, msg.Losses.L2, msg.BufferLen)
		m.recent = append([]string{line}, m.recent...)
		if len(m.recent) > 10 {
			m.recent = m.recent[:10]
		}
		return m, waitForUpdate(m.updates, m.done)
	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m tuiModel) View() string {
	duration := time.Since(m.startTime)

	s := fmt.Sprintf("Rounds:   %d/%d\n", m.completed, m.totalRounds)
	s += fmt.Sprintf("Duration: %s\n", duration.Round(time.Second))
	if m.completed > 0 {
		s += fmt.Sprintf("Loss:     %.4f\n", m.last.Losses.Total)
		s += fmt.Sprintf("Buffer:   %d\n", m.last.BufferLen)
	}
	s += "\nRecent rounds:\n"
	for _, line := range m.recent {
		s += line + "\n"
	}
	if m.finished {
		if m.err != nil {
			s += fmt.Sprintf("\nTraining failed: %v\n", m.err)
		} else {
			s += "\nTraining complete.\n"
		}
	}
	s += "\nPress q to quit.\n"
	return s
}
