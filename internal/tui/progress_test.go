package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressUpdate(t *testing.T) {
	m := NewProgress("reactor", 10, nil)

	next, _ := m.Update(ProgressMsg{Done: 4, Total: 10, Infeasible: 2})
	m = next.(Progress)
	view := m.View()
	assert.Contains(t, view, "4/10")
	assert.Contains(t, view, "2 infeasible relaxations")
	assert.Contains(t, view, "q cancel")

	next, cmd := m.Update(DoneMsg{Fractions: []float64{1, 0.5, 0, 1}})
	m = next.(Progress)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	view = m.View()
	assert.Contains(t, view, "done")
	assert.Contains(t, view, "2 of 4 design points")
	assert.NotContains(t, view, "q cancel")
}

func TestProgressError(t *testing.T) {
	m := NewProgress("decay", 3, nil)
	next, _ := m.Update(DoneMsg{Err: errors.New("solve failed in relaxed phase")})
	view := next.(Progress).View()
	assert.Contains(t, view, "failed")
	assert.Contains(t, view, "solve failed in relaxed phase")
}

func TestProgressCancel(t *testing.T) {
	canceled := false
	m := NewProgress("reactor", 5, func() { canceled = true })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.True(t, canceled)
	assert.True(t, next.(Progress).Canceled())
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", sparkline(nil, 10))
	assert.Equal(t, "▁▄█", sparkline([]float64{0, 0.5, 1}, 10))
	assert.Equal(t, 5, len([]rune(sparkline(make([]float64, 20), 5))))
	assert.False(t, strings.ContainsRune(sparkline([]float64{2, -1}, 4), '?'))
}
