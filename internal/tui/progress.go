package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// ProgressMsg reports evaluated design points.
type ProgressMsg struct {
	Done, Total int
	Infeasible  int64
}

// DoneMsg ends the view. Fractions holds the feasible share per design
// point.
type DoneMsg struct {
	Fractions []float64
	Err       error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type Progress struct {
	title      string
	done       int
	total      int
	infeasible int64
	start      time.Time
	elapsed    time.Duration

	fractions []float64
	err       error
	finished  bool
	canceled  bool
	cancel    context.CancelFunc

	width int
}

func NewProgress(title string, total int, cancel context.CancelFunc) Progress {
	return Progress{title: title, total: total, cancel: cancel, start: time.Now(), width: 80}
}

func (m Progress) Init() tea.Cmd { return tick() }

func (m Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.canceled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tickMsg:
		if m.finished {
			return m, nil
		}
		m.elapsed = time.Since(m.start)
		return m, tick()
	case ProgressMsg:
		m.done = msg.Done
		if msg.Total > 0 {
			m.total = msg.Total
		}
		m.infeasible = msg.Infeasible
		return m, nil
	case DoneMsg:
		m.finished = true
		m.fractions = msg.Fractions
		m.err = msg.Err
		m.elapsed = time.Since(m.start)
		return m, tea.Quit
	}
	return m, nil
}

func (m Progress) Canceled() bool { return m.canceled }

func (m Progress) View() string {
	var b strings.Builder

	status := green.Render("●") + " " + green.Render("running")
	switch {
	case m.err != nil:
		status = red.Render("✗") + " " + red.Render("failed")
	case m.finished:
		status = cyan.Render("✓") + " " + cyan.Render("done")
	case m.canceled:
		status = yellow.Render("○") + " " + yellow.Render("canceled")
	}
	b.WriteString(fmt.Sprintf("\n   %s  %s\n", cyan.Render(m.title), status))

	progress := 0.0
	if m.total > 0 {
		progress = float64(m.done) / float64(m.total)
	}
	barWidth := 36
	if m.width-30 < barWidth && m.width > 40 {
		barWidth = m.width - 30
	}
	filled := int(progress * float64(barWidth))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	b.WriteString(fmt.Sprintf("   %s %s  %s\n",
		bar,
		white.Render(fmt.Sprintf("%d/%d", m.done, m.total)),
		dim.Render(m.elapsed.Round(100*time.Millisecond).String())))

	if m.infeasible > 0 {
		b.WriteString("   " + yellow.Render(fmt.Sprintf("%d infeasible relaxations", m.infeasible)) + "\n")
	}

	if len(m.fractions) > 0 {
		robust := 0
		for _, f := range m.fractions {
			if f == 1 {
				robust++
			}
		}
		b.WriteString(fmt.Sprintf("\n   %s %s\n", dim.Render("feasible"), cyan.Render(sparkline(m.fractions, 48))))
		b.WriteString("   " + dim.Render(fmt.Sprintf("%d of %d design points feasible in every scenario", robust, len(m.fractions))) + "\n")
	}
	if m.err != nil {
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	}

	if !m.finished && !m.canceled {
		b.WriteString("\n" + dim.Render("   q cancel") + "\n")
	}
	return b.String()
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	step := len(data) / width
	if step < 1 {
		step = 1
	}
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		// fractions live in [0, 1]
		idx := int(data[i*step] * 7)
		if idx > 7 {
			idx = 7
		}
		if idx < 0 {
			idx = 0
		}
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}

// Run shows a progress view while work runs. work reports through send;
// quitting the view cancels the context passed to work.
func Run(ctx context.Context, title string, total int, work func(ctx context.Context, send func(tea.Msg)) ([]float64, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgress(title, total, cancel), tea.WithOutput(os.Stderr))
	errc := make(chan error, 1)
	go func() {
		fractions, err := work(ctx, p.Send)
		errc <- err
		p.Send(DoneMsg{Fractions: fractions, Err: err})
	}()

	final, err := p.Run()
	cancel()
	workErr := <-errc
	if err != nil {
		return err
	}
	if m, ok := final.(Progress); ok && m.Canceled() {
		return context.Canceled
	}
	return workErr
}
