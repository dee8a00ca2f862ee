// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yinbiaozhong/lk/pkg/moot"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Messages
type flashProgressMsg struct {
	written int
	total   int
}
type flashDoneMsg struct {
	retcode moot.Retcode
	err     error
}

type flashModel struct {
	image    string
	connInfo string
	total    int

	written int
	bar     progress.Model
	spin    spinner.Model
	start   time.Time

	events   chan tea.Msg
	dispatch func() tea.Msg

	done    bool
	retcode moot.Retcode
	err     error
}

func newFlashModel(image, connInfo string, total int, events chan tea.Msg, dispatch func() tea.Msg) flashModel {
	bar := progress.New(progress.WithDefaultGradient())
	spin := spinner.New(spinner.WithSpinner(spinner.Dot))

	return flashModel{
		image:    image,
		connInfo: connInfo,
		total:    total,
		bar:      bar,
		spin:     spin,
		start:    time.Now(),
		events:   events,
		dispatch: dispatch,
	}
}

func (m flashModel) listen() tea.Msg {
	return <-m.events
}

func (m flashModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.listen, m.dispatch)
}

func (m flashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// No cancellation primitive exists; quitting abandons the device
			// mid-transaction.
			m.err = fmt.Errorf("interrupted; device may be mid-transfer")
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		width := msg.Width - 8
		if width > 60 {
			width = 60
		}
		if width > 0 {
			m.bar.Width = width
		}
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case flashProgressMsg:
		m.written = msg.written
		m.total = msg.total
		return m, m.listen

	case flashDoneMsg:
		m.done = true
		m.retcode = msg.retcode
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m flashModel) View() string {
	s := titleStyle.Render("lkboot flash") + "  " + dimStyle.Render(m.connInfo) + "\n\n"
	s += fmt.Sprintf("  image: %s (%d bytes)\n\n", m.image, m.total)

	pct := 0.0
	if m.total > 0 {
		pct = float64(m.written) / float64(m.total)
	}
	s += "  " + m.bar.ViewAs(pct) + "\n\n"

	switch {
	case m.done && m.err != nil:
		s += "  " + errStyle.Render("✗ "+m.err.Error()) + "\n"
	case m.done && m.retcode.IsError():
		s += "  " + errStyle.Render(fmt.Sprintf("✗ device error: %s (0x%04X)", m.retcode, uint32(m.retcode))) + "\n"
	case m.done:
		s += "  " + okStyle.Render(fmt.Sprintf("✓ flash complete in %s", time.Since(m.start).Round(time.Millisecond))) + "\n"
	default:
		s += fmt.Sprintf("  %s %d / %d bytes  %s\n",
			m.spin.View(), m.written, m.total,
			dimStyle.Render(time.Since(m.start).Round(time.Second).String()))
	}

	return s
}

func flashWithTUI(imagePath string, image []byte) error {
	events := make(chan tea.Msg, 64)

	// Trace logging goes to stderr and would tear the UI; drop it here.
	d, conn, connInfo, err := newDispatcher(
		moot.WithTrace(nil),
		moot.WithProgress(func(written, total int) {
			events <- flashProgressMsg{written: written, total: total}
		}),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	dispatch := func() tea.Msg {
		retcode, _, err := d.Dispatch(moot.CmdFlash, image)
		return flashDoneMsg{retcode: retcode, err: err}
	}

	m := newFlashModel(imagePath, connInfo, len(image), events, dispatch)
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return err
	}

	fm := final.(flashModel)
	if fm.err != nil {
		return fm.err
	}
	if fm.retcode.IsError() {
		return fmt.Errorf("device rejected flash: %s (0x%04X)", fm.retcode, uint32(fm.retcode))
	}
	return nil
}
