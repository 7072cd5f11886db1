// Package tui renders the chat widget in the terminal with bubbletea.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ChatWidget/internal/widget"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	headerHeight = 2
	inputHeight  = 3
)

// replyMsg carries a finished request back onto the event loop.
type replyMsg struct {
	result widget.Result
}

type styles struct {
	header    lipgloss.Style
	avatar    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	err       lipgloss.Style
	loading   lipgloss.Style
	hint      lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		header:    lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true),
		avatar:    lipgloss.NewStyle().Bold(true),
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		err:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		loading:   lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
		hint:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// Model is the bubbletea model wrapping a widget.Controller. All list
// mutation happens in Update; requests run in commands.
type Model struct {
	ctx      context.Context
	ctrl     *widget.Controller
	avatars  widget.Avatars
	endpoint string
	logger   *slog.Logger

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	styles   styles

	width  int
	height int
}

// New builds the model. ctx is passed to every outbound request.
func New(ctx context.Context, ctrl *widget.Controller, avatars widget.Avatars, endpoint string, logger *slog.Logger) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.ShowLineNumbers = false
	ta.Prompt = "> "
	ta.SetHeight(inputHeight)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		avatars:  avatars,
		endpoint: endpoint,
		logger:   logger,
		viewport: viewport.New(80, 20),
		input:    ta,
		spinner:  sp,
		styles:   defaultStyles(),
		width:    80,
		height:   20 + headerHeight + inputHeight,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if !widget.ShouldSubmit(keyEvent(msg)) {
				// Reserved for a line break; no submission.
				return m, nil
			}
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case replyMsg:
		m.ctrl.Finish(m.ctx, msg.result)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.ctrl.List().Placeholders() > 0 {
			m.refresh()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func keyEvent(msg tea.KeyMsg) widget.KeyEvent {
	if msg.Type == tea.KeyEnter {
		return widget.KeyEvent{Key: widget.KeyEnter, Modifier: msg.Alt}
	}
	return widget.KeyEvent{Key: msg.String()}
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text, ok := widget.PrepareInput(m.input.Value())
	if !ok {
		return m, nil
	}

	sub, err := m.ctrl.Begin(text)
	if err != nil {
		if !errors.Is(err, widget.ErrBusy) {
			m.logger.Warn("submission rejected", "error", err)
		}
		return m, nil
	}

	m.input.Reset()
	m.refresh()

	ctx := m.ctx
	return m, func() tea.Msg {
		return replyMsg{result: sub.Send(ctx)}
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.input.SetWidth(width)
	m.viewport.Width = width
	vh := height - headerHeight - inputHeight - 1
	if vh < 1 {
		vh = 1
	}
	m.viewport.Height = vh
}

// refresh re-renders the message list into the viewport and scrolls to the
// entry the list has scrolled into view.
func (m *Model) refresh() {
	content, starts := m.renderList()
	m.viewport.SetContent(content)

	pos := m.ctrl.List().ScrollPosition()
	switch {
	case pos < 0:
		m.viewport.GotoTop()
	case pos == len(starts)-1:
		m.viewport.GotoBottom()
	default:
		m.viewport.SetYOffset(starts[pos])
	}
}

// renderList returns the rendered list and the first line of each entry.
func (m Model) renderList() (string, []int) {
	entries := m.ctrl.List().Entries()
	if len(entries) == 0 {
		return m.styles.hint.Render("No messages yet."), nil
	}

	blocks := make([]string, 0, len(entries))
	starts := make([]int, 0, len(entries))
	line := 0
	for _, e := range entries {
		block := m.renderEntry(e)
		starts = append(starts, line)
		line += lipgloss.Height(block)
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n"), starts
}

func (m Model) renderEntry(e widget.Entry) string {
	if e.Kind == widget.EntryPlaceholder {
		avatar := m.styles.avatar.Render(m.avatars.Bot + ":")
		return avatar + " " + m.spinner.View() + m.styles.loading.Render(" typing...")
	}

	avatar := m.styles.avatar.Render(m.avatars.For(e.Message.Role) + ":")
	bodyWidth := m.width - lipgloss.Width(avatar) - 1
	if bodyWidth < 10 {
		bodyWidth = 10
	}

	style := m.styles.assistant
	switch e.Message.Role {
	case widget.RoleUser:
		style = m.styles.user
	case widget.RoleError:
		style = m.styles.err
	}

	body := style.Width(bodyWidth).Render(widget.PlainText(e.Message.Text))
	return lipgloss.JoinHorizontal(lipgloss.Top, avatar, " ", body)
}

func (m Model) View() string {
	header := m.styles.header.Render(fmt.Sprintf("session %s", m.ctrl.Session().ID())) + "\n" +
		m.styles.hint.Render(fmt.Sprintf("%s  (enter to send, esc to quit)", m.endpoint))
	return header + "\n" + m.viewport.View() + "\n" + m.input.View()
}

// Run starts the program on the terminal and blocks until the user quits.
func Run(m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run terminal ui: %w", err)
	}
	return nil
}
