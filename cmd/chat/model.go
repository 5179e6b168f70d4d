package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/room4-2/voicechat/session"
)

var (
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	agentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	statusStyles = map[string]lipgloss.Style{
		"connected":    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"processing":   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"speaking":     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		"recording":    lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		"connecting":   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"error":        lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		"disconnected": lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
)

const (
	headerHeight = 1
	footerHeight = 2
	inputHeight  = 1
)

// controls is the part of the controller the UI drives
type controls interface {
	Submit(text string)
	ToggleVoice()
	SetSpeechOutput(on bool)
	Reconnect()
}

type model struct {
	ctrl controls

	input    textinput.Model
	viewport viewport.Model
	ready    bool

	messages       []session.ChatMessage
	status         session.Status
	sendEnabled    bool
	recording      bool
	voiceAvailable bool
	speech         bool
}

func newModel(ctrl controls, speech bool) model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Focus()

	return model{
		ctrl:   ctrl,
		input:  input,
		speech: speech,
		status: session.Status{Label: "Disconnected", Class: "disconnected"},
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if !m.sendEnabled {
				return m, nil
			}
			text := m.input.Value()
			// controller calls go through commands, it may be waiting on this loop
			return m, func() tea.Msg {
				m.ctrl.Submit(text)
				return nil
			}
		case tea.KeyCtrlR:
			if !m.voiceAvailable {
				return m, nil
			}
			return m, func() tea.Msg {
				m.ctrl.ToggleVoice()
				return nil
			}
		case tea.KeyCtrlS:
			m.speech = !m.speech
			on := m.speech
			return m, func() tea.Msg {
				m.ctrl.SetSpeechOutput(on)
				return nil
			}
		case tea.KeyCtrlL:
			return m, func() tea.Msg {
				m.ctrl.Reconnect()
				return nil
			}
		}

	case tea.WindowSizeMsg:
		height := msg.Height - headerHeight - footerHeight - inputHeight
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = msg.Width - 4
		m.refresh()

	case appendMsg:
		m.messages = append(m.messages, session.ChatMessage(msg))
		m.refresh()

	case statusMsg:
		m.status = session.Status(msg)

	case inputMsg:
		m.input.SetValue(string(msg))
		m.input.CursorEnd()

	case sendEnabledMsg:
		m.sendEnabled = bool(msg)

	case recordingMsg:
		m.recording = bool(msg)

	case voiceAvailableMsg:
		m.voiceAvailable = bool(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderMessages(m.messages, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "Starting..."
	}

	style, ok := statusStyles[m.status.Class]
	if !ok {
		style = helpStyle
	}
	header := style.Render("● " + m.status.Label)

	return fmt.Sprintf("%s\n%s\n%s\n%s", header, m.viewport.View(), m.input.View(), m.help())
}

func (m model) help() string {
	keys := []string{"enter send"}
	if m.voiceAvailable {
		if m.recording {
			keys = append(keys, "ctrl+r stop recording")
		} else {
			keys = append(keys, "ctrl+r record")
		}
	}
	speech := "off"
	if m.speech {
		speech = "on"
	}
	keys = append(keys, "ctrl+s speech "+speech, "ctrl+l reconnect", "esc quit")
	return helpStyle.Render(strings.Join(keys, " • "))
}

func renderMessages(msgs []session.ChatMessage, width int) string {
	var b strings.Builder
	wrap := lipgloss.NewStyle().Width(width)
	for _, msg := range msgs {
		label := agentStyle.Render("Agent:")
		if msg.Sender == session.SenderUser {
			label = userStyle.Render("You:")
		}
		text := msg.Text
		if msg.IsError {
			text = errorStyle.Render(text)
		}
		b.WriteString(wrap.Render(label + " " + text))
		b.WriteString("\n")
	}
	return b.String()
}
