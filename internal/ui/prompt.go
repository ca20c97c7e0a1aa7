// Package ui holds the small interactive prompts used by 'shiftclock init'.
package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
)

// ErrCanceled is returned when the user quits a prompt.
var ErrCanceled = errors.New("canceled")

// --- Selector ---

type selectorModel struct {
	question string
	cursor   int
	choices  []string
	choice   string
}

func newSelector(question string, choices []string, defaultIndex int) selectorModel {
	if defaultIndex < 0 || defaultIndex >= len(choices) {
		defaultIndex = 0
	}
	return selectorModel{question: question, choices: choices, cursor: defaultIndex}
}

func (m selectorModel) Init() tea.Cmd {
	return nil
}

func (m selectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "enter":
		m.choice = m.choices[m.cursor]
		return m, tea.Quit
	case "down", "j":
		m.cursor = (m.cursor + 1) % len(m.choices)
	case "up", "k":
		m.cursor = (m.cursor - 1 + len(m.choices)) % len(m.choices)
	}
	return m, nil
}

func (m selectorModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.question + "\n\n")
	for i, choice := range m.choices {
		cursor := "  "
		if m.cursor == i {
			cursor = color.CyanString("> ")
		}
		fmt.Fprintf(&sb, "%s%s\n", cursor, choice)
	}
	sb.WriteString("\n(arrow keys to move, enter to select, q to quit)\n")
	return sb.String()
}

// --- Text input ---

type textInputModel struct {
	question  string
	textInput textinput.Model
	validate  func(string) error
	err       error
	done      bool
}

func newTextInput(question, placeholder, defaultValue string, validate func(string) error) textInputModel {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.SetValue(defaultValue)
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 50

	return textInputModel{question: question, textInput: ti, validate: validate}
}

func (m textInputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m textInputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.validate != nil {
				if err := m.validate(strings.TrimSpace(m.textInput.Value())); err != nil {
					m.err = err
					return m, nil
				}
			}
			m.done = true
			return m, tea.Quit
		}
	}
	m.err = nil
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m textInputModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.question + "\n\n" + m.textInput.View() + "\n")
	if m.err != nil {
		sb.WriteString(color.RedString("  %v", m.err) + "\n")
	}
	sb.WriteString("\n(enter to accept, esc to quit)")
	return sb.String()
}

// AskSelect presents choices and returns the selected one.
func AskSelect(question string, choices []string, defaultIndex int) (string, error) {
	if len(choices) == 0 {
		return "", fmt.Errorf("no choices for %q", question)
	}
	m, err := tea.NewProgram(newSelector(question, choices, defaultIndex)).Run()
	if err != nil {
		return "", err
	}
	result := m.(selectorModel).choice
	if result == "" {
		return "", ErrCanceled
	}
	return result, nil
}

// AskInput prompts for a line of text. validate, when set, must accept the
// trimmed value before enter is honoured.
func AskInput(question, placeholder, defaultValue string, validate func(string) error) (string, error) {
	m, err := tea.NewProgram(newTextInput(question, placeholder, defaultValue, validate)).Run()
	if err != nil {
		return "", err
	}
	final := m.(textInputModel)
	if !final.done {
		return "", ErrCanceled
	}
	return strings.TrimSpace(final.textInput.Value()), nil
}
