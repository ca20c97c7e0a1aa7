package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/aceteam-ai/shiftclock/internal/availability"
	"github.com/aceteam-ai/shiftclock/internal/timelog"
	"github.com/aceteam-ai/shiftclock/internal/timer"
	"github.com/aceteam-ai/shiftclock/internal/tzconv"
)

// Controller is the part of timer.Machine the view drives.
type Controller interface {
	Snapshot() timer.Snapshot
	Job() timelog.Job
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context, notes string) error
	Refresh(ctx context.Context) error
}

var _ Controller = (*timer.Machine)(nil)

// SnapshotMsg carries a machine change into the program.
type SnapshotMsg timer.Snapshot

type actionDoneMsg struct {
	action timer.Action
	err    error
}

type pollMsg time.Time

// Bridge forwards machine changes to a program created after the machine.
// Use OnChange as timer.Config.OnChange and Attach once the program exists.
type Bridge struct {
	p atomic.Pointer[tea.Program]
}

// Attach starts forwarding to p.
func (b *Bridge) Attach(p *tea.Program) { b.p.Store(p) }

// OnChange sends s to the attached program, if any.
func (b *Bridge) OnChange(s timer.Snapshot) {
	if p := b.p.Load(); p != nil {
		p.Send(SnapshotMsg(s))
	}
}

// TimerModel is the interactive session timer for one job.
type TimerModel struct {
	ctl     Controller
	zone    *time.Location
	now     func() time.Time
	timeout time.Duration

	snap    timer.Snapshot
	spinner spinner.Model
	notes   textinput.Model

	askingNotes bool
	status      string
	err         error
	quitting    bool
}

// NewTimerModel creates the view. zone renders shift windows; nil uses
// time.Local.
func NewTimerModel(ctl Controller, zone *time.Location) TimerModel {
	if zone == nil {
		zone = time.Local
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorPrimary)

	ti := textinput.New()
	ti.Placeholder = "what did you work on? (optional)"
	ti.CharLimit = 500
	ti.Width = 48

	return TimerModel{
		ctl:     ctl,
		zone:    zone,
		now:     time.Now,
		timeout: 15 * time.Second,
		snap:    ctl.Snapshot(),
		spinner: s,
		notes:   ti,
	}
}

func (m TimerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, pollCmd())
}

// pollCmd keeps the counter moving even when no OnChange bridge is attached
func pollCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

func (m TimerModel) run(action timer.Action, notes string) tea.Cmd {
	ctl, timeout := m.ctl, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var err error
		switch action {
		case timer.ActionStart:
			err = ctl.Start(ctx)
		case timer.ActionPause:
			err = ctl.Pause(ctx)
		case timer.ActionResume:
			err = ctl.Resume(ctx)
		case timer.ActionStop:
			err = ctl.Stop(ctx, notes)
		case timer.ActionRefresh:
			err = ctl.Refresh(ctx)
		}
		return actionDoneMsg{action: action, err: err}
	}
}

func (m TimerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.askingNotes {
			return m.updateNotes(msg)
		}
		return m.updateKeys(msg)

	case SnapshotMsg:
		m.snap = timer.Snapshot(msg)
		return m, nil

	case pollMsg:
		m.snap = m.ctl.Snapshot()
		return m, pollCmd()

	case actionDoneMsg:
		m.snap = m.ctl.Snapshot()
		m.err = msg.err
		m.status = ""
		if msg.err == nil {
			m.status = doneText(msg.action)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m TimerModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit
	case "s":
		return m.begin(timer.ActionStart, "")
	case "p", " ":
		switch m.snap.Phase {
		case timer.Running:
			return m.begin(timer.ActionPause, "")
		case timer.Paused:
			return m.begin(timer.ActionResume, "")
		}
	case "x":
		if m.snap.Phase == timer.Running || m.snap.Phase == timer.Paused {
			m.askingNotes = true
			m.notes.SetValue("")
			return m, m.notes.Focus()
		}
	case "r":
		return m.begin(timer.ActionRefresh, "")
	}
	return m, nil
}

func (m TimerModel) updateNotes(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.askingNotes = false
		m.notes.Blur()
		return m.begin(timer.ActionStop, strings.TrimSpace(m.notes.Value()))
	case tea.KeyEsc:
		m.askingNotes = false
		m.notes.Blur()
		return m, nil
	case tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.notes, cmd = m.notes.Update(msg)
	return m, cmd
}

func (m TimerModel) begin(action timer.Action, notes string) (tea.Model, tea.Cmd) {
	m.err = nil
	m.status = ""
	return m, m.run(action, notes)
}

func doneText(a timer.Action) string {
	switch a {
	case timer.ActionStart:
		return "Session started"
	case timer.ActionPause:
		return "Paused"
	case timer.ActionResume:
		return "Resumed"
	case timer.ActionStop:
		return "Session saved"
	case timer.ActionRefresh:
		return "Refreshed"
	}
	return ""
}

// errorText turns machine errors into one line for the footer
func errorText(err error) string {
	var unavailable *timer.AvailabilityError
	switch {
	case errors.As(err, &unavailable):
		return unavailable.Error()
	case errors.Is(err, timer.ErrActionPending):
		return "Another action is still in progress"
	case errors.Is(err, timer.ErrUnauthorized):
		return "You are not allowed to track time on this job"
	case errors.Is(err, timer.ErrStaleState):
		return "The session changed elsewhere; view refreshed"
	}
	return err.Error()
}

func (m TimerModel) View() string {
	if m.quitting {
		return ""
	}
	job := m.ctl.Job()
	s := m.snap

	var b strings.Builder
	title := job.Title
	if title == "" {
		title = s.JobID
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("  " + PhaseBadge(s.Phase))
	if s.Busy() {
		b.WriteString("  " + m.spinner.View() + MutedStyle.Render(string(s.Pending)+"..."))
	}
	b.WriteString("\n\n")

	clock := ClockStyle.Render(s.Clock())
	if s.Phase == timer.Running && !s.Ticking {
		clock += WarningStyle.Render(" (paused locally, press r to resync)")
	}
	b.WriteString(clock + "\n\n")

	b.WriteString(m.availabilityLine(s) + "\n")
	if shifts := m.shiftLines(job); len(shifts) > 0 {
		b.WriteString("\n" + SubtitleStyle.Render("Shifts") + MutedStyle.Render(" ("+m.zone.String()+")") + "\n")
		for _, l := range shifts {
			b.WriteString("  " + l + "\n")
		}
	}

	if m.askingNotes {
		b.WriteString("\n" + LabelStyle.Render("Notes: ") + m.notes.View() + "\n")
		b.WriteString(MutedStyle.Render("enter save • esc cancel") + "\n")
	} else {
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(ErrorStyle.Render("✗ "+errorText(m.err)) + "\n")
		} else if m.status != "" {
			b.WriteString(SuccessStyle.Render("✓ "+m.status) + "\n")
		}
		b.WriteString(MutedStyle.Render(helpLine(s.Phase)) + "\n")
	}

	style := PanelStyle
	if s.Phase == timer.Running {
		style = ActivePanelStyle
	}
	return style.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func (m TimerModel) availabilityLine(s timer.Snapshot) string {
	if s.AvailabilityErr != nil {
		return ErrorStyle.Render("Shift data error: " + s.AvailabilityErr.Error())
	}
	if !s.Mounted {
		return MutedStyle.Render("Loading...")
	}
	r := s.Availability
	if r.Available {
		if r.ShiftTitle != "" {
			return SuccessStyle.Render("On shift: " + r.ShiftTitle)
		}
		return SuccessStyle.Render("Available")
	}
	return WarningStyle.Render(r.Message())
}

// shiftLines lists active shifts converted to the viewer's zone
func (m TimerModel) shiftLines(job timelog.Job) []string {
	now := m.now()
	var lines []string
	width := 0
	for _, sh := range job.Shifts {
		if w := runewidth.StringWidth(sh.Title); sh.IsActive && w > width {
			width = w
		}
	}
	for _, sh := range job.Shifts {
		if !sh.IsActive {
			continue
		}
		start, err1 := tzconv.ParseTimeOfDay(sh.StartTimeUTC)
		end, err2 := tzconv.ParseTimeOfDay(sh.EndTimeUTC)
		if err1 != nil || err2 != nil {
			lines = append(lines, padRight(sh.Title, width)+"  "+ErrorStyle.Render("invalid times"))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s  %s - %s",
			padRight(sh.Title, width),
			tzconv.UTCToLocalOn(now, start, m.zone).Short(),
			tzconv.UTCToLocalOn(now, end, m.zone).Short()))
	}
	return lines
}

func helpLine(p timer.Phase) string {
	switch p {
	case timer.Running:
		return "p pause • x stop • r refresh • q quit"
	case timer.Paused:
		return "p resume • x stop • r refresh • q quit"
	case timer.Stopping:
		return "q quit"
	}
	return "s start • r refresh • q quit"
}

// FormatWait renders the time until a job opens, for non-interactive output.
func FormatWait(r availability.Result) string {
	if r.Available {
		return "now"
	}
	if r.WaitSeconds <= 0 {
		return "-"
	}
	return availability.FormatDuration(r.WaitSeconds)
}
