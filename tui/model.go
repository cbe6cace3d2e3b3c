package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-midiseq/debug"
	"go-midiseq/document"
	"go-midiseq/sequencer"
	"go-midiseq/theme"
)

// tempoStep is the +/- tempo increment in bpm
const tempoStep = 5

// meterWidth is the readahead meter width in cells
const meterWidth = 20

type Model struct {
	Session   *sequencer.Session
	Engine    *sequencer.Engine
	Transport *sequencer.Transport
	Driver    *sequencer.ClockDriver
	Projects  *document.Projects
	Project   string
	Theme     *theme.Theme

	// status is the last action's outcome, shown under the help line
	status   *string
	quitting bool
}

type UpdateMsg struct{}

// savedMsg reports the outcome of a project save
type savedMsg struct {
	info document.SaveInfo
	err  error
}

func NewModel(session *sequencer.Session, engine *sequencer.Engine, driver *sequencer.ClockDriver, projects *document.Projects, project string, th *theme.Theme) Model {
	status := ""
	return Model{
		Session:   session,
		Engine:    engine,
		Transport: sequencer.NewTransport(session, engine),
		Driver:    driver,
		Projects:  projects,
		Project:   project,
		Theme:     th,
		status:    &status,
	}
}

func ListenForUpdates(driver *sequencer.ClockDriver) tea.Cmd {
	return func() tea.Msg {
		<-driver.UpdateChan
		return UpdateMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForUpdates(m.Driver)
}

func (m Model) setStatus(format string, args ...any) {
	*m.status = fmt.Sprintf(format, args...)
}

// save writes the session as a new timestamped project save
func (m Model) save() tea.Cmd {
	return func() tea.Msg {
		info, err := m.Projects.Save(m.Project, func(doc *document.Document) (any, error) {
			return sequencer.SaveSession(doc, m.Session, m.Engine)
		})
		return savedMsg{info: info, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.Transport.Stop()
			return m, tea.Quit

		case "p", " ":
			if err := m.Transport.Toggle(); err != nil {
				debug.Warn("tui", err, "transport")
				m.setStatus("transport: %v", err)
			}

		case "+", "=":
			m.Transport.SetTempo(m.Session.Tempo() + tempoStep)

		case "-", "_":
			m.Transport.SetTempo(m.Session.Tempo() - tempoStep)

		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			idx := int(msg.String()[0] - '1')
			tracks := m.Session.MidiTracks()
			if idx < len(tracks) {
				tr := tracks[idx]
				if err := tr.SetMute(!tr.IsMute()); err != nil {
					m.setStatus("mute %s: %v", tr.Name(), err)
				}
			}

		case "w":
			if m.Projects != nil {
				m.setStatus("saving...")
				return m, m.save()
			}
		}

	case UpdateMsg:
		return m, ListenForUpdates(m.Driver)

	case savedMsg:
		if msg.err != nil {
			debug.Warn("tui", msg.err, "save")
			m.setStatus("save failed: %v", msg.err)
		} else {
			m.setStatus("saved %s/%s", m.Project, msg.info.Filename)
		}
	}

	return m, nil
}

// meter draws how far the MIDI cursor runs ahead of audio
func (m Model) meter(ahead, readAhead uint64) string {
	filled := 0
	if readAhead > 0 {
		filled = int(min(ahead, 2*readAhead) * meterWidth / (2 * readAhead))
	}
	return strings.Repeat(string(m.Theme.Symbols.Bar), filled) +
		strings.Repeat(string(m.Theme.Symbols.Gap), meterWidth-filled)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent()).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	liveStyle := lipgloss.NewStyle().Foreground(m.Theme.Active())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	sym := m.Theme.Symbols
	state, icon := "STOP", sym.Stop
	if m.Session.IsPlaying() {
		state, icon = "PLAY", sym.Play
	}

	header := headerStyle.Render(fmt.Sprintf("go-midiseq  %c %s  %3.0fbpm  %s", icon, state, m.Session.Tempo(), m.Session.Name()))

	// clocks
	var clocks strings.Builder
	audio := m.Session.Frame()
	fmt.Fprintf(&clocks, "audio  %10d  tick %8d\n", audio, m.Session.TickFromFrame(audio))
	if cursor, th := m.Engine.Cursor(), m.Engine.OutputThread(); cursor != nil && th != nil {
		midi := cursor.Frame()
		var ahead uint64
		if midi > audio {
			ahead = midi - audio
		}
		fmt.Fprintf(&clocks, "midi   %10d  tick %8d\n", midi, m.Session.TickFromFrame(midi))
		fmt.Fprintf(&clocks, "ahead  %s %d/%d\n", m.meter(ahead, th.ReadAhead()), ahead, th.ReadAhead())
		fmt.Fprintf(&clocks, "origin tick %d  queue %d", m.Engine.TimeStart(), m.Engine.Queue())
	} else {
		clocks.WriteString(warnStyle.Render("engine not active"))
	}

	// tracks
	var tracks strings.Builder
	for i, tr := range m.Session.MidiTracks() {
		mark := liveStyle.Render(string(sym.Live))
		if tr.IsMute() {
			mark = dimStyle.Render(string(sym.Muted))
		}
		bus := "-"
		if b := tr.Bus(); b != nil {
			bus = b.Name()
		}
		fmt.Fprintf(&tracks, "%d %s %-12s ch%-2d %-10s clips:%d\n",
			i+1, mark, tr.Name(), tr.MidiChannel()+1, bus, len(tr.Clips()))
	}

	// buses
	var buses strings.Builder
	for _, b := range m.Engine.Buses() {
		fmt.Fprintf(&buses, "%s (%s, port %d)", b.Name(), b.Mode(), b.Port())
		for ch, inst := range b.Patches() {
			if inst != "" {
				fmt.Fprintf(&buses, "  %d:%s", ch+1, inst)
			}
		}
		buses.WriteString("\n")
	}

	help := dimStyle.Render("p:play/stop  1-9:mute  +/-:tempo  w:save  q:quit")

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(clocks.String())
	out.WriteString("\n\n")
	out.WriteString(tracks.String())
	out.WriteString("\n")
	out.WriteString(buses.String())
	out.WriteString("\n")
	out.WriteString(help)

	if *m.status != "" {
		out.WriteString("\n")
		out.WriteString(dimStyle.Render(*m.status))
	}

	return out.String()
}
