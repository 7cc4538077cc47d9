package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/voxdeck/voxdeck/internal/telemetry"
)

// maxTailEvents bounds the scrollback kept in memory.
const maxTailEvents = 500

// chromeHeight is everything on screen that is not the event viewport:
// margins, header box, stream border and title, help line.
const chromeHeight = 12

// Model is the BubbleTea model for the live tail TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	// Scrollback, oldest first. lastSeen feeds Last-Event-ID on reconnect
	// and drops replayed duplicates.
	events   []telemetry.Event
	lastSeen int64
	follow   bool

	health    healthMsg
	connected bool
	lastError string

	viewport viewport.Model
	ready    bool

	hubEvents chan telemetry.Event
	theme     Theme
}

// NewTail creates a tail TUI model pointed at a running API server.
func NewTail(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		follow:    true,
		hubEvents: make(chan telemetry.Event, 100),
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "f":
			m.follow = !m.follow
			if m.follow {
				m.viewport.GotoBottom()
			}
		case "g", "home":
			m.follow = false
			m.viewport.GotoTop()
		case "G", "end":
			m.viewport.GotoBottom()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - chromeHeight
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(m.width-6, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width - 6
			m.viewport.Height = vpHeight
		}
		m.refreshViewport()

	case eventMsg:
		e := telemetry.Event(msg)
		// Reconnect replays may overlap what is already on screen.
		if e.Seq > m.lastSeen {
			m.lastSeen = e.Seq
			m.events = append(m.events, e)
			if len(m.events) > maxTailEvents {
				m.events = m.events[len(m.events)-maxTailEvents:]
			}
			m.refreshViewport()
		}
		m.connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health = msg
		m.connected = true
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case tickMsg:
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case sseDisconnectedMsg:
		m.connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.lastSeen, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	lines := make([]string, 0, len(m.events))
	for _, e := range m.events {
		lines = append(lines, m.formatEvent(e))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) formatEvent(e telemetry.Event) string {
	ts := m.theme.Dim.Render(e.At.Format("15:04:05.000"))
	cat := m.theme.CategoryStyle(e.Category).Render(fmt.Sprintf("%-8s", e.Category))
	return fmt.Sprintf("%s %s %s", ts, cat, e.Message)
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	header := m.renderHeader()
	stream := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("EVENT STREAM"),
			m.viewport.View(),
		),
	)

	follow := "off"
	if m.follow {
		follow = "on"
	}
	help := m.theme.Dim.Render(fmt.Sprintf(" [q] Quit • [f] Follow: %s • [↑/↓] Scroll", follow))

	parts := []string{header, stream}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusBad.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader() string {
	innerWidth := m.width - 4

	statusText := m.theme.StatusOK.Render("CONNECTED")
	if !m.connected {
		statusText = m.theme.StatusBad.Render("CONNECTING")
	}

	clock := m.theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := " VOXDECK TAIL"
	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := m.theme.Title.Render(titleText) + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  Commands: %d/%d ready  Queue: %d",
		statusText,
		m.health.CommandsReady,
		m.health.CommandsLoaded,
		m.health.PendingQueue,
	)

	rec := m.theme.Dim.Render("rec")
	if m.health.Recording {
		rec = m.theme.StatusBad.Render("REC")
	}
	play := m.theme.Dim.Render("play")
	if m.health.Playing {
		play = m.theme.StatusOK.Render("PLAY")
	}
	session := m.health.SessionID
	if len(session) > 8 {
		session = session[:8]
	}
	transportLine := fmt.Sprintf(" ● %s  ▶ %s  Session: %s  Up: %s",
		rec, play,
		m.theme.Highlight.Render(session),
		formatDuration(time.Duration(m.health.UptimeSeconds)*time.Second),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		transportLine,
	)
	return m.theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
