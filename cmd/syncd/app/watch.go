package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/activity"
	pkgsync "github.com/GlobalTax/Crmcapittal-sub010/internal/sync"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	phaseStyles = map[pkgsync.Phase]lipgloss.Style{
		pkgsync.PhaseScheduled: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		pkgsync.PhaseFetching:  lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		pkgsync.PhasePaused:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		pkgsync.PhaseDisposed:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

func newWatchCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow session states live",
		Long: `Follow the session states of a running daemon. Key presses count as user
activity and terminal focus changes report visibility, so the daemon polls
faster while you watch and slows down when you look away.

Keys: up/down select, r refresh the selected session, v toggle visibility, q quit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("watch requires a terminal")
			}
			client, err := newAPIClient(v.GetString(flagServer), v.GetString(flagAPIToken))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runWatch(ctx, client)
		},
	}
}

func runWatch(ctx context.Context, client *apiClient) error {
	stream, err := client.dialStream(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = stream.close() }()

	model := newWatchModel(stream.send, func(id string) error {
		return client.refresh(ctx, id)
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus())

	go func() {
		for {
			view, err := stream.next()
			if err != nil {
				p.Send(streamErrMsg{err: err})
				return
			}
			p.Send(stateMsg(view))
		}
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(watchModel); ok && m.err != nil {
		return m.err
	}
	return nil
}

type (
	stateMsg     pkgsync.SessionView
	streamErrMsg struct{ err error }
	actionMsg    struct {
		text string
		err  error
	}
)

// watchModel renders the sessions and turns key presses and focus changes
// into engagement events
type watchModel struct {
	sessions map[string]pkgsync.SessionView
	order    []string
	selected int
	visible  bool
	status   string
	err      error

	send    func(activity.Event) error
	refresh func(id string) error
	now     func() time.Time
}

func newWatchModel(send func(activity.Event) error, refresh func(string) error) watchModel {
	return watchModel{
		sessions: make(map[string]pkgsync.SessionView),
		visible:  true,
		send:     send,
		refresh:  refresh,
		now:      time.Now,
	}
}

func (watchModel) Init() tea.Cmd {
	return nil
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		view := pkgsync.SessionView(msg)
		if view.Phase == pkgsync.PhaseDisposed {
			delete(m.sessions, view.SessionID)
		} else {
			m.sessions[view.SessionID] = view
		}
		order := make([]string, 0, len(m.sessions))
		for id := range m.sessions {
			order = append(order, id)
		}
		sort.Strings(order)
		m.order = order
		if m.selected >= len(m.order) {
			m.selected = max(len(m.order)-1, 0)
		}
		return m, nil

	case streamErrMsg:
		m.err = fmt.Errorf("stream closed: %w", msg.err)
		return m, tea.Quit

	case actionMsg:
		if msg.err != nil {
			m.status = errorStyle.Render(msg.err.Error())
		} else {
			m.status = msg.text
		}
		return m, nil

	case tea.FocusMsg:
		m.visible = true
		return m, m.emit(activity.VisibilityEvent(true), "")

	case tea.BlurMsg:
		m.visible = false
		return m, m.emit(activity.VisibilityEvent(false), "")

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m watchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.emit(activity.ActivityEvent(), "")}

	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.order)-1 {
			m.selected++
		}
	case "v":
		m.visible = !m.visible
		cmds = append(cmds, m.emit(activity.VisibilityEvent(m.visible), ""))
	case "r":
		if len(m.order) > 0 {
			id := m.order[m.selected]
			refresh := m.refresh
			cmds = append(cmds, func() tea.Msg {
				return actionMsg{text: "refresh requested for " + id, err: refresh(id)}
			})
		}
	}
	return m, tea.Batch(cmds...)
}

// emit sends e in the background. Only failures and a non-empty text are reported.
func (m watchModel) emit(e activity.Event, text string) tea.Cmd {
	send := m.send
	return func() tea.Msg {
		if err := send(e); err != nil {
			return actionMsg{err: err}
		}
		if text == "" {
			return nil
		}
		return actionMsg{text: text}
	}
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("syncd sessions"))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString("waiting for sessions...\n")
	}
	now := m.now()
	for i, id := range m.order {
		s := m.sessions[id]
		style, ok := phaseStyles[s.Phase]
		if !ok {
			style = lipgloss.NewStyle()
		}
		line := fmt.Sprintf("%-20s %s %10s  errors %-3d last success %s",
			id,
			style.Render(fmt.Sprintf("%-9s", s.Phase)),
			s.CurrentInterval,
			s.ConsecutiveErrors,
			since(s.LastSuccessAt, now))
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	visibility := "visible"
	if !m.visible {
		visibility = "hidden"
	}
	b.WriteString(helpStyle.Render("↑/↓ select • r refresh • v visibility (" + visibility + ") • q quit"))
	if m.status != "" {
		b.WriteString("\n" + m.status)
	}
	b.WriteString("\n")
	return b.String()
}
