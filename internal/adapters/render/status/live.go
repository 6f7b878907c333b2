package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/agentmon/internal/application"
	"github.com/bnema/agentmon/internal/domain"
)

type (
	SnapshotMsg struct{ Overview application.Overview }
	SessionMsg  struct{ View application.SessionView }
	DeleteMsg   struct{ SessionID string }
	UsageMsg    struct{ Usage domain.Usage }
	WarnMsg     struct{ Message string }
	ShutdownMsg struct{ Reason string }
	FeedDoneMsg struct{ Err error }
)

type tickMsg time.Time

type Feed func(ctx context.Context, send func(tea.Msg)) error

type LiveOptions struct {
	RenderOptions
	InactiveAfter time.Duration
	Refresh       time.Duration
	Clock         func() time.Time
}

type liveModel struct {
	opts     LiveOptions
	styles   styles
	sessions map[string]domain.Session
	usage    *domain.Usage
	now      time.Time
	notice   string
	err      error
	done     bool
}

func newLiveModel(opts LiveOptions) liveModel {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Refresh <= 0 {
		opts.Refresh = time.Second
	}

	st := newStyles()
	if opts.Plain {
		st = plainStyles()
	}
	return liveModel{
		opts:     opts,
		styles:   st,
		sessions: map[string]domain.Session{},
		now:      opts.Clock(),
		notice:   "connecting...",
	}
}

func (m liveModel) Init() tea.Cmd {
	return m.tick()
}

func (m liveModel) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		m.now = m.opts.Clock()
		return m, m.tick()
	case SnapshotMsg:
		m.sessions = make(map[string]domain.Session, len(msg.Overview.Sessions))
		for _, view := range msg.Overview.Sessions {
			m.sessions[view.Session.ID] = view.Session
		}
		m.usage = msg.Overview.Usage
		m.notice = "live"
	case SessionMsg:
		m.sessions[msg.View.Session.ID] = msg.View.Session
	case DeleteMsg:
		delete(m.sessions, msg.SessionID)
	case UsageMsg:
		usage := msg.Usage
		m.usage = &usage
	case WarnMsg:
		m.notice = "warning: " + msg.Message
	case ShutdownMsg:
		m.notice = fmt.Sprintf("daemon stopped (%s)", msg.Reason)
	case FeedDoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m liveModel) overview() application.Overview {
	sessions := make([]domain.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	domain.SortSessions(sessions, m.now, m.opts.InactiveAfter)

	views := make([]application.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, application.NewSessionView(session, m.now, m.opts.InactiveAfter))
	}
	return application.Overview{Sessions: views, Usage: m.usage}
}

func (m liveModel) View() string {
	opts := m.opts.RenderOptions
	opts.Now = m.now

	footer := m.notice
	if !m.done {
		footer += " (q to quit)"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		renderView(m.overview(), opts, m.styles),
		m.styles.section.Render(m.styles.header.Render(footer)),
	) + "\n"
}

func RunLive(ctx context.Context, in io.Reader, out io.Writer, opts LiveOptions, feed Feed) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(
		newLiveModel(opts),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)

	go func() {
		err := feed(ctx, p.Send)
		p.Send(FeedDoneMsg{Err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}

	final, ok := finalModel.(liveModel)
	if !ok {
		return ErrUnexpectedRenderModel
	}
	if errors.Is(final.err, context.Canceled) {
		return nil
	}
	return final.err
}
